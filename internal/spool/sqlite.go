package spool

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/edgeops/snowedge/internal/dbx"
)

// SQLiteRepository stores batches using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Add inserts a batch.
func (r *SQLiteRepository) Add(ctx context.Context, b *Batch) error {
	query := `INSERT INTO batches (id, created_at_ms, offset_token, rows_json) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.CreatedAt.UnixMilli(), b.OffsetToken, b.Rows)
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

// OldestFirst lists up to limit batches in insertion order.
func (r *SQLiteRepository) OldestFirst(ctx context.Context, limit int) ([]Batch, error) {
	query := `SELECT id, created_at_ms, offset_token, rows_json FROM batches ORDER BY rowid LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select batches: %w", err)
	}
	defer rows.Close()

	var result []Batch
	for rows.Next() {
		var item Batch
		var createdMs int64
		var offset sql.NullString
		if err := rows.Scan(&item.ID, &createdMs, &offset, &item.Rows); err != nil {
			return nil, err
		}
		item.CreatedAt = time.UnixMilli(createdMs).UTC()
		if offset.Valid {
			item.OffsetToken = &offset.String
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a batch by id. Deleting an unknown id is not an error.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM batches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}
	return nil
}

// PruneToNewest deletes all but the keep newest batches.
func (r *SQLiteRepository) PruneToNewest(ctx context.Context, keep int) error {
	query := `DELETE FROM batches WHERE rowid NOT IN (
		SELECT rowid FROM batches ORDER BY rowid DESC LIMIT ?)`
	_, err := r.db.ExecContext(ctx, query, keep)
	if err != nil {
		return fmt.Errorf("failed to prune batches: %w", err)
	}
	return nil
}

// Count returns the number of stored batches.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM batches`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count batches: %w", err)
	}
	return n, nil
}
