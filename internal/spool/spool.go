// Package spool persists telemetry batches that could not be uploaded, so
// they survive restarts and are retried oldest-first on later cycles.
package spool

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/edgeops/snowedge/internal/dbx"
	"github.com/edgeops/snowedge/internal/spool/migrations"
)

// Batch is one spooled upload: the serialized NDJSON rows and the offset
// token they were meant to commit under. OffsetToken is nil when the batch
// was appended without one.
type Batch struct {
	ID          string
	CreatedAt   time.Time
	OffsetToken *string
	Rows        []byte
}

// Spool is a sqlite-backed queue of failed batches. When maxBatches is
// positive the queue is capped: inserting beyond the cap drops the oldest
// batches, keeping disk usage bounded on the device.
type Spool struct {
	db         *sql.DB
	repo       *SQLiteRepository
	maxBatches int
}

// Open opens (creating if needed) the spool database at dsn and applies
// pending migrations. maxBatches of 0 means unbounded.
func Open(ctx context.Context, dsn string, maxBatches int) (*Spool, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open spool db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Spool{db: db, repo: NewSQLiteRepository(db), maxBatches: maxBatches}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply spool migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Spool) Close() error {
	return s.db.Close()
}

// Put stores a failed batch and returns its assigned id. The insert and the
// cap enforcement run in one transaction, so a crash cannot leave the spool
// over its limit.
func (s *Spool) Put(ctx context.Context, rows []byte, offsetToken *string) (string, error) {
	b := &Batch{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		OffsetToken: offsetToken,
		Rows:        rows,
	}
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := NewSQLiteRepository(tx)
		if err := repo.Add(ctx, b); err != nil {
			return err
		}
		if s.maxBatches > 0 {
			return repo.PruneToNewest(ctx, s.maxBatches)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.ID, nil
}

// OldestFirst returns up to limit spooled batches in insertion order.
func (s *Spool) OldestFirst(ctx context.Context, limit int) ([]Batch, error) {
	return s.repo.OldestFirst(ctx, limit)
}

// Delete removes a batch after it has been successfully uploaded.
func (s *Spool) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Count reports how many batches are waiting.
func (s *Spool) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
