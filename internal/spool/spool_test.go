package spool

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSpool(t *testing.T, maxBatches int) *Spool {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	s, err := Open(context.Background(), dsn, maxBatches)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_AppliesMigrations(t *testing.T) {
	s := openTestSpool(t, 0)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPutAndDrainOrder(t *testing.T) {
	s := openTestSpool(t, 0)
	ctx := context.Background()

	offset := "5"
	id1, err := s.Put(ctx, []byte(`{"a":1}`+"\n"), &offset)
	require.NoError(t, err)
	id2, err := s.Put(ctx, []byte(`{"b":2}`+"\n"), nil)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	batches, err := s.OldestFirst(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batches, 2)

	assert.Equal(t, id1, batches[0].ID)
	require.NotNil(t, batches[0].OffsetToken)
	assert.Equal(t, "5", *batches[0].OffsetToken)
	assert.Equal(t, []byte(`{"a":1}`+"\n"), batches[0].Rows)
	assert.False(t, batches[0].CreatedAt.IsZero())

	assert.Equal(t, id2, batches[1].ID)
	assert.Nil(t, batches[1].OffsetToken)
}

func TestOldestFirst_Limit(t *testing.T) {
	s := openTestSpool(t, 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Put(ctx, []byte(`{}`+"\n"), nil)
		require.NoError(t, err)
	}

	batches, err := s.OldestFirst(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, batches, 3)
}

func TestPut_CapDropsOldest(t *testing.T) {
	s := openTestSpool(t, 3)
	ctx := context.Background()

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		id, err := s.Put(ctx, []byte(`{}`+"\n"), nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	batches, err := s.OldestFirst(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Equal(t, ids[2], batches[0].ID)
	assert.Equal(t, ids[4], batches[2].ID)
}

func TestDelete(t *testing.T) {
	s := openTestSpool(t, 0)
	ctx := context.Background()

	id, err := s.Put(ctx, []byte(`{}`+"\n"), nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, id))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// deleting again is a no-op
	require.NoError(t, s.Delete(ctx, id))
}
