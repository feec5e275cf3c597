package history

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/adapter"
	"github.com/strata-db/strata/internal/logger"
)

func newTestDocStore(t *testing.T) *docStore {
	t.Helper()

	s, err := New(adapter.NewMemoryDoc(), "migrations", &logger.NullLogger{})
	require.NoError(t, err)

	return s.(*docStore)
}

func Test_DocStoreCreatesLedgerCollectionLazily(t *testing.T) {
	ctx := context.Background()
	s := newTestDocStore(t)

	entries, err := s.Executed(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 0)
	assert.True(t, s.ready)

	// second call goes through the ready flag
	_, err = s.Executed(ctx)
	assert.NoError(t, err)
}

func Test_DocStoreRecordAndExecuted(t *testing.T) {
	ctx := context.Background()
	s := newTestDocStore(t)

	require.NoError(t, s.Record(ctx, "create_users", 1))
	require.NoError(t, s.Record(ctx, "create_posts", 1))

	entries, err := s.Executed(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	names := []string{entries[0].Name, entries[1].Name}
	assert.Contains(t, names, "create_users")
	assert.Contains(t, names, "create_posts")

	for _, e := range entries {
		assert.Equal(t, 1, e.Batch)
		assert.False(t, e.ExecutedAt.IsZero())
	}
}

func Test_DocStoreRecordFailsLoudlyOnDuplicateName(t *testing.T) {
	ctx := context.Background()
	s := newTestDocStore(t)

	require.NoError(t, s.Record(ctx, "create_users", 1))

	err := s.Record(ctx, "create_users", 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, adapter.ErrDuplicateKey))

	entries, err := s.Executed(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func Test_DocStoreRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestDocStore(t)

	require.NoError(t, s.Record(ctx, "create_users", 1))
	require.NoError(t, s.Remove(ctx, "create_users"))

	entries, err := s.Executed(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 0)
}

func Test_DocStoreNextBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestDocStore(t)

	t.Run("empty ledger starts at one", func(t *testing.T) {
		batch, err := s.NextBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, batch)
	})

	t.Run("next batch is max plus one", func(t *testing.T) {
		require.NoError(t, s.Record(ctx, "a", 1))
		require.NoError(t, s.Record(ctx, "b", 4))
		require.NoError(t, s.Record(ctx, "c", 2))

		batch, err := s.NextBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, batch)
	})
}

func Test_ToEntryToleratesDriverNumericTypes(t *testing.T) {
	tt := []struct {
		name  string
		batch interface{}
	}{
		{name: "int", batch: 3},
		{name: "int32", batch: int32(3)},
		{name: "int64", batch: int64(3)},
		{name: "float64", batch: float64(3)},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			e, err := toEntry(map[string]interface{}{
				"name":       "x",
				"batch":      tc.batch,
				"executedAt": time.Now(),
			})
			require.NoError(t, err)
			assert.Equal(t, 3, e.Batch)
		})
	}

	t.Run("missing name fails", func(t *testing.T) {
		_, err := toEntry(map[string]interface{}{"batch": 1})
		assert.True(t, errors.Is(err, ErrMalformedLedgerDocument))
	})
}
