package history

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/adapter"
	"github.com/strata-db/strata/internal/logger"
)

func newTestSQLStore(t *testing.T) (*sqlStore, func()) {
	t.Helper()

	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	a, err := adapter.NewSQL(db, adapter.SQLite)
	require.NoError(t, err)

	s, err := New(a, "migrations", &logger.NullLogger{})
	require.NoError(t, err)

	return s.(*sqlStore), func() { _ = db.Close() }
}

func Test_SQLStoreCreatesLedgerTableLazily(t *testing.T) {
	ctx := context.Background()
	s, closer := newTestSQLStore(t)
	defer closer()

	entries, err := s.Executed(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 0)
	assert.True(t, s.ready)
}

func Test_SQLStoreRecordAndExecutedOrderedByExecutionTime(t *testing.T) {
	ctx := context.Background()
	s, closer := newTestSQLStore(t)
	defer closer()

	now := time.Date(2021, 3, 14, 15, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return now }
	require.NoError(t, s.Record(ctx, "create_users", 1))

	s.clock = func() time.Time { return now.Add(time.Second) }
	require.NoError(t, s.Record(ctx, "create_posts", 1))

	entries, err := s.Executed(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "create_users", entries[0].Name)
	assert.Equal(t, "create_posts", entries[1].Name)
	assert.Equal(t, 1, entries[0].Batch)
	assert.True(t, entries[1].ExecutedAt.After(entries[0].ExecutedAt))
}

func Test_SQLStoreRecordFailsLoudlyOnDuplicateName(t *testing.T) {
	ctx := context.Background()
	s, closer := newTestSQLStore(t)
	defer closer()

	require.NoError(t, s.Record(ctx, "create_users", 1))

	err := s.Record(ctx, "create_users", 2)
	require.Error(t, err)

	entries, err := s.Executed(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func Test_SQLStoreRemove(t *testing.T) {
	ctx := context.Background()
	s, closer := newTestSQLStore(t)
	defer closer()

	require.NoError(t, s.Record(ctx, "create_users", 1))
	require.NoError(t, s.Record(ctx, "create_posts", 1))
	require.NoError(t, s.Remove(ctx, "create_users"))

	entries, err := s.Executed(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "create_posts", entries[0].Name)
}

func Test_SQLStoreNextBatch(t *testing.T) {
	ctx := context.Background()
	s, closer := newTestSQLStore(t)
	defer closer()

	t.Run("empty ledger starts at one", func(t *testing.T) {
		batch, err := s.NextBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, batch)
	})

	t.Run("next batch is max plus one", func(t *testing.T) {
		require.NoError(t, s.Record(ctx, "a", 1))
		require.NoError(t, s.Record(ctx, "b", 7))

		batch, err := s.NextBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 8, batch)
	})
}

func Test_DialectsProvideLedgerCreation(t *testing.T) {
	tt := []struct {
		flavor   adapter.Flavor
		contains string
	}{
		{flavor: adapter.MySQL, contains: "AUTO_INCREMENT"},
		{flavor: adapter.Postgres, contains: "BIGSERIAL"},
		{flavor: adapter.SQLite, contains: "AUTOINCREMENT"},
	}

	for _, tc := range tt {
		t.Run(string(tc.flavor), func(t *testing.T) {
			d, err := dialectFor(tc.flavor)
			require.NoError(t, err)

			q := d.createLedgerQuery("migrations")
			assert.Contains(t, q, "CREATE TABLE IF NOT EXISTS migrations")
			assert.Contains(t, q, tc.contains)
			assert.Contains(t, q, "UNIQUE")
		})
	}

	t.Run("document flavor has no sql dialect", func(t *testing.T) {
		_, err := dialectFor(adapter.Document)
		assert.Error(t, err)
	})
}
