package history

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/adapter"
)

// the server-lock driver emulates MySQL's GET_LOCK/RELEASE_LOCK and
// the Postgres advisory functions on top of sqlite, so the lockers
// can be exercised without a live server
var (
	serverLockMu   sync.Mutex
	serverLockHeld = map[string]bool{}
)

func acquireServerLock(key string, timeout int64) int64 {
	serverLockMu.Lock()
	defer serverLockMu.Unlock()

	if serverLockHeld[key] {
		return 0
	}

	serverLockHeld[key] = true
	return 1
}

func releaseServerLock(key string) int64 {
	serverLockMu.Lock()
	defer serverLockMu.Unlock()

	if !serverLockHeld[key] {
		return 0
	}

	delete(serverLockHeld, key)
	return 1
}

func init() {
	sql.Register("sqlite3_server_locks", &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterFunc("GET_LOCK", acquireServerLock, false); err != nil {
				return err
			}
			if err := conn.RegisterFunc("RELEASE_LOCK", releaseServerLock, false); err != nil {
				return err
			}
			if err := conn.RegisterFunc("pg_advisory_lock", func(key int64) int64 { return 1 }, false); err != nil {
				return err
			}
			return conn.RegisterFunc("pg_advisory_unlock", func(key int64) int64 { return 1 }, false)
		},
	})
}

func newServerLockAdapter(t *testing.T, flavor adapter.Flavor) (*adapter.SQLAdapter, func()) {
	t.Helper()

	db, err := sqlx.Open("sqlite3_server_locks", ":memory:")
	require.NoError(t, err)

	a, err := adapter.NewSQL(db, flavor)
	require.NoError(t, err)

	return a, func() { _ = db.Close() }
}

func Test_DocLockerIsExclusive(t *testing.T) {
	ctx := context.Background()
	db := adapter.NewMemoryDoc()

	first, err := NewLocker(db, "migrations_lock")
	require.NoError(t, err)

	second, err := NewLocker(db, "migrations_lock")
	require.NoError(t, err)

	require.NoError(t, first.Lock(ctx))

	// the sentinel document is already held
	assert.Error(t, second.Lock(ctx))

	require.NoError(t, first.Unlock(ctx))
	assert.NoError(t, second.Lock(ctx))
	assert.NoError(t, second.Unlock(ctx))
}

func Test_MySQLLockerRefusesContendedLock(t *testing.T) {
	a, closer := newServerLockAdapter(t, adapter.MySQL)
	defer closer()

	first, err := NewLocker(a, "contended_lock")
	require.NoError(t, err)

	second, err := NewLocker(a, "contended_lock")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, first.Lock(ctx))

	// GET_LOCK answers 0 on a held lock with no driver error; the
	// contender must not proceed as if it held the lock
	err = second.Lock(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockNotAcquired))

	require.NoError(t, first.Unlock(ctx))
	assert.NoError(t, second.Lock(ctx))
	assert.NoError(t, second.Unlock(ctx))
}

func Test_MySQLLockerPinsOneSession(t *testing.T) {
	a, closer := newServerLockAdapter(t, adapter.MySQL)
	defer closer()

	l, err := NewLocker(a, "pinned_mysql_lock")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, l.Lock(ctx))

	// RELEASE_LOCK only works on the acquiring session, so the
	// connection stays reserved between Lock and Unlock
	assert.Equal(t, 1, a.DB().Stats().InUse)

	require.NoError(t, l.Unlock(ctx))
	assert.Equal(t, 0, a.DB().Stats().InUse)

	// unlock without a held lock is a no-op
	assert.NoError(t, l.Unlock(ctx))
}

func Test_PostgresLockerPinsOneSession(t *testing.T) {
	a, closer := newServerLockAdapter(t, adapter.Postgres)
	defer closer()

	l, err := NewLocker(a, "pinned_pg_lock")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, l.Lock(ctx))

	// pg_advisory_unlock on another session warns and returns false,
	// so the acquiring connection stays reserved until Unlock
	assert.Equal(t, 1, a.DB().Stats().InUse)

	require.NoError(t, l.Unlock(ctx))
	assert.Equal(t, 0, a.DB().Stats().InUse)

	assert.NoError(t, l.Unlock(ctx))
}

func Test_SQLiteLockerIsNoOp(t *testing.T) {
	s, closer := newTestSQLStore(t)
	defer closer()

	l, err := NewLocker(s.db.(*adapter.SQLAdapter), "migrations_lock")
	require.NoError(t, err)

	ctx := context.Background()
	assert.NoError(t, l.Lock(ctx))
	assert.NoError(t, l.Lock(ctx))
	assert.NoError(t, l.Unlock(ctx))
}

func Test_AdvisoryKeyIsStable(t *testing.T) {
	assert.Equal(t, advisoryKey("migrations_lock"), advisoryKey("migrations_lock"))
	assert.NotEqual(t, advisoryKey("migrations_lock"), advisoryKey("other_lock"))
}
