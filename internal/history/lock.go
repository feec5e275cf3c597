package history

import (
	"context"
	"database/sql"
	"hash/fnv"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/strata-db/strata/adapter"
)

const DefaultLockKey = "strata_migrations"
const defaultLockSeconds = 3

var ErrLockNotAcquired = errors.New("another process holds the migration lock")

// Locker guards a whole Migrate or Rollback invocation against
// concurrent invocations from other processes. The ledger's unique
// constraint alone cannot stop a racing writer's schema change from
// having already run.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

func NewLocker(a adapter.Adapter, key string) (Locker, error) {
	switch a.Flavor() {
	case adapter.MySQL:
		pool, err := sqlPool(a)
		if err != nil {
			return nil, err
		}
		return &mysqlLocker{pool: pool, key: key, lockFor: defaultLockSeconds}, nil
	case adapter.Postgres:
		pool, err := sqlPool(a)
		if err != nil {
			return nil, err
		}
		return &postgresLocker{pool: pool, key: advisoryKey(key)}, nil
	case adapter.SQLite:
		// single-writer file database
		return nullLocker{}, nil
	case adapter.Document:
		docs, err := adapter.Docs(a)
		if err != nil {
			return nil, err
		}
		return &docLocker{db: docs, collection: key}, nil
	}

	return nil, errors.Wrapf(adapter.ErrUnknownFlavor, "no locker for [%s]", a.Flavor())
}

// GET_LOCK and pg_advisory_lock are session scoped: the release must
// run on the very connection that acquired, so the lockers pin one
// connection from the pool for the whole Lock/Unlock span instead of
// issuing each statement through the pool.
func sqlPool(a adapter.Adapter) (*sqlx.DB, error) {
	p, ok := a.(interface{ DB() *sqlx.DB })
	if !ok {
		return nil, errors.Wrapf(adapter.ErrWrongFamily, "[%s] adapter does not expose its connection pool", a.Flavor())
	}

	return p.DB(), nil
}

type nullLocker struct{}

func (nullLocker) Lock(_ context.Context) error   { return nil }
func (nullLocker) Unlock(_ context.Context) error { return nil }

type mysqlLocker struct {
	pool    *sqlx.DB
	conn    *sql.Conn
	key     string
	lockFor int
}

func (l *mysqlLocker) Lock(ctx context.Context) error {
	conn, err := l.pool.Conn(ctx)
	if err != nil {
		return errors.Wrapf(err, "could not reserve a session for the [%s] MySQL lock", l.key)
	}

	var acquired sql.NullInt64
	row := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", l.key, l.lockFor)
	if err := row.Scan(&acquired); err != nil {
		_ = conn.Close()
		return errors.Wrapf(err, "could not obtain [%s] exclusive MySQL lock for [%d] seconds", l.key, l.lockFor)
	}

	// 0 means the wait timed out on a contended lock, NULL means the
	// server could not take it; neither is a driver error
	if !acquired.Valid || acquired.Int64 != 1 {
		_ = conn.Close()
		return errors.Wrapf(ErrLockNotAcquired, "[%s] after [%d] seconds", l.key, l.lockFor)
	}

	l.conn = conn

	return nil
}

func (l *mysqlLocker) Unlock(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}

	_, err := l.conn.ExecContext(ctx, "SELECT RELEASE_LOCK(?)", l.key)
	if cErr := l.conn.Close(); err == nil {
		err = cErr
	}
	l.conn = nil

	if err != nil {
		return errors.Wrapf(err, "could not release [%s] exclusive MySQL lock", l.key)
	}

	return nil
}

type postgresLocker struct {
	pool *sqlx.DB
	conn *sql.Conn
	key  int64
}

func (l *postgresLocker) Lock(ctx context.Context) error {
	conn, err := l.pool.Conn(ctx)
	if err != nil {
		return errors.Wrapf(err, "could not reserve a session for the [%d] advisory Postgres lock", l.key)
	}

	if _, err := conn.ExecContext(ctx, l.pool.Rebind("SELECT pg_advisory_lock(?)"), l.key); err != nil {
		_ = conn.Close()
		return errors.Wrapf(err, "could not obtain [%d] advisory Postgres lock", l.key)
	}

	l.conn = conn

	return nil
}

func (l *postgresLocker) Unlock(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}

	_, err := l.conn.ExecContext(ctx, l.pool.Rebind("SELECT pg_advisory_unlock(?)"), l.key)
	if cErr := l.conn.Close(); err == nil {
		err = cErr
	}
	l.conn = nil

	if err != nil {
		return errors.Wrapf(err, "could not release [%d] advisory Postgres lock", l.key)
	}

	return nil
}

// docLocker holds the lock as a sentinel document: the insert
// succeeds for exactly one writer thanks to the unique name key.
type docLocker struct {
	db         adapter.Doc
	collection string
}

func (l *docLocker) Lock(ctx context.Context) error {
	doc := map[string]interface{}{"name": "lock"}

	err := l.db.Exec(ctx, adapter.OpInsertOne, l.collection, doc)
	if err == nil {
		return nil
	}

	// first use: the lock collection may not exist yet
	if cErr := l.db.Exec(ctx, adapter.OpCreateCollection, l.collection, nil); cErr != nil {
		return errors.Wrapf(err, "could not obtain document lock in [%s]", l.collection)
	}

	if err := l.db.Exec(ctx, adapter.OpInsertOne, l.collection, doc); err != nil {
		return errors.Wrapf(err, "could not obtain document lock in [%s]", l.collection)
	}

	return nil
}

func (l *docLocker) Unlock(ctx context.Context) error {
	filter := map[string]interface{}{"name": "lock"}

	if err := l.db.Exec(ctx, adapter.OpDeleteOne, l.collection, filter); err != nil {
		return errors.Wrapf(err, "could not release document lock in [%s]", l.collection)
	}

	return nil
}

func advisoryKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
