package adapter

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// SQLAdapter wraps an sqlx connection pool as a relational adapter.
// Queries are written with ? placeholders and rebound to the
// driver's native bindvar style, so the same statements work on
// MySQL, Postgres and SQLite.
type SQLAdapter struct {
	db     *sqlx.DB
	flavor Flavor
}

var _ Relational = (*SQLAdapter)(nil)

func NewSQL(db *sqlx.DB, flavor Flavor) (*SQLAdapter, error) {
	if !flavor.Known() {
		return nil, errors.Wrapf(ErrUnknownFlavor, "[%s]", flavor)
	}

	if !flavor.Relational() {
		return nil, errors.Wrapf(ErrWrongFamily, "[%s] cannot back a relational adapter", flavor)
	}

	return &SQLAdapter{db: db, flavor: flavor}, nil
}

func (a *SQLAdapter) Flavor() Flavor {
	return a.flavor
}

func (a *SQLAdapter) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return a.db.ExecContext(ctx, a.db.Rebind(query), args...)
}

func (a *SQLAdapter) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return a.db.QueryContext(ctx, a.db.Rebind(query), args...)
}

// DB exposes the underlying pool for callers that own its lifecycle.
func (a *SQLAdapter) DB() *sqlx.DB {
	return a.db
}
