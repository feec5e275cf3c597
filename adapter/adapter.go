package adapter

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

var ErrUnknownFlavor = errors.New("unknown database flavor")
var ErrWrongFamily = errors.New("adapter belongs to a different backend family")

// Flavor identifies the backend a migration target runs on.
// It is a closed set: anything else is rejected before any
// ledger or schema access happens.
type Flavor string

const (
	MySQL    Flavor = "mysql"
	Postgres Flavor = "postgres"
	SQLite   Flavor = "sqlite"
	Document Flavor = "document"
)

func (f Flavor) Known() bool {
	switch f {
	case MySQL, Postgres, SQLite, Document:
		return true
	}

	return false
}

func (f Flavor) Relational() bool {
	switch f {
	case MySQL, Postgres, SQLite:
		return true
	}

	return false
}

// Adapter is the capability migrations and the history ledger
// operate against. Concrete adapters additionally satisfy either
// Relational or Doc depending on their declared flavor.
type Adapter interface {
	Flavor() Flavor
}

type Relational interface {
	Adapter

	Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Doc is the document store capability. Exec runs a named write
// operation (createCollection, insertOne, deleteOne) against a
// collection, Query runs a filtered find.
type Doc interface {
	Adapter

	Exec(ctx context.Context, operation, collection string, payload map[string]interface{}) error
	Query(ctx context.Context, collection string, filter map[string]interface{}, opts QueryOptions) ([]map[string]interface{}, error)
}

type QueryOptions struct {
	SortBy     string
	Descending bool
	Limit      int
}

// SQL narrows a to its relational capability.
func SQL(a Adapter) (Relational, error) {
	rel, ok := a.(Relational)
	if !ok || !a.Flavor().Relational() {
		return nil, errors.Wrapf(ErrWrongFamily, "[%s] is not a relational adapter", a.Flavor())
	}

	return rel, nil
}

// Docs narrows a to its document capability.
func Docs(a Adapter) (Doc, error) {
	doc, ok := a.(Doc)
	if !ok || a.Flavor() != Document {
		return nil, errors.Wrapf(ErrWrongFamily, "[%s] is not a document adapter", a.Flavor())
	}

	return doc, nil
}
