package history

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/strata-db/strata/adapter"
	"github.com/strata-db/strata/internal/logger"
)

const DefaultLedgerName = "migrations"

// Entry is the durable record of one applied migration. An entry
// exists iff the named unit has been applied and not rolled back.
type Entry struct {
	Name       string
	Batch      int
	ExecutedAt time.Time
}

// Store is the backend-agnostic migration ledger. Record and Remove
// are single atomic ledger statements; the unique constraint on name
// is the at-most-once enforcement, not a pre-check.
type Store interface {
	Executed(ctx context.Context) ([]Entry, error)
	Record(ctx context.Context, name string, batch int) error
	Remove(ctx context.Context, name string) error
	NextBatch(ctx context.Context) (int, error)
}

// New selects the concrete store once, from the adapter's declared
// flavor. ledger is the table or collection name.
func New(a adapter.Adapter, ledger string, lg logger.Logger) (Store, error) {
	flavor := a.Flavor()

	if flavor.Relational() {
		rel, err := adapter.SQL(a)
		if err != nil {
			return nil, err
		}

		d, err := dialectFor(flavor)
		if err != nil {
			return nil, err
		}

		return newSQLStore(rel, d, ledger, lg), nil
	}

	if flavor == adapter.Document {
		docs, err := adapter.Docs(a)
		if err != nil {
			return nil, err
		}

		return newDocStore(docs, ledger, lg), nil
	}

	return nil, errors.Wrapf(adapter.ErrUnknownFlavor, "[%s]", flavor)
}
