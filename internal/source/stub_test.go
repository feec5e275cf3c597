package source

import (
	"context"

	"github.com/strata-db/strata/adapter"
	"github.com/strata-db/strata/migration"
)

func unitStub(version int64, name string) *migration.Unit {
	return &migration.Unit{
		Version: version,
		Name:    name,
		Up: func(ctx context.Context, a adapter.Adapter) error {
			return nil
		},
		Down: func(ctx context.Context, a adapter.Adapter) error {
			return nil
		},
	}
}
