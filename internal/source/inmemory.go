package source

import (
	"context"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/strata-db/strata/migration"
)

// InMemory serves units directly, acting both as discovery and as
// loader. Used by tests and by embedders that compile their
// migrations in without a migrations directory.
type InMemory struct {
	units migration.Units
}

var _ Source = (*InMemory)(nil)
var _ migration.Loader = (*InMemory)(nil)

func NewInMemory(units ...*migration.Unit) *InMemory {
	return &InMemory{units: units}
}

func (s *InMemory) Select(ctx context.Context) (migration.Refs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var refs migration.Refs
	for i := range s.units {
		refs = append(refs, migration.Ref{
			Version: s.units[i].Version,
			Name:    s.units[i].Name,
			File:    strconv.FormatInt(s.units[i].Version, 10) + "_" + s.units[i].Name + migration.Extension,
		})
	}

	sort.Sort(refs)

	return refs, nil
}

func (s *InMemory) Load(name string) (*migration.Unit, error) {
	for i := range s.units {
		if s.units[i].Name == name {
			return s.units[i], nil
		}
	}

	return nil, errors.Wrapf(migration.ErrNotRegistered, "[%s]", name)
}
