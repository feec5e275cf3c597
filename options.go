package strata

import (
	"github.com/strata-db/strata/internal/logger"
	"github.com/strata-db/strata/internal/source"
	"github.com/strata-db/strata/migration"
)

type OptionFunc func(*Migrator) error

func UseColorLogger(p logger.Printer, printSQL, printDebug bool) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewColorLogger(p, printSQL, printDebug)
		return nil
	}
}

func UseLogger(p logger.Printer, printSQL, printDebug bool) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewBWLogger(p, printSQL, printDebug)
		return nil
	}
}

// UseLocalDir points discovery and Create at dir instead of the
// default ./migrations.
func UseLocalDir(dir string) OptionFunc {
	return func(m *Migrator) error {
		m.dir = dir
		return nil
	}
}

// UseLedger overrides the ledger table or collection name.
func UseLedger(name string) OptionFunc {
	return func(m *Migrator) error {
		m.ledger = name
		return nil
	}
}

// UsePackageName sets the package clause stamped into generated
// artifacts.
func UsePackageName(name string) OptionFunc {
	return func(m *Migrator) error {
		m.pkg = name
		return nil
	}
}

// UseUnits serves the given units directly, bypassing filesystem
// discovery and the global registry.
func UseUnits(units ...*migration.Unit) OptionFunc {
	return func(m *Migrator) error {
		inmem := source.NewInMemory(units...)
		m.src = inmem
		m.loader = inmem
		return nil
	}
}

// UseLoader overrides how discovered artifacts resolve to executable
// units. Defaults to the process-global registry generated artifacts
// register into.
func UseLoader(l migration.Loader) OptionFunc {
	return func(m *Migrator) error {
		m.loader = l
		return nil
	}
}
