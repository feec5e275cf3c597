package strata

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/strata-db/strata/adapter"
	"github.com/strata-db/strata/internal/history"
	"github.com/strata-db/strata/internal/logger"
	"github.com/strata-db/strata/internal/source"
	"github.com/strata-db/strata/migration"
)

var ErrAdapterNotInitialized = errors.New("database adapter has not been initialized")
var ErrSourceNotWritable = errors.New("migration source cannot create artifacts")
var ErrInvalidMigrationName = errors.New("invalid migration name")

// MigrationStatus is one row of the Status report: the union of what
// is on disk and what the ledger says.
type MigrationStatus struct {
	Name       string
	File       string
	Version    int64
	Applied    bool
	Batch      int
	ExecutedAt time.Time
}

// Migrator applies pending migrations in creation order, records
// them in the history ledger grouped by batch, and rolls back the
// most recent ones. It is safe against repeated invocation; a whole
// invocation runs under an advisory lock.
type Migrator struct {
	lg     logger.Logger
	a      adapter.Adapter
	store  history.Store
	lock   history.Locker
	src    source.Source
	loader migration.Loader
	dir    string
	ledger string
	pkg    string
	clock  func() time.Time
}

// NewMigrator builds a migrator over the given adapter. The adapter's
// declared flavor selects the ledger implementation and the locker
// once, up front; an unknown flavor fails here, before any ledger or
// schema access.
func NewMigrator(a adapter.Adapter, opts ...OptionFunc) (*Migrator, error) {
	if a == nil {
		return nil, ErrAdapterNotInitialized
	}

	if !a.Flavor().Known() {
		return nil, errors.Wrapf(adapter.ErrUnknownFlavor, "[%s]", a.Flavor())
	}

	m := &Migrator{
		lg:     &logger.NullLogger{},
		a:      a,
		dir:    source.DefaultMigrationsDir,
		ledger: history.DefaultLedgerName,
		pkg:    "migrations",
		clock:  time.Now,
	}

	for _, oFunc := range opts {
		if err := oFunc(m); err != nil {
			return nil, err
		}
	}

	if m.src == nil {
		m.src = source.NewLocalDir(m.dir, m.lg)
	}

	if m.loader == nil {
		m.loader = migration.DefaultRegistry()
	}

	store, err := history.New(a, m.ledger, m.lg)
	if err != nil {
		return nil, err
	}
	m.store = store

	lock, err := history.NewLocker(a, m.ledger+"_lock")
	if err != nil {
		return nil, err
	}
	m.lock = lock

	return m, nil
}

// Migrate applies every pending migration, oldest first, under one
// batch number. WithSteps truncates the run. Returns the keys of the
// migrations that were applied, including the ones applied before a
// failure: each unit's own success is the unit of ledger atomicity,
// there is no whole-batch transaction.
func (m *Migrator) Migrate(ctx context.Context, cfs ...ActionConfigurator) ([]string, error) {
	act := new(action)
	for _, f := range cfs {
		f(act)
	}

	if err := m.lock.Lock(ctx); err != nil {
		return nil, errors.Wrap(err, "could not acquire migration lock")
	}

	migrated, err := m.migrate(ctx, act)

	if uErr := m.lock.Unlock(ctx); uErr != nil {
		if err == nil {
			err = uErr
		} else {
			err = errors.Wrap(err, uErr.Error())
		}
	}

	if err != nil {
		m.lg.Error(err)
		return migrated, err
	}

	return migrated, nil
}

func (m *Migrator) migrate(ctx context.Context, act *action) ([]string, error) {
	refs, err := m.src.Select(ctx)
	if err != nil {
		return nil, err
	}

	executed, err := m.executedByName(ctx)
	if err != nil {
		return nil, err
	}

	var pending migration.Refs
	for i := range refs {
		if _, ok := executed[refs[i].Name]; !ok {
			pending = append(pending, refs[i])
		}
	}

	if len(pending) == 0 {
		m.lg.Debugf("nothing to migrate")
		return nil, nil
	}

	if act.steps > 0 && len(pending) > act.steps {
		pending = pending[:act.steps]
	}

	m.lg.Debugf("pending: %v", pending.Names())

	// one batch number for every unit of this invocation
	batch, err := m.store.NextBatch(ctx)
	if err != nil {
		return nil, err
	}

	var migrated []string
	for i := range pending {
		unit, err := m.loader.Load(pending[i].Name)
		if err != nil {
			return migrated, errors.Wrapf(err, "could not load migration [%s]", pending[i].File)
		}

		if err := unit.Up(ctx, m.a); err != nil {
			return migrated, errors.Wrapf(err, "migration [%s] failed", pending[i].Key())
		}

		// the schema change above and this ledger insert are two
		// separate statements; Status is the reconciliation path if
		// the process dies between them
		if err := m.store.Record(ctx, pending[i].Name, batch); err != nil {
			return migrated, errors.Wrapf(err, "could not record migration [%s]", pending[i].Key())
		}

		m.lg.Successf("migrated: %s (batch %d)", pending[i].Key(), batch)

		migrated = append(migrated, pending[i].Key())
	}

	return migrated, nil
}

// Rollback reverses the most recent applied migrations, newest
// first, one by default. The default order is creation time;
// ByAppliedOrder switches to ledger application time.
func (m *Migrator) Rollback(ctx context.Context, cfs ...ActionConfigurator) ([]string, error) {
	act := &action{steps: 1}
	for _, f := range cfs {
		f(act)
	}

	if err := m.lock.Lock(ctx); err != nil {
		return nil, errors.Wrap(err, "could not acquire migration lock")
	}

	rolledBack, err := m.rollback(ctx, act)

	if uErr := m.lock.Unlock(ctx); uErr != nil {
		if err == nil {
			err = uErr
		} else {
			err = errors.Wrap(err, uErr.Error())
		}
	}

	if err != nil {
		m.lg.Error(err)
		return rolledBack, err
	}

	return rolledBack, nil
}

func (m *Migrator) rollback(ctx context.Context, act *action) ([]string, error) {
	refs, err := m.src.Select(ctx)
	if err != nil {
		return nil, err
	}

	executed, err := m.executedByName(ctx)
	if err != nil {
		return nil, err
	}

	if len(executed) == 0 {
		m.lg.Debugf("nothing to rollback")
		return nil, nil
	}

	var applied migration.Refs
	for i := range refs {
		if _, ok := executed[refs[i].Name]; ok {
			applied = append(applied, refs[i])
		}
	}

	if act.byApplied {
		sort.SliceStable(applied, func(i, j int) bool {
			ei, ej := executed[applied[i].Name], executed[applied[j].Name]
			if ei.ExecutedAt.Equal(ej.ExecutedAt) {
				return applied[i].Version > applied[j].Version
			}
			return ei.ExecutedAt.After(ej.ExecutedAt)
		})
	} else {
		sort.SliceStable(applied, func(i, j int) bool {
			return applied[i].Version > applied[j].Version
		})
	}

	if act.steps > 0 && len(applied) > act.steps {
		applied = applied[:act.steps]
	}

	var rolledBack []string
	for i := range applied {
		unit, err := m.loader.Load(applied[i].Name)
		if err != nil {
			return rolledBack, errors.Wrapf(err, "could not load migration [%s]", applied[i].File)
		}

		if err := unit.Down(ctx, m.a); err != nil {
			return rolledBack, errors.Wrapf(err, "rollback of [%s] failed", applied[i].Key())
		}

		if err := m.store.Remove(ctx, applied[i].Name); err != nil {
			return rolledBack, errors.Wrapf(err, "could not remove migration [%s] from ledger", applied[i].Key())
		}

		m.lg.Successf("rolled back: %s", applied[i].Key())

		rolledBack = append(rolledBack, applied[i].Key())
	}

	return rolledBack, nil
}

// Refresh rolls back every applied migration and then migrates the
// whole set again, all under one lock.
func (m *Migrator) Refresh(ctx context.Context) ([]string, []string, error) {
	if err := m.lock.Lock(ctx); err != nil {
		return nil, nil, errors.Wrap(err, "could not acquire migration lock")
	}

	rolledBack, err := m.rollback(ctx, &action{})
	var migrated []string
	if err == nil {
		migrated, err = m.migrate(ctx, &action{})
	}

	if uErr := m.lock.Unlock(ctx); uErr != nil {
		if err == nil {
			err = uErr
		} else {
			err = errors.Wrap(err, uErr.Error())
		}
	}

	if err != nil {
		m.lg.Error(err)
		return rolledBack, migrated, err
	}

	return rolledBack, migrated, nil
}

// Status reports the union of on-disk artifacts and ledger entries
// sorted by ascending version, each flagged with whether it has been
// applied and, when applied, the persisted batch and timestamp.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	refs, err := m.src.Select(ctx)
	if err != nil {
		return nil, err
	}

	executed, err := m.executedByName(ctx)
	if err != nil {
		return nil, err
	}

	var result []MigrationStatus
	seen := make(map[string]bool, len(refs))

	for i := range refs {
		st := MigrationStatus{
			Name:    refs[i].Name,
			File:    refs[i].File,
			Version: refs[i].Version,
		}

		if e, ok := executed[refs[i].Name]; ok {
			st.Applied = true
			st.Batch = e.Batch
			st.ExecutedAt = e.ExecutedAt
		}

		seen[refs[i].Name] = true
		result = append(result, st)
	}

	// ledger entries whose artifact disappeared from disk
	for name, e := range executed {
		if !seen[name] {
			result = append(result, MigrationStatus{
				Name:       name,
				Applied:    true,
				Batch:      e.Batch,
				ExecutedAt: e.ExecutedAt,
			})
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Version == result[j].Version {
			return result[i].Name < result[j].Name
		}
		return result[i].Version < result[j].Version
	})

	return result, nil
}

// Create writes a new migration artifact and returns its path. The
// boilerplate is chosen by the explicit flavor when given, otherwise
// by the adapter's declared flavor. Create never touches the ledger.
func (m *Migrator) Create(name string, flavors ...adapter.Flavor) (string, error) {
	creator, ok := m.src.(source.Creator)
	if !ok {
		return "", ErrSourceNotWritable
	}

	sanitized := migration.Sanitize(name)
	if sanitized == "" {
		return "", errors.Wrapf(ErrInvalidMigrationName, "[%s]", name)
	}

	flavor := m.a.Flavor()
	if len(flavors) > 0 {
		flavor = flavors[0]
	}

	if !flavor.Known() {
		return "", errors.Wrapf(adapter.ErrUnknownFlavor, "[%s]", flavor)
	}

	now := m.clock()

	contents, err := migration.Render(flavor.Relational(), migration.TemplateData{
		Package:   m.pkg,
		Version:   now.UnixNano() / int64(time.Millisecond),
		Name:      sanitized,
		ClassName: migration.ClassName(sanitized),
	})
	if err != nil {
		return "", err
	}

	path, err := creator.Create(sanitized, contents, now)
	if err != nil {
		return "", err
	}

	m.lg.Successf("created: %s", path)

	return path, nil
}

func (m *Migrator) executedByName(ctx context.Context) (map[string]history.Entry, error) {
	entries, err := m.store.Executed(ctx)
	if err != nil {
		return nil, err
	}

	executed := make(map[string]history.Entry, len(entries))
	for i := range entries {
		executed[entries[i].Name] = entries[i]
	}

	return executed, nil
}
