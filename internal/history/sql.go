package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/strata-db/strata/adapter"
	"github.com/strata-db/strata/internal/logger"
)

type sqlStore struct {
	db    adapter.Relational
	d     dialect
	table string
	lg    logger.Logger
	clock func() time.Time

	mu    sync.Mutex
	ready bool
}

var _ Store = (*sqlStore)(nil)

func newSQLStore(db adapter.Relational, d dialect, table string, lg logger.Logger) *sqlStore {
	return &sqlStore{
		db:    db,
		d:     d,
		table: table,
		lg:    lg,
		clock: time.Now,
	}
}

// ensure lazily creates the ledger table once per store lifetime.
func (s *sqlStore) ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}

	query := s.d.createLedgerQuery(s.table)
	s.lg.SQL(query)

	if _, err := s.db.Exec(ctx, query); err != nil {
		return errors.Wrapf(err, "could not create ledger table [%s]", s.table)
	}

	s.ready = true

	return nil
}

func (s *sqlStore) Executed(ctx context.Context) ([]Entry, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT name, batch, executed_at FROM %s ORDER BY executed_at ASC", s.table)
	s.lg.SQL(query)

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read executed migrations from [%s]", s.table)
	}

	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.Batch, &e.ExecutedAt); err != nil {
			return nil, errors.Wrapf(err, "could not scan ledger row from [%s]", s.table)
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "ledger iteration over [%s] failed", s.table)
	}

	return entries, nil
}

func (s *sqlStore) Record(ctx context.Context, name string, batch int) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}

	query := fmt.Sprintf("INSERT INTO %s (name, batch, executed_at) VALUES (?, ?, ?)", s.table)
	executedAt := s.clock().UTC()
	s.lg.SQL(query, name, batch, executedAt)

	if _, err := s.db.Exec(ctx, query, name, batch, executedAt); err != nil {
		return errors.Wrapf(err, "could not record migration [%s] in batch [%d]", name, batch)
	}

	return nil
}

func (s *sqlStore) Remove(ctx context.Context, name string) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE name = ?", s.table)
	s.lg.SQL(query, name)

	if _, err := s.db.Exec(ctx, query, name); err != nil {
		return errors.Wrapf(err, "could not remove migration [%s] from ledger", name)
	}

	return nil
}

func (s *sqlStore) NextBatch(ctx context.Context) (int, error) {
	if err := s.ensure(ctx); err != nil {
		return 0, err
	}

	query := fmt.Sprintf("SELECT COALESCE(MAX(batch), 0) FROM %s", s.table)
	s.lg.SQL(query)

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return 0, errors.Wrapf(err, "could not compute next batch for [%s]", s.table)
	}

	defer rows.Close()

	var max int
	if rows.Next() {
		if err := rows.Scan(&max); err != nil {
			return 0, errors.Wrapf(err, "could not scan max batch of [%s]", s.table)
		}
	}

	if err := rows.Err(); err != nil {
		return 0, errors.Wrapf(err, "max batch query over [%s] failed", s.table)
	}

	return max + 1, nil
}
