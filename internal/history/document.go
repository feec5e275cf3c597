package history

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/strata-db/strata/adapter"
	"github.com/strata-db/strata/internal/logger"
)

var ErrMalformedLedgerDocument = errors.New("malformed ledger document")

type docStore struct {
	db         adapter.Doc
	collection string
	lg         logger.Logger
	clock      func() time.Time

	mu    sync.Mutex
	ready bool
}

var _ Store = (*docStore)(nil)

func newDocStore(db adapter.Doc, collection string, lg logger.Logger) *docStore {
	return &docStore{
		db:         db,
		collection: collection,
		lg:         lg,
		clock:      time.Now,
	}
}

// ensure probes the ledger collection once and creates it when the
// probe fails.
func (s *docStore) ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}

	if _, err := s.db.Query(ctx, s.collection, nil, adapter.QueryOptions{Limit: 1}); err != nil {
		s.lg.Debugf("creating ledger collection [%s]", s.collection)

		if cErr := s.db.Exec(ctx, adapter.OpCreateCollection, s.collection, nil); cErr != nil {
			return errors.Wrapf(cErr, "could not create ledger collection [%s]", s.collection)
		}
	}

	s.ready = true

	return nil
}

func (s *docStore) Executed(ctx context.Context) ([]Entry, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}

	docs, err := s.db.Query(ctx, s.collection, nil, adapter.QueryOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "could not read executed migrations from [%s]", s.collection)
	}

	var entries []Entry
	for i := range docs {
		e, err := toEntry(docs[i])
		if err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	return entries, nil
}

func (s *docStore) Record(ctx context.Context, name string, batch int) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}

	doc := map[string]interface{}{
		"name":       name,
		"batch":      batch,
		"executedAt": s.clock().UTC(),
	}

	if err := s.db.Exec(ctx, adapter.OpInsertOne, s.collection, doc); err != nil {
		return errors.Wrapf(err, "could not record migration [%s] in batch [%d]", name, batch)
	}

	return nil
}

func (s *docStore) Remove(ctx context.Context, name string) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}

	filter := map[string]interface{}{"name": name}

	if err := s.db.Exec(ctx, adapter.OpDeleteOne, s.collection, filter); err != nil {
		return errors.Wrapf(err, "could not remove migration [%s] from ledger", name)
	}

	return nil
}

func (s *docStore) NextBatch(ctx context.Context) (int, error) {
	if err := s.ensure(ctx); err != nil {
		return 0, err
	}

	docs, err := s.db.Query(ctx, s.collection, nil, adapter.QueryOptions{
		SortBy:     "batch",
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		return 0, errors.Wrapf(err, "could not compute next batch for [%s]", s.collection)
	}

	if len(docs) == 0 {
		return 1, nil
	}

	e, err := toEntry(docs[0])
	if err != nil {
		return 0, err
	}

	return e.Batch + 1, nil
}

func toEntry(doc map[string]interface{}) (Entry, error) {
	var e Entry

	name, ok := doc["name"].(string)
	if !ok {
		return e, errors.Wrapf(ErrMalformedLedgerDocument, "name is missing in %v", doc)
	}
	e.Name = name

	batch, ok := toInt(doc["batch"])
	if !ok {
		return e, errors.Wrapf(ErrMalformedLedgerDocument, "batch is missing in %v", doc)
	}
	e.Batch = batch

	if executedAt, ok := doc["executedAt"].(time.Time); ok {
		e.ExecutedAt = executedAt
	}

	return e, nil
}

// toInt tolerates the numeric types document drivers round-trip
// integers through.
func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}

	return 0, false
}
