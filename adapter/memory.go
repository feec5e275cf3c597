package adapter

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var ErrNoCollection = errors.New("collection does not exist")
var ErrDuplicateKey = errors.New("duplicate key")
var ErrUnknownOperation = errors.New("unknown document operation")

const (
	OpCreateCollection = "createCollection"
	OpInsertOne        = "insertOne"
	OpDeleteOne        = "deleteOne"
)

// MemoryDoc is an in-process document adapter. It backs tests and
// serves as the reference for what the engine expects from a real
// document store driver: named write operations, filtered finds and
// a unique constraint on the name field.
type MemoryDoc struct {
	mu          sync.RWMutex
	collections map[string][]map[string]interface{}
}

var _ Doc = (*MemoryDoc)(nil)

func NewMemoryDoc() *MemoryDoc {
	return &MemoryDoc{
		collections: make(map[string][]map[string]interface{}),
	}
}

func (m *MemoryDoc) Flavor() Flavor {
	return Document
}

func (m *MemoryDoc) Exec(ctx context.Context, operation, collection string, payload map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch operation {
	case OpCreateCollection:
		if _, ok := m.collections[collection]; !ok {
			m.collections[collection] = nil
		}
		return nil
	case OpInsertOne:
		return m.insertOne(collection, payload)
	case OpDeleteOne:
		return m.deleteOne(collection, payload)
	}

	return errors.Wrapf(ErrUnknownOperation, "[%s]", operation)
}

func (m *MemoryDoc) insertOne(collection string, doc map[string]interface{}) error {
	docs, ok := m.collections[collection]
	if !ok {
		return errors.Wrapf(ErrNoCollection, "[%s]", collection)
	}

	if name, ok := doc["name"]; ok {
		for i := range docs {
			if docs[i]["name"] == name {
				return errors.Wrapf(ErrDuplicateKey, "name [%v] already exists in [%s]", name, collection)
			}
		}
	}

	copied := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		copied[k] = v
	}

	m.collections[collection] = append(docs, copied)

	return nil
}

func (m *MemoryDoc) deleteOne(collection string, filter map[string]interface{}) error {
	docs, ok := m.collections[collection]
	if !ok {
		return errors.Wrapf(ErrNoCollection, "[%s]", collection)
	}

	for i := range docs {
		if matches(docs[i], filter) {
			m.collections[collection] = append(docs[:i:i], docs[i+1:]...)
			return nil
		}
	}

	return nil
}

func (m *MemoryDoc) Query(
	ctx context.Context,
	collection string,
	filter map[string]interface{},
	opts QueryOptions,
) ([]map[string]interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs, ok := m.collections[collection]
	if !ok {
		return nil, errors.Wrapf(ErrNoCollection, "[%s]", collection)
	}

	var result []map[string]interface{}
	for i := range docs {
		if matches(docs[i], filter) {
			result = append(result, docs[i])
		}
	}

	if opts.SortBy != "" {
		sort.SliceStable(result, func(i, j int) bool {
			if opts.Descending {
				return compareValues(result[j][opts.SortBy], result[i][opts.SortBy])
			}
			return compareValues(result[i][opts.SortBy], result[j][opts.SortBy])
		})
	}

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

func matches(doc, filter map[string]interface{}) bool {
	for k, v := range filter {
		if doc[k] != v {
			return false
		}
	}

	return true
}

func compareValues(a, b interface{}) bool {
	switch av := a.(type) {
	case int:
		bv, ok := b.(int)
		return ok && av < bv
	case int64:
		bv, ok := b.(int64)
		return ok && av < bv
	case float64:
		bv, ok := b.(float64)
		return ok && av < bv
	case string:
		bv, ok := b.(string)
		return ok && av < bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Before(bv)
	}

	return false
}
