package store

import (
	"context"
	"sort"
	"sync"

	"github.com/viant/warden/service/dao"
	"github.com/viant/warden/service/dao/criteria"
)

// MemoryStore is a generic in-memory implementation of dao.Keyed. Entities
// are mapped by the primary key extracted via the schema, with secondary
// unique indexes maintained alongside. A single mutex critical section makes
// Insert the atomic insert-if-absent primitive the control plane relies on
// for idempotency.
//
// It purposefully contains no business logic beyond uniqueness and
// parameter filtering - higher-level services own validation and
// normalization.
type MemoryStore[T any] struct {
	mu      sync.RWMutex
	schema  dao.Schema[T]
	records map[string]*T
	uniques map[string]map[string]string // index -> value -> primary key
	seq     map[string]int               // primary key -> insertion sequence
	next    int
}

// NewMemoryStore creates a MemoryStore for the supplied schema.
func NewMemoryStore[T any](schema dao.Schema[T]) *MemoryStore[T] {
	uniques := make(map[string]map[string]string, len(schema.Uniques))
	for name := range schema.Uniques {
		uniques[name] = make(map[string]string)
	}
	return &MemoryStore[T]{
		schema:  schema,
		records: make(map[string]*T),
		uniques: uniques,
		seq:     make(map[string]int),
	}
}

// Save stores or overwrites a record. It still enforces unique indexes:
// when a unique value is held by a different row the save is rejected with
// dao.ErrAlreadyExists.
func (s *MemoryStore[T]) Save(_ context.Context, v *T) error {
	if v == nil {
		return dao.ErrNilEntity
	}
	key := s.schema.Key(v)
	if key == "" {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner := s.uniqueOwner(v); owner != "" && owner != key {
		return dao.ErrAlreadyExists
	}
	s.unindex(key)
	s.records[key] = v
	if _, ok := s.seq[key]; !ok {
		s.seq[key] = s.next
		s.next++
	}
	s.index(key, v)
	return nil
}

// Insert atomically persists v unless its primary key or any unique index
// value is already taken, in which case the existing row is returned with
// created=false.
func (s *MemoryStore[T]) Insert(_ context.Context, v *T) (*T, bool, error) {
	if v == nil {
		return nil, false, dao.ErrNilEntity
	}
	key := s.schema.Key(v)
	if key == "" {
		return nil, false, dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[key]; ok {
		return existing, false, nil
	}
	if owner := s.uniqueOwner(v); owner != "" {
		return s.records[owner], false, nil
	}
	s.records[key] = v
	s.seq[key] = s.next
	s.next++
	s.index(key, v)
	return v, true, nil
}

// Load returns a record by primary key, or nil when absent.
func (s *MemoryStore[T]) Load(_ context.Context, key string) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	return v, nil
}

// LoadBy returns the record holding the given value under the named unique
// index, or nil when absent.
func (s *MemoryStore[T]) LoadBy(_ context.Context, index, key string) (*T, error) {
	if key == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	values, ok := s.uniques[index]
	if !ok {
		return nil, nil
	}
	owner, ok := values[key]
	if !ok {
		return nil, nil
	}
	return s.records[owner], nil
}

// Delete removes a record.
func (s *MemoryStore[T]) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return dao.ErrNotFound
	}
	s.unindex(key)
	delete(s.records, key)
	delete(s.seq, key)
	return nil
}

// List returns matching records ordered by creation time descending, ties
// broken by insertion order descending.
func (s *MemoryStore[T]) List(_ context.Context, parameters ...*dao.Parameter) ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := s.match(parameters)
	sort.SliceStable(matched, func(i, j int) bool {
		left, right := s.schema.CreatedAt(matched[i]), s.schema.CreatedAt(matched[j])
		if !left.Equal(right) {
			return left.After(right)
		}
		return s.seq[s.schema.Key(matched[i])] > s.seq[s.schema.Key(matched[j])]
	})
	if limit := criteria.Limit(parameters); limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Count returns the number of records matching the supplied parameters.
func (s *MemoryStore[T]) Count(_ context.Context, parameters ...*dao.Parameter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.match(parameters)), nil
}

func (s *MemoryStore[T]) match(parameters []*dao.Parameter) []*T {
	matched := make([]*T, 0, len(s.records))
	for _, v := range s.records {
		if criteria.Matches(s.schema.FieldValues(v), parameters) {
			matched = append(matched, v)
		}
	}
	return matched
}

// uniqueOwner returns the primary key of a row already holding one of v's
// unique index values, or empty string. Callers hold the lock.
func (s *MemoryStore[T]) uniqueOwner(v *T) string {
	for name, selector := range s.schema.Uniques {
		value := selector(v)
		if value == "" {
			continue
		}
		if owner, ok := s.uniques[name][value]; ok {
			return owner
		}
	}
	return ""
}

func (s *MemoryStore[T]) index(key string, v *T) {
	for name, selector := range s.schema.Uniques {
		if value := selector(v); value != "" {
			s.uniques[name][value] = key
		}
	}
}

func (s *MemoryStore[T]) unindex(key string) {
	previous, ok := s.records[key]
	if !ok {
		return
	}
	for name, selector := range s.schema.Uniques {
		if value := selector(previous); value != "" {
			delete(s.uniques[name], value)
		}
	}
}

var _ dao.Keyed[any] = (*MemoryStore[any])(nil)
