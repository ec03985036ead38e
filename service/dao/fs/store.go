// Package fs implements a filesystem-backed dao.Keyed store on top of
// viant/afs. Each entity is persisted as one JSON document under
// basePath/<collection>/<id>.json, which keeps the ledger inspectable with
// ordinary tooling. Uniqueness is serialised through a process-local mutex:
// the adapter is intended for single-process deployments and tests; use the
// sqlite adapter when multiple writers share the store.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"

	"github.com/viant/warden/service/dao"
	"github.com/viant/warden/service/dao/criteria"
)

// Store is a generic filesystem implementation of dao.Keyed.
type Store[T any] struct {
	schema   dao.Schema[T]
	basePath string
	fs       afs.Service
	mu       sync.RWMutex
}

// New creates a filesystem store for the supplied schema rooted at basePath.
func New[T any](basePath string, schema dao.Schema[T]) (*Store[T], error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	fileService := afs.New()
	collectionPath := url.Join(basePath, schema.Name)

	ctx := context.Background()
	exists, _ := fileService.Exists(ctx, collectionPath)
	if !exists {
		if err := fileService.Create(ctx, collectionPath, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create collection directory: %w", err)
		}
	}
	collectionPath = url.Normalize(collectionPath, file.Scheme)
	return &Store[T]{
		schema:   schema,
		basePath: collectionPath,
		fs:       fileService,
	}, nil
}

// Save persists an entity, overwriting any previous copy. Unique index
// values held by a different row reject the save with dao.ErrAlreadyExists.
func (s *Store[T]) Save(ctx context.Context, v *T) error {
	if v == nil {
		return dao.ErrNilEntity
	}
	key := s.schema.Key(v)
	if key == "" {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, err := s.uniqueOwner(ctx, v); err != nil {
		return err
	} else if owner != nil && s.schema.Key(owner) != key {
		return dao.ErrAlreadyExists
	}
	return s.upload(ctx, key, v)
}

// Insert atomically persists v unless its primary key or a unique index
// value is already taken; the conflicting row wins and is returned with
// created=false. Atomicity holds within this process only.
func (s *Store[T]) Insert(ctx context.Context, v *T) (*T, bool, error) {
	if v == nil {
		return nil, false, dao.ErrNilEntity
	}
	key := s.schema.Key(v)
	if key == "" {
		return nil, false, dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, err := s.download(ctx, key); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, false, nil
	}
	if owner, err := s.uniqueOwner(ctx, v); err != nil {
		return nil, false, err
	} else if owner != nil {
		return owner, false, nil
	}
	if err := s.upload(ctx, key, v); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Load retrieves an entity by primary key, or nil when absent.
func (s *Store[T]) Load(ctx context.Context, key string) (*T, error) {
	if key == "" {
		return nil, dao.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.download(ctx, key)
}

// LoadBy returns the entity holding the given value under the named unique
// index, or nil when absent.
func (s *Store[T]) LoadBy(ctx context.Context, index, key string) (*T, error) {
	if key == "" {
		return nil, nil
	}
	if _, ok := s.schema.Uniques[index]; !ok {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	all, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, candidate := range all {
		if s.schema.UniqueValue(index, candidate) == key {
			return candidate, nil
		}
	}
	return nil, nil
}

// Delete removes an entity.
func (s *Store[T]) Delete(ctx context.Context, key string) error {
	if key == "" {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.recordPath(key)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return fmt.Errorf("failed to check record %s: %w", filePath, err)
	}
	if !exists {
		return dao.ErrNotFound
	}
	return s.fs.Delete(ctx, filePath)
}

// List returns matching entities ordered by creation time descending.
func (s *Store[T]) List(ctx context.Context, parameters ...*dao.Parameter) ([]*T, error) {
	s.mu.RLock()
	all, err := s.scan(ctx)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	matched := make([]*T, 0, len(all))
	for _, candidate := range all {
		if criteria.Matches(s.schema.FieldValues(candidate), parameters) {
			matched = append(matched, candidate)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		left, right := s.schema.CreatedAt(matched[i]), s.schema.CreatedAt(matched[j])
		if !left.Equal(right) {
			return left.After(right)
		}
		return s.schema.Key(matched[i]) > s.schema.Key(matched[j])
	})
	if limit := criteria.Limit(parameters); limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Count returns the number of entities matching the supplied parameters.
func (s *Store[T]) Count(ctx context.Context, parameters ...*dao.Parameter) (int, error) {
	s.mu.RLock()
	all, err := s.scan(ctx)
	s.mu.RUnlock()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, candidate := range all {
		if criteria.Matches(s.schema.FieldValues(candidate), parameters) {
			count++
		}
	}
	return count, nil
}

func (s *Store[T]) upload(ctx context.Context, key string, v *T) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", s.schema.Name, err)
	}
	filePath := s.recordPath(key)
	if err := s.fs.Upload(ctx, filePath, file.DefaultFileOsMode, bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("failed to save %s to %s: %w", s.schema.Name, filePath, err)
	}
	return nil
}

func (s *Store[T]) download(ctx context.Context, key string) (*T, error) {
	filePath := s.recordPath(key)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check record %s: %w", filePath, err)
	}
	if !exists {
		return nil, nil
	}
	payload, err := s.fs.DownloadWithURL(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", filePath, err)
	}
	var entity T
	if err := json.Unmarshal(payload, &entity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", filePath, err)
	}
	return &entity, nil
}

func (s *Store[T]) scan(ctx context.Context) ([]*T, error) {
	objects, err := s.fs.List(ctx, s.basePath, option.NewRecursive(false))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", s.schema.Name, err)
	}
	entities := make([]*T, 0, len(objects))
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		payload, err := s.fs.Download(ctx, object)
		if err != nil {
			log.Printf("[WARN] fs store: reading %v: %v", object.URL(), err)
			continue
		}
		var entity T
		if err := json.Unmarshal(payload, &entity); err != nil {
			log.Printf("[WARN] fs store: unmarshaling %v: %v", object.URL(), err)
			continue
		}
		entities = append(entities, &entity)
	}
	return entities, nil
}

func (s *Store[T]) uniqueOwner(ctx context.Context, v *T) (*T, error) {
	all, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	for name := range s.schema.Uniques {
		value := s.schema.UniqueValue(name, v)
		if value == "" {
			continue
		}
		for _, candidate := range all {
			if s.schema.UniqueValue(name, candidate) == value {
				return candidate, nil
			}
		}
	}
	return nil, nil
}

func (s *Store[T]) recordPath(key string) string {
	return url.Join(s.basePath, fmt.Sprintf("%s.json", key))
}

var _ dao.Keyed[any] = (*Store[any])(nil)
