package dao

import "time"

// Schema describes how a store adapter reads entity identity, unique index
// values, filterable fields and creation time from an entity. It lets the
// generic memory, fs and sqlite adapters persist any control-plane entity
// without per-entity store code.
type Schema[T any] struct {
	// Name identifies the entity collection (also the sqlite table name).
	Name string

	// Key extracts the primary key.
	Key func(*T) string

	// Uniques maps index name to a value selector. An empty selected value
	// means the entity does not participate in that index.
	Uniques map[string]func(*T) string

	// Fields extracts filterable field values used by List/Count parameters.
	Fields func(*T) map[string]string

	// FilterFields enumerates the field names Fields produces. Relational
	// adapters use it to declare filter columns; in-memory adapters ignore it.
	FilterFields []string

	// CreatedAt extracts the creation timestamp used for descending
	// list ordering.
	CreatedAt func(*T) time.Time
}

// UniqueValue returns the value of the named unique index for t, or empty
// string when the index is not defined.
func (s *Schema[T]) UniqueValue(index string, t *T) string {
	if selector, ok := s.Uniques[index]; ok {
		return selector(t)
	}
	return ""
}

// FieldValues returns the filterable fields of t, never nil.
func (s *Schema[T]) FieldValues(t *T) map[string]string {
	if s.Fields == nil {
		return map[string]string{}
	}
	return s.Fields(t)
}
