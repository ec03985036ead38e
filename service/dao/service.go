package dao

import (
	"context"
)

// Service is the minimal persistence contract shared by all entity stores.
type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)
}

// Keyed extends Service with unique secondary indexes and an atomic
// insert-if-absent primitive. It is the contract the control plane relies on
// for idempotency: Insert enforces the primary key and every unique index in
// a single atomic operation, and a losing concurrent writer receives the
// winner's row with created=false instead of an error.
type Keyed[T any] interface {
	Service[string, T]

	// Insert atomically persists t unless its primary key or any unique
	// index value is already taken. It returns the stored row and true on a
	// fresh insert, or the pre-existing row and false on a conflict.
	Insert(ctx context.Context, t *T) (*T, bool, error)

	// LoadBy returns the row holding the given value under the named unique
	// index, or nil when absent.
	LoadBy(ctx context.Context, index, key string) (*T, error)

	// Count returns the number of rows matching the supplied parameters.
	Count(ctx context.Context, parameters ...*Parameter) (int, error)
}
