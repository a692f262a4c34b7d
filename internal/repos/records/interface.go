// Package records defines the key/value record store the ledger is built on.
// Values are opaque JSON documents.
package records

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrExists   = errors.New("record already exists")
	ErrConflict = errors.New("concurrent modification")
)

// UpsertFunc receives the current value (found=false when absent) and returns
// the value to store.
type UpsertFunc func(cur []byte, found bool) ([]byte, error)

// Tx is the view of the store inside an Atomic unit. Writes become visible
// only when the unit's function returns nil.
type Tx interface {
	Get(key string) ([]byte, error)
	// Create stores val under key and fails with ErrExists if key is taken.
	Create(key string, val []byte) error
	Put(key string, val []byte) error
}

type RecordStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte) error
	Upsert(ctx context.Context, key string, fn UpsertFunc) ([]byte, error)
	Delete(ctx context.Context, key string) error

	// Atomic runs fn with every key in keys locked. Keys touched by fn must be
	// listed in keys.
	Atomic(ctx context.Context, keys []string, fn func(Tx) error) error
}
