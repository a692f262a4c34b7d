// Package memory is an in-process RecordStore for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/fastprodman/gamegateway/internal/repos/records"
)

var _ records.RecordStore = (*Store)(nil)

type Store struct {
	mu   sync.Mutex
	data map[string][]byte
}

func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if !ok {
		return nil, records.ErrNotFound
	}

	return slices.Clone(v), nil
}

func (s *Store) Set(ctx context.Context, key string, val []byte) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = slices.Clone(val)

	return nil
}

func (s *Store) Upsert(ctx context.Context, key string, fn records.UpsertFunc) ([]byte, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, found := s.data[key]

	next, err := fn(slices.Clone(cur), found)
	if err != nil {
		return nil, fmt.Errorf("upsert %q: %w", key, err)
	}

	s.data[key] = slices.Clone(next)

	return next, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)

	return nil
}

// Atomic serialises every unit behind the store mutex, so the key list is
// only checked, never used for finer locking.
func (s *Store) Atomic(ctx context.Context, keys []string, fn func(records.Tx) error) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, keys: keys, staged: make(map[string][]byte)}

	err = fn(tx)
	if err != nil {
		return err
	}

	for k, v := range tx.staged {
		s.data[k] = v
	}

	return nil
}

type memTx struct {
	store  *Store
	keys   []string
	staged map[string][]byte
}

func (t *memTx) check(key string) error {
	if !slices.Contains(t.keys, key) {
		return fmt.Errorf("key %q not declared for atomic unit", key)
	}

	return nil
}

func (t *memTx) lookup(key string) ([]byte, bool) {
	v, ok := t.staged[key]
	if ok {
		return v, true
	}

	v, ok = t.store.data[key]

	return v, ok
}

func (t *memTx) Get(key string) ([]byte, error) {
	err := t.check(key)
	if err != nil {
		return nil, err
	}

	v, ok := t.lookup(key)
	if !ok {
		return nil, records.ErrNotFound
	}

	return slices.Clone(v), nil
}

func (t *memTx) Create(key string, val []byte) error {
	err := t.check(key)
	if err != nil {
		return err
	}

	_, ok := t.lookup(key)
	if ok {
		return records.ErrExists
	}

	t.staged[key] = slices.Clone(val)

	return nil
}

func (t *memTx) Put(key string, val []byte) error {
	err := t.check(key)
	if err != nil {
		return err
	}

	t.staged[key] = slices.Clone(val)

	return nil
}
