// Package redis stores records as plain string keys and implements Atomic
// with optimistic WATCH/MULTI/EXEC, retrying a bounded number of times.
package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/fastprodman/gamegateway/internal/repos/records"
	"github.com/redis/go-redis/v9"
)

const defaultMaxRetries = 50

var _ records.RecordStore = (*recordsRepo)(nil)

type recordsRepo struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
}

// New returns a store that namespaces every key with prefix.
func New(client redis.UniversalClient, prefix string) *recordsRepo {
	return &recordsRepo{client: client, prefix: prefix, maxRetries: defaultMaxRetries}
}

// NewClient builds a client the way the rest of the service expects it.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (r *recordsRepo) key(k string) string {
	return r.prefix + k
}

func (r *recordsRepo) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, records.ErrNotFound
		}

		return nil, fmt.Errorf("get record: %w", err)
	}

	return val, nil
}

func (r *recordsRepo) Set(ctx context.Context, key string, val []byte) error {
	err := r.client.Set(ctx, r.key(key), val, 0).Err()
	if err != nil {
		return fmt.Errorf("set record: %w", err)
	}

	return nil
}

func (r *recordsRepo) Upsert(ctx context.Context, key string, fn records.UpsertFunc) ([]byte, error) {
	var out []byte

	err := r.Atomic(ctx, []string{key}, func(tx records.Tx) error {
		cur, err := tx.Get(key)
		found := err == nil
		if err != nil && !errors.Is(err, records.ErrNotFound) {
			return err
		}

		out, err = fn(cur, found)
		if err != nil {
			return err
		}

		return tx.Put(key, out)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert %q: %w", key, err)
	}

	return out, nil
}

func (r *recordsRepo) Delete(ctx context.Context, key string) error {
	err := r.client.Del(ctx, r.key(key)).Err()
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	return nil
}

// Atomic may call fn more than once when a watched key changes before EXEC.
// It gives up with records.ErrConflict after maxRetries attempts.
func (r *recordsRepo) Atomic(ctx context.Context, keys []string, fn func(records.Tx) error) error {
	watched := make([]string, 0, len(keys))
	for _, k := range keys {
		watched = append(watched, r.key(k))
	}

	for range r.maxRetries {
		err := r.client.Watch(ctx, func(rtx *redis.Tx) error {
			tx := &redisTx{ctx: ctx, repo: r, rtx: rtx, keys: keys, staged: make(map[string][]byte)}

			err := fn(tx)
			if err != nil {
				return err
			}

			if len(tx.staged) == 0 {
				return nil
			}

			_, err = rtx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				for k, v := range tx.staged {
					p.Set(ctx, r.key(k), v, 0)
				}

				return nil
			})

			return err
		}, watched...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		return err
	}

	return records.ErrConflict
}

type redisTx struct {
	ctx    context.Context //nolint:containedctx
	repo   *recordsRepo
	rtx    *redis.Tx
	keys   []string
	staged map[string][]byte
}

func (t *redisTx) check(key string) error {
	if !slices.Contains(t.keys, key) {
		return fmt.Errorf("key %q not declared for atomic unit", key)
	}

	return nil
}

func (t *redisTx) lookup(key string) ([]byte, error) {
	v, ok := t.staged[key]
	if ok {
		return v, nil
	}

	v, err := t.rtx.Get(t.ctx, t.repo.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, records.ErrNotFound
		}

		return nil, fmt.Errorf("get record: %w", err)
	}

	return v, nil
}

func (t *redisTx) Get(key string) ([]byte, error) {
	err := t.check(key)
	if err != nil {
		return nil, err
	}

	return t.lookup(key)
}

func (t *redisTx) Create(key string, val []byte) error {
	err := t.check(key)
	if err != nil {
		return err
	}

	_, err = t.lookup(key)
	switch {
	case err == nil:
		return records.ErrExists
	case !errors.Is(err, records.ErrNotFound):
		return err
	}

	t.staged[key] = slices.Clone(val)

	return nil
}

func (t *redisTx) Put(key string, val []byte) error {
	err := t.check(key)
	if err != nil {
		return err
	}

	t.staged[key] = slices.Clone(val)

	return nil
}
