// Package recordstest holds the behaviour every RecordStore must share.
package recordstest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/fastprodman/gamegateway/internal/repos/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises store against the RecordStore contract. Keys are prefixed
// with the subtest name so one store may be shared.
func Run(t *testing.T, store records.RecordStore) {
	t.Helper()

	t.Run("get_missing", func(t *testing.T) {
		_, err := store.Get(ctx(t), "missing:"+t.Name())
		require.ErrorIs(t, err, records.ErrNotFound)
	})

	t.Run("set_get_delete", func(t *testing.T) {
		key := "k:" + t.Name()

		require.NoError(t, store.Set(ctx(t), key, []byte(`{"v":1}`)))

		got, err := store.Get(ctx(t), key)
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":1}`, string(got))

		require.NoError(t, store.Set(ctx(t), key, []byte(`{"v":2}`)))

		got, err = store.Get(ctx(t), key)
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":2}`, string(got))

		require.NoError(t, store.Delete(ctx(t), key))
		require.NoError(t, store.Delete(ctx(t), key))

		_, err = store.Get(ctx(t), key)
		require.ErrorIs(t, err, records.ErrNotFound)
	})

	t.Run("upsert", func(t *testing.T) {
		key := "u:" + t.Name()

		incr := func(cur []byte, found bool) ([]byte, error) {
			n := 0
			if found {
				var err error

				n, err = decode(cur)
				if err != nil {
					return nil, err
				}
			}

			return encode(n + 1), nil
		}

		out, err := store.Upsert(ctx(t), key, incr)
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":1}`, string(out))

		_, err = store.Upsert(ctx(t), key, incr)
		require.NoError(t, err)

		got, err := store.Get(ctx(t), key)
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":2}`, string(got))

		boom := errors.New("boom")
		_, err = store.Upsert(ctx(t), key, func([]byte, bool) ([]byte, error) { return nil, boom })
		require.ErrorIs(t, err, boom)

		got, err = store.Get(ctx(t), key)
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":2}`, string(got), "failed upsert must not write")
	})

	t.Run("atomic_create_exists", func(t *testing.T) {
		key := "c:" + t.Name()

		err := store.Atomic(ctx(t), []string{key}, func(tx records.Tx) error {
			return tx.Create(key, encode(1))
		})
		require.NoError(t, err)

		err = store.Atomic(ctx(t), []string{key}, func(tx records.Tx) error {
			return tx.Create(key, encode(2))
		})
		require.ErrorIs(t, err, records.ErrExists)

		got, err := store.Get(ctx(t), key)
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":1}`, string(got))
	})

	t.Run("atomic_rollback_on_error", func(t *testing.T) {
		a, b := "ra:"+t.Name(), "rb:"+t.Name()
		boom := errors.New("boom")

		err := store.Atomic(ctx(t), []string{a, b}, func(tx records.Tx) error {
			err := tx.Put(a, encode(1))
			if err != nil {
				return err
			}

			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = store.Get(ctx(t), a)
		require.ErrorIs(t, err, records.ErrNotFound)
	})

	t.Run("atomic_reads_own_writes", func(t *testing.T) {
		key := "own:" + t.Name()

		err := store.Atomic(ctx(t), []string{key}, func(tx records.Tx) error {
			err := tx.Put(key, encode(7))
			if err != nil {
				return err
			}

			got, err := tx.Get(key)
			if err != nil {
				return err
			}

			n, err := decode(got)
			if err != nil {
				return err
			}

			if n != 7 {
				return fmt.Errorf("read %d, want 7", n)
			}

			return nil
		})
		require.NoError(t, err)
	})

	t.Run("atomic_undeclared_key", func(t *testing.T) {
		err := store.Atomic(ctx(t), []string{"declared:" + t.Name()}, func(tx records.Tx) error {
			return tx.Put("other:"+t.Name(), encode(1))
		})
		require.Error(t, err)
	})

	t.Run("atomic_concurrent_increments", func(t *testing.T) {
		key := "ctr:" + t.Name()
		require.NoError(t, store.Set(ctx(t), key, encode(0)))

		const workers = 8
		const perWorker = 10

		var wg sync.WaitGroup

		errs := make(chan error, workers*perWorker)

		for range workers {
			wg.Add(1)

			go func() {
				defer wg.Done()

				for range perWorker {
					errs <- store.Atomic(ctx(t), []string{key}, func(tx records.Tx) error {
						cur, err := tx.Get(key)
						if err != nil {
							return err
						}

						n, err := decode(cur)
						if err != nil {
							return err
						}

						return tx.Put(key, encode(n+1))
					})
				}
			}()
		}

		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		got, err := store.Get(ctx(t), key)
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":`+strconv.Itoa(workers*perWorker)+`}`, string(got))
	})
}

func ctx(t *testing.T) context.Context {
	t.Helper()

	c, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	t.Cleanup(cancel)

	return c
}

func encode(n int) []byte {
	return []byte(`{"n":` + strconv.Itoa(n) + `}`)
}

func decode(raw []byte) (int, error) {
	var v struct {
		N int `json:"n"`
	}

	err := json.Unmarshal(raw, &v)
	if err != nil {
		return 0, fmt.Errorf("decode counter: %w", err)
	}

	return v.N, nil
}
