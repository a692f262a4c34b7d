// Package postgres stores records in the "records" table (key TEXT primary
// key, value JSONB). Values come back re-encoded by JSONB, so callers must
// compare them as JSON, not bytes.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/fastprodman/gamegateway/internal/infra/pgutils"
	"github.com/fastprodman/gamegateway/internal/repos/records"
	"github.com/jackc/pgx/v5/pgconn"
)

var _ records.RecordStore = (*recordsRepo)(nil)

type recordsRepo struct{ db *sql.DB }

func New(db *sql.DB) *recordsRepo {
	return &recordsRepo{db: db}
}

func (r *recordsRepo) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT value
		FROM records
		WHERE key = $1
	`, key).Scan(&val)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, records.ErrNotFound
		}

		return nil, fmt.Errorf("get record: %w", err)
	}

	return val, nil
}

func (r *recordsRepo) Set(ctx context.Context, key string, val []byte) error {
	return put(ctx, r.db, key, val)
}

func (r *recordsRepo) Upsert(ctx context.Context, key string, fn records.UpsertFunc) ([]byte, error) {
	var out []byte

	err := pgutils.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		err := lockKeys(ctx, tx, []string{key})
		if err != nil {
			return err
		}

		cur, err := getForUpdate(ctx, tx, key)
		found := err == nil
		if err != nil && !errors.Is(err, records.ErrNotFound) {
			return err
		}

		out, err = fn(cur, found)
		if err != nil {
			return err
		}

		return put(ctx, tx, key, out)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert %q: %w", key, err)
	}

	return out, nil
}

func (r *recordsRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	return nil
}

// Atomic takes a transaction-scoped advisory lock per key (sorted, so two
// units never deadlock) which also covers keys that do not exist yet.
// A failed Create aborts the Postgres transaction, so fn must return after it.
func (r *recordsRepo) Atomic(ctx context.Context, keys []string, fn func(records.Tx) error) error {
	return pgutils.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		err := lockKeys(ctx, tx, keys)
		if err != nil {
			return err
		}

		return fn(&pgTx{ctx: ctx, tx: tx, keys: keys})
	})
}

type pgTx struct {
	ctx  context.Context //nolint:containedctx
	tx   *sql.Tx
	keys []string
}

func (t *pgTx) check(key string) error {
	if !slices.Contains(t.keys, key) {
		return fmt.Errorf("key %q not declared for atomic unit", key)
	}

	return nil
}

func (t *pgTx) Get(key string) ([]byte, error) {
	err := t.check(key)
	if err != nil {
		return nil, err
	}

	return getForUpdate(t.ctx, t.tx, key)
}

func (t *pgTx) Create(key string, val []byte) error {
	err := t.check(key)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO records (key, value)
		VALUES ($1, $2)
	`, key, string(val))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" { // unique_violation
				return records.ErrExists
			}
		}

		return fmt.Errorf("create record: %w", err)
	}

	return nil
}

func (t *pgTx) Put(key string, val []byte) error {
	err := t.check(key)
	if err != nil {
		return err
	}

	return put(t.ctx, t.tx, key, val)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func put(ctx context.Context, db execer, key string, val []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO records (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    updated_at = now()
	`, key, string(val))
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}

	return nil
}

func getForUpdate(ctx context.Context, tx *sql.Tx, key string) ([]byte, error) {
	var val []byte

	err := tx.QueryRowContext(ctx, `
		SELECT value
		FROM records
		WHERE key = $1
		FOR UPDATE
	`, key).Scan(&val)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, records.ErrNotFound
		}

		return nil, fmt.Errorf("lock record: %w", err)
	}

	return val, nil
}

func lockKeys(ctx context.Context, tx *sql.Tx, keys []string) error {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	for _, k := range sorted {
		_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, k)
		if err != nil {
			return fmt.Errorf("advisory lock %q: %w", k, err)
		}
	}

	return nil
}
