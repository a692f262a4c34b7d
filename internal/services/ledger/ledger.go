// Package ledger keeps player balances and the journal of applied wallet
// mutations on top of a records.RecordStore.
//
// Every mutation touches the player's account and its own journal entry in
// one atomic unit. The journal entry doubles as the idempotency key: a
// transaction id that already has an entry is never applied again, and the
// stored entry is returned instead.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fastprodman/gamegateway/internal/repos/records"
)

type Service struct {
	store records.RecordStore
	now   func() time.Time
}

func New(store records.RecordStore) *Service {
	return &Service{store: store, now: time.Now}
}

func accountKey(playerID string) string {
	return "account:" + playerID
}

func entryKey(provider, txID string) string {
	return "txn:" + provider + ":" + txID
}

// Reversals live in their own namespace so a refund may reuse the id of the
// transaction it undoes.
func reversalKey(provider, txID string) string {
	return "rev:" + provider + ":" + txID
}

// errDuplicate aborts an atomic unit that found an existing entry.
var errDuplicate = errors.New("duplicate")

func (s *Service) Debit(ctx context.Context, op Op) (Result, error) {
	return s.apply(ctx, op, KindDebit)
}

func (s *Service) Credit(ctx context.Context, op Op) (Result, error) {
	return s.apply(ctx, op, KindCredit)
}

func (s *Service) apply(ctx context.Context, op Op, kind Kind) (Result, error) {
	if op.Amount <= 0 {
		return Result{}, ErrInvalidAmount
	}

	accKey := accountKey(op.PlayerID)
	txKey := entryKey(op.Provider, op.TransactionID)

	var res Result

	err := s.store.Atomic(ctx, []string{accKey, txKey}, func(tx records.Tx) error {
		_, err := tx.Get(txKey)
		if err == nil {
			return errDuplicate
		}

		if !errors.Is(err, records.ErrNotFound) {
			return fmt.Errorf("check entry: %w", err)
		}

		acc, err := loadAccount(tx, accKey, op.Currency)
		if err != nil {
			return err
		}

		delta := op.Amount
		if kind == KindDebit {
			delta = -op.Amount
		}

		next, err := addBalance(acc.Balance, delta)
		if err != nil {
			return err
		}

		if next < 0 && kind == KindDebit && !op.AllowNegative {
			return fmt.Errorf("%w: balance %d, debit %d", ErrInsufficientFunds, acc.Balance, op.Amount)
		}

		entry := Entry{
			Provider:      op.Provider,
			TransactionID: op.TransactionID,
			PlayerID:      op.PlayerID,
			Kind:          kind,
			Amount:        op.Amount,
			Currency:      acc.Currency,
			BalanceAfter:  next,
			CreatedAt:     s.now().UTC(),
		}

		err = createJSON(tx, txKey, entry)
		if err != nil {
			return err
		}

		acc.Balance = next

		err = putJSON(tx, accKey, acc)
		if err != nil {
			return err
		}

		res = Result{Entry: entry, Balance: next, Currency: acc.Currency}

		return nil
	})
	if err != nil {
		if errors.Is(err, errDuplicate) {
			return s.stored(ctx, txKey)
		}

		return Result{}, fmt.Errorf("%s %s: %w", kind, op.TransactionID, err)
	}

	return res, nil
}

// Reverse undoes a debit or credit. The original is marked reversed in the
// same unit so it can never be undone twice.
func (s *Service) Reverse(ctx context.Context, op ReverseOp) (Result, error) {
	origID := op.OriginalTransactionID
	if origID == "" {
		origID = op.TransactionID
	}

	accKey := accountKey(op.PlayerID)
	revKey := reversalKey(op.Provider, op.TransactionID)
	origKey := entryKey(op.Provider, origID)

	var res Result

	err := s.store.Atomic(ctx, []string{accKey, revKey, origKey}, func(tx records.Tx) error {
		_, err := tx.Get(revKey)
		if err == nil {
			return errDuplicate
		}

		if !errors.Is(err, records.ErrNotFound) {
			return fmt.Errorf("check reversal: %w", err)
		}

		orig, err := getJSON[Entry](tx, origKey)
		if err != nil {
			if errors.Is(err, records.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrOriginalNotFound, origID)
			}

			return err
		}

		if orig.PlayerID != op.PlayerID {
			return fmt.Errorf("%w: %s belongs to another player", ErrOriginalNotFound, origID)
		}

		if orig.Reversed {
			return fmt.Errorf("%w: %s", ErrAlreadyReversed, origID)
		}

		acc, err := loadAccount(tx, accKey, op.Currency)
		if err != nil {
			return err
		}

		delta := orig.Amount
		if orig.Kind == KindCredit {
			delta = -orig.Amount
		}

		next, err := addBalance(acc.Balance, delta)
		if err != nil {
			return err
		}

		if next < 0 && orig.Kind == KindCredit && !op.AllowNegative {
			return fmt.Errorf("%w: reversing credit %s", ErrInsufficientFunds, origID)
		}

		entry := Entry{
			Provider:      op.Provider,
			TransactionID: op.TransactionID,
			PlayerID:      op.PlayerID,
			Kind:          KindReverse,
			Amount:        orig.Amount,
			Currency:      acc.Currency,
			BalanceAfter:  next,
			Reverses:      origID,
			CreatedAt:     s.now().UTC(),
		}

		err = createJSON(tx, revKey, entry)
		if err != nil {
			return err
		}

		orig.Reversed = true

		err = putJSON(tx, origKey, orig)
		if err != nil {
			return err
		}

		acc.Balance = next

		err = putJSON(tx, accKey, acc)
		if err != nil {
			return err
		}

		res = Result{Entry: entry, Balance: next, Currency: acc.Currency}

		return nil
	})
	if err != nil {
		if errors.Is(err, errDuplicate) {
			return s.stored(ctx, revKey)
		}

		return Result{}, fmt.Errorf("reverse %s: %w", op.TransactionID, err)
	}

	return res, nil
}

// Balance reads the player's account. An unknown player has a zero balance
// and an empty currency.
func (s *Service) Balance(ctx context.Context, playerID string) (Account, error) {
	raw, err := s.store.Get(ctx, accountKey(playerID))
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return Account{}, nil
		}

		return Account{}, fmt.Errorf("get account: %w", err)
	}

	var acc Account

	err = json.Unmarshal(raw, &acc)
	if err != nil {
		return Account{}, fmt.Errorf("decode account: %w", err)
	}

	return acc, nil
}

// Lookup returns the debit or credit entry stored for txID.
func (s *Service) Lookup(ctx context.Context, provider, txID string) (Entry, error) {
	return s.lookup(ctx, entryKey(provider, txID))
}

// LookupReversal returns the reversal entry stored for txID.
func (s *Service) LookupReversal(ctx context.Context, provider, txID string) (Entry, error) {
	return s.lookup(ctx, reversalKey(provider, txID))
}

func (s *Service) lookup(ctx context.Context, key string) (Entry, error) {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return Entry{}, ErrNotFound
		}

		return Entry{}, fmt.Errorf("get entry: %w", err)
	}

	var e Entry

	err = json.Unmarshal(raw, &e)
	if err != nil {
		return Entry{}, fmt.Errorf("decode entry: %w", err)
	}

	return e, nil
}

func (s *Service) stored(ctx context.Context, key string) (Result, error) {
	e, err := s.lookup(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("load stored entry: %w", err)
	}

	return Result{Entry: e, Balance: e.BalanceAfter, Currency: e.Currency, Duplicate: true}, nil
}

// addBalance returns balance+delta, or ErrBalanceOverflow when the sum does
// not fit in an int64.
func addBalance(balance, delta int64) (int64, error) {
	if (delta > 0 && balance > math.MaxInt64-delta) || (delta < 0 && balance < math.MinInt64-delta) {
		return 0, fmt.Errorf("%w: balance %d, change %d", ErrBalanceOverflow, balance, delta)
	}

	return balance + delta, nil
}

// loadAccount returns the account under key, or a fresh one in currency.
func loadAccount(tx records.Tx, key, currency string) (Account, error) {
	acc, err := getJSON[Account](tx, key)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return Account{Currency: currency}, nil
		}

		return Account{}, err
	}

	if acc.Currency == "" {
		acc.Currency = currency
	}

	if currency != "" && acc.Currency != currency {
		return Account{}, fmt.Errorf("%w: account %s, transaction %s", ErrCurrencyMismatch, acc.Currency, currency)
	}

	return acc, nil
}

func getJSON[T any](tx records.Tx, key string) (T, error) {
	var v T

	raw, err := tx.Get(key)
	if err != nil {
		return v, err
	}

	err = json.Unmarshal(raw, &v)
	if err != nil {
		return v, fmt.Errorf("decode %q: %w", key, err)
	}

	return v, nil
}

func createJSON(tx records.Tx, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}

	err = tx.Create(key, raw)
	if err != nil {
		if errors.Is(err, records.ErrExists) {
			return errDuplicate
		}

		return fmt.Errorf("create %q: %w", key, err)
	}

	return nil
}

func putJSON(tx records.Tx, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}

	err = tx.Put(key, raw)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}

	return nil
}
