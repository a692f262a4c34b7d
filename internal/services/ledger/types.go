package ledger

import (
	"errors"
	"time"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOriginalNotFound  = errors.New("original transaction not found")
	ErrAlreadyReversed   = errors.New("transaction already reversed")
	ErrCurrencyMismatch  = errors.New("currency mismatch")
	ErrInvalidAmount     = errors.New("amount must be > 0")
	ErrNotFound          = errors.New("ledger entry not found")
	ErrBalanceOverflow   = errors.New("balance out of range")
)

type Kind string

const (
	KindDebit   Kind = "debit"
	KindCredit  Kind = "credit"
	KindReverse Kind = "reverse"
)

// Account is the stored balance of one player, in minor units.
type Account struct {
	Balance  int64  `json:"balance"`
	Currency string `json:"currency"`
}

// Entry is the journal record written once per applied mutation.
type Entry struct {
	Provider      string    `json:"provider"`
	TransactionID string    `json:"transactionId"`
	PlayerID      string    `json:"playerId"`
	Kind          Kind      `json:"kind"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	BalanceAfter  int64     `json:"balanceAfter"`
	Reverses      string    `json:"reverses,omitempty"`
	Reversed      bool      `json:"reversed"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Op struct {
	Provider      string
	TransactionID string
	PlayerID      string
	Amount        int64
	Currency      string
	// AllowNegative lets a debit take the balance below zero.
	AllowNegative bool
}

type ReverseOp struct {
	Provider      string
	TransactionID string
	// OriginalTransactionID names the debit or credit to undo.
	OriginalTransactionID string
	PlayerID              string
	Currency              string
	AllowNegative         bool
}

// Result is what a mutation produced. Duplicate is set when the transaction
// had already been applied and Entry is the stored one.
type Result struct {
	Entry     Entry
	Balance   int64
	Currency  string
	Duplicate bool
}
