// Package wallet processes provider wallet callbacks (bet, win, refund and
// balance) against the ledger and answers in the calling provider's format.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fastprodman/gamegateway/internal/adapters"
	"github.com/fastprodman/gamegateway/internal/providers"
	"github.com/fastprodman/gamegateway/internal/services/ledger"
)

// Ledger is the subset of ledger.Service the processor needs.
type Ledger interface {
	Debit(ctx context.Context, op ledger.Op) (ledger.Result, error)
	Credit(ctx context.Context, op ledger.Op) (ledger.Result, error)
	Reverse(ctx context.Context, op ledger.ReverseOp) (ledger.Result, error)
	Balance(ctx context.Context, playerID string) (ledger.Account, error)
	Lookup(ctx context.Context, provider, txID string) (ledger.Entry, error)
	LookupReversal(ctx context.Context, provider, txID string) (ledger.Entry, error)
}

type Registry interface {
	Get(id string) (providers.Descriptor, bool)
}

// Outcome is the full result of one callback. Body is always set.
type Outcome struct {
	Body        []byte
	Result      adapters.CallbackResult
	Transaction adapters.NormalizedTransaction
	Replayed    bool
	Trace       []State
	// Err is the internal cause of a rejection. It is for logs only.
	Err error
}

type handler func(ctx context.Context, d providers.Descriptor, tx adapters.NormalizedTransaction) (ledger.Result, State, error)

type Processor struct {
	reg      Registry
	ledger   Ledger
	handlers map[adapters.TxType]handler
}

func New(reg Registry, l Ledger) *Processor {
	p := &Processor{reg: reg, ledger: l}

	p.handlers = map[adapters.TxType]handler{
		adapters.TxBet:     p.bet,
		adapters.TxWin:     p.win,
		adapters.TxRefund:  p.refund,
		adapters.TxBalance: p.balance,
	}

	return p
}

// Process runs raw through validation, normalization and dispatch for the
// provider registered as providerID. It never returns without a body the
// provider can read.
func (p *Processor) Process(ctx context.Context, providerID string, raw []byte) Outcome {
	m := newMachine()

	d, ok := p.reg.Get(providerID)
	if !ok || !d.Enabled {
		out := p.reject(m, nil, adapters.NormalizedTransaction{}, adapters.CodeInvalidAgent,
			fmt.Errorf("%w: %s", providers.ErrUnknownProvider, providerID))
		p.audit(providerID, out)

		return out
	}

	a, err := adapters.For(d.Protocol)
	if err != nil {
		out := p.reject(m, nil, adapters.NormalizedTransaction{}, adapters.CodeInternalError, err)
		p.audit(providerID, out)

		return out
	}

	out := p.run(ctx, m, a, d, raw)
	p.audit(providerID, out)

	return out
}

func (p *Processor) run(ctx context.Context, m *machine, a adapters.Adapter, d providers.Descriptor, raw []byte) Outcome {
	err := a.ValidateCallback(raw, d)
	if err != nil {
		return p.reject(m, a, adapters.NormalizedTransaction{}, adapters.CodeInvalidAgent, err)
	}

	_ = m.advance(StateValidated)

	tx, err := a.NormalizeCallback(raw)
	if err != nil {
		if errors.Is(err, adapters.ErrInvalidTransactionType) {
			// The payload was read; only its type is unknown.
			_ = m.advance(StateNormalized)
		}

		return p.reject(m, a, tx, adapters.CodeInvalidTransactionType, err)
	}

	tx.ProviderCode = d.ID

	_ = m.advance(StateNormalized)

	h, ok := p.handlers[tx.Type]
	if !ok {
		return p.reject(m, a, tx, adapters.CodeInvalidTransactionType,
			fmt.Errorf("%w: %q", adapters.ErrInvalidTransactionType, tx.Type))
	}

	replay, found, err := p.replayed(ctx, tx)
	if err != nil {
		return p.reject(m, a, tx, adapters.CodeInternalError, err)
	}

	if found {
		return p.respond(m, a, tx, resultOf(tx, replay), true)
	}

	err = m.advance(StateDispatched)
	if err != nil {
		return p.reject(m, a, tx, adapters.CodeInternalError, err)
	}

	res, applied, err := h(ctx, d, tx)
	if err != nil {
		return p.reject(m, a, tx, codeFor(err), err)
	}

	err = m.advance(applied)
	if err != nil {
		return p.reject(m, a, tx, adapters.CodeInternalError, err)
	}

	return p.respond(m, a, tx, resultOf(tx, res), res.Duplicate)
}

// replayed is the fast idempotency check. The ledger repeats it atomically,
// so a race between two deliveries still applies the mutation once.
func (p *Processor) replayed(ctx context.Context, tx adapters.NormalizedTransaction) (ledger.Result, bool, error) {
	var (
		e   ledger.Entry
		err error
	)

	switch tx.Type {
	case adapters.TxBalance:
		return ledger.Result{}, false, nil
	case adapters.TxRefund:
		e, err = p.ledger.LookupReversal(ctx, tx.ProviderCode, tx.TransactionID)
	default:
		e, err = p.ledger.Lookup(ctx, tx.ProviderCode, tx.TransactionID)
	}

	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return ledger.Result{}, false, nil
		}

		return ledger.Result{}, false, fmt.Errorf("idempotency lookup: %w", err)
	}

	return ledger.Result{Entry: e, Balance: e.BalanceAfter, Currency: e.Currency, Duplicate: true}, true, nil
}

func (p *Processor) bet(ctx context.Context, d providers.Descriptor, tx adapters.NormalizedTransaction) (ledger.Result, State, error) {
	res, err := p.ledger.Debit(ctx, ledger.Op{
		Provider:      d.ID,
		TransactionID: tx.TransactionID,
		PlayerID:      tx.PlayerID,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		AllowNegative: d.AllowNegativeBalance,
	})
	if err != nil {
		return ledger.Result{}, "", fmt.Errorf("debit: %w", err)
	}

	return res, StateBetApplied, nil
}

func (p *Processor) win(ctx context.Context, d providers.Descriptor, tx adapters.NormalizedTransaction) (ledger.Result, State, error) {
	res, err := p.ledger.Credit(ctx, ledger.Op{
		Provider:      d.ID,
		TransactionID: tx.TransactionID,
		PlayerID:      tx.PlayerID,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
	})
	if err != nil {
		return ledger.Result{}, "", fmt.Errorf("credit: %w", err)
	}

	return res, StateWinApplied, nil
}

func (p *Processor) refund(ctx context.Context, d providers.Descriptor, tx adapters.NormalizedTransaction) (ledger.Result, State, error) {
	res, err := p.ledger.Reverse(ctx, ledger.ReverseOp{
		Provider:              d.ID,
		TransactionID:         tx.TransactionID,
		OriginalTransactionID: tx.OriginalTransactionID,
		PlayerID:              tx.PlayerID,
		Currency:              tx.Currency,
		AllowNegative:         d.AllowNegativeBalance,
	})
	if err != nil {
		return ledger.Result{}, "", fmt.Errorf("reverse: %w", err)
	}

	return res, StateRefundApplied, nil
}

// balance always reads the ledger and is never idempotency-gated.
func (p *Processor) balance(ctx context.Context, d providers.Descriptor, tx adapters.NormalizedTransaction) (ledger.Result, State, error) {
	acc, err := p.ledger.Balance(ctx, tx.PlayerID)
	if err != nil {
		return ledger.Result{}, "", fmt.Errorf("balance: %w", err)
	}

	currency := acc.Currency
	if currency == "" {
		currency = tx.Currency
	}

	if currency == "" {
		currency = d.Currency
	}

	return ledger.Result{Balance: acc.Balance, Currency: currency}, StateBalanceReturned, nil
}

func resultOf(tx adapters.NormalizedTransaction, res ledger.Result) adapters.CallbackResult {
	return adapters.CallbackResult{
		Success:       true,
		TransactionID: tx.TransactionID,
		Balance:       res.Balance,
		Currency:      res.Currency,
	}
}

func codeFor(err error) adapters.ErrorCode {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrOriginalNotFound),
		errors.Is(err, ledger.ErrAlreadyReversed),
		errors.Is(err, ledger.ErrCurrencyMismatch),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrBalanceOverflow):
		return adapters.CodeLedgerError
	default:
		return adapters.CodeInternalError
	}
}

func (p *Processor) respond(m *machine, a adapters.Adapter, tx adapters.NormalizedTransaction, res adapters.CallbackResult, replayed bool) Outcome {
	_ = m.advance(StateResponded)

	return Outcome{
		Body:        encode(a, res),
		Result:      res,
		Transaction: tx,
		Replayed:    replayed,
		Trace:       m.trace,
	}
}

func (p *Processor) reject(m *machine, a adapters.Adapter, tx adapters.NormalizedTransaction, code adapters.ErrorCode, cause error) Outcome {
	if m.current() != StateRejected {
		err := m.advance(StateRejected)
		if err != nil {
			// Only reachable from a state with no rejection edge.
			m.trace = append(m.trace, StateRejected)
		}
	}

	_ = m.advance(StateResponded)

	res := adapters.CallbackResult{Success: false, TransactionID: tx.TransactionID, Code: code}

	return Outcome{
		Body:        encode(a, res),
		Result:      res,
		Transaction: tx,
		Trace:       m.trace,
		Err:         cause,
	}
}

type genericReply struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// encode renders res for the adapter, or in a neutral shape when the
// provider could not be identified.
func encode(a adapters.Adapter, res adapters.CallbackResult) []byte {
	if a != nil {
		body, err := a.EncodeCallbackResponse(res)
		if err == nil {
			return body
		}

		slog.Error("encode callback response", "protocol", a.Protocol(), "error", err)
	}

	body, _ := json.Marshal(genericReply{Success: res.Success, ErrorCode: string(res.Code)})

	return body
}

func (p *Processor) audit(providerID string, out Outcome) {
	attrs := []any{
		"provider", providerID,
		"transaction_id", out.Transaction.TransactionID,
		"type", out.Transaction.Type,
		"player_id", out.Transaction.PlayerID,
		"amount", out.Transaction.Amount,
	}

	switch {
	case !out.Result.Success:
		slog.Warn("wallet callback rejected", append(attrs, "code", out.Result.Code, "error", out.Err)...)
	case out.Replayed:
		slog.Info("wallet callback replayed", append(attrs, "balance", out.Result.Balance)...)
	default:
		slog.Info("wallet callback applied", append(attrs, "balance", out.Result.Balance)...)
	}
}
