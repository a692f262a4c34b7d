package adapters

import (
	"errors"
	"net/http"
)

type Mode string

const (
	ModeReal Mode = "real"
	ModeDemo Mode = "demo"
)

// GameLaunchRequest is created per launch call and consumed once.
type GameLaunchRequest struct {
	GameID       string `json:"gameId"`
	PlayerID     string `json:"playerId"`
	Mode         Mode   `json:"mode"`
	Currency     string `json:"currency"`
	Language     string `json:"language"`
	ReturnURL    string `json:"returnUrl"`
	SessionToken string `json:"sessionToken,omitempty"`
}

// GameLaunchResponse is what the caller of a launch gets back.
type GameLaunchResponse struct {
	Success            bool   `json:"success"`
	GameURL            string `json:"gameUrl,omitempty"`
	SessionID          string `json:"sessionId,omitempty"`
	ErrorMessage       string `json:"errorMessage,omitempty"`
	ErrorCode          string `json:"errorCode,omitempty"`
	FallbackProviderID string `json:"fallbackProviderId,omitempty"`
}

type TxType string

const (
	TxBet     TxType = "bet"
	TxWin     TxType = "win"
	TxRefund  TxType = "refund"
	TxBalance TxType = "balance"
)

// NormalizedTransaction is the provider-independent form of a wallet callback.
// Amount is in minor units.
type NormalizedTransaction struct {
	PlayerID              string
	GameID                string
	RoundID               string
	TransactionID         string
	OriginalTransactionID string
	Amount                int64
	Currency              string
	Type                  TxType
	ProviderCode          string
}

type ErrorCode string

const (
	CodeInvalidAgent           ErrorCode = "INVALID_AGENT"
	CodeInvalidTransactionType ErrorCode = "INVALID_TRANSACTION_TYPE"
	CodeInternalError          ErrorCode = "INTERNAL_ERROR"
	CodeLedgerError            ErrorCode = "LedgerError"
)

// CallbackResult is the outcome of processing one callback, rendered back to
// the provider by EncodeCallbackResponse.
type CallbackResult struct {
	Success       bool
	TransactionID string
	Balance       int64
	Currency      string
	Code          ErrorCode
}

// Game is one entry of a provider's game list.
type Game struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ProviderID string `json:"providerId"`
	Demo       bool   `json:"demo"`
}

// WireRequest is a provider-shaped HTTP request, built without performing I/O.
type WireRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// WireResponse is the raw provider answer handed back to the adapter.
type WireResponse struct {
	StatusCode int
	Body       []byte
}

var (
	ErrInvalidAgent           = errors.New("invalid agent")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrMalformedPayload       = errors.New("malformed payload")
	ErrUnknownProtocol        = errors.New("unknown protocol")
)
