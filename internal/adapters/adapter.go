// Package adapters translates between the gateway's internal launch and
// wallet models and each provider's wire protocol.
//
// Every protocol is one Adapter value registered under its protocol code.
// Adapters are pure: they never perform I/O, read clocks, or generate random
// values, so each one can be exercised with fixed sample payloads.
package adapters

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"

	"github.com/fastprodman/gamegateway/internal/providers"
	"github.com/shopspring/decimal"
)

// Adapter is the contract every provider protocol implements.
type Adapter interface {
	Protocol() string

	BuildLaunchRequest(req GameLaunchRequest, d providers.Descriptor) (WireRequest, error)
	ParseLaunchResponse(resp WireResponse) (GameLaunchResponse, error)

	// ValidateCallback must run before NormalizeCallback. A nil error means
	// the caller-supplied agent matches the configured credential.
	ValidateCallback(raw []byte, d providers.Descriptor) error
	NormalizeCallback(raw []byte) (NormalizedTransaction, error)
	EncodeCallbackResponse(res CallbackResult) ([]byte, error)

	BuildGameListRequest(d providers.Descriptor) (WireRequest, error)
	ParseGameList(resp WireResponse) ([]Game, error)
}

var table = map[string]Adapter{}

func register(a Adapter) {
	table[a.Protocol()] = a
}

func init() {
	register(pragmatic{})
	register(gameSolution{})
	register(infinity{})
}

// For returns the adapter registered for protocol.
func For(protocol string) (Adapter, error) {
	a, ok := table[protocol]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, protocol)
	}

	return a, nil
}

// Known reports whether an adapter exists for protocol.
func Known(protocol string) bool {
	_, ok := table[protocol]
	return ok
}

// Sign returns the hex HMAC-SHA256 of the canonical "k=v&k=v" form of params
// (keys sorted) keyed by secret. Remote providers verify it; the gateway only
// produces it.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha256.New, []byte(secret))
	for i, k := range keys {
		if i > 0 {
			mac.Write([]byte{'&'})
		}
		mac.Write([]byte(k + "=" + params[k]))
	}

	return hex.EncodeToString(mac.Sum(nil))
}

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// toMinor converts a decimal amount into minor units, rejecting sub-cent
// precision, negative values and anything that does not fit in an int64.
func toMinor(d decimal.Decimal) (int64, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount", ErrMalformedPayload)
	}

	shifted := d.Shift(2)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount supports up to 2 decimals", ErrMalformedPayload)
	}

	if shifted.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("%w: amount out of range", ErrMalformedPayload)
	}

	return shifted.IntPart(), nil
}

func fromMinor(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

func agentMatches(got string, d providers.Descriptor) error {
	if got == "" || !hmac.Equal([]byte(got), []byte(d.Credentials.AgentID)) {
		return ErrInvalidAgent
	}

	return nil
}

func playMode(m Mode) Mode {
	if m == ModeDemo {
		return ModeDemo
	}

	return ModeReal
}
