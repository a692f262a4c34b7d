package providers

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrUnknownProvider = errors.New("unknown provider")

// Credentials are the per-provider secrets and endpoints used by the adapters.
type Credentials struct {
	Endpoint    string `yaml:"endpoint"`
	AgentID     string `yaml:"agent_id"`
	Secret      string `yaml:"secret"`
	Token       string `yaml:"token,omitempty"`
	CallbackURL string `yaml:"callback_url,omitempty"`
}

// Descriptor describes one configured provider. Values are never mutated after
// load; a reload replaces the whole set.
type Descriptor struct {
	ID          string      `yaml:"id"`
	Protocol    string      `yaml:"protocol"`
	DisplayName string      `yaml:"name"`
	Currency    string      `yaml:"currency"`
	Enabled     bool        `yaml:"enabled"`
	Credentials Credentials `yaml:"credentials"`

	// AllowNegativeBalance enables credit play: bets may drive the balance
	// below zero.
	AllowNegativeBalance bool `yaml:"allow_negative_balance"`
}

// ConfigurationError reports a descriptor that cannot be used. It is fatal for
// that provider only.
type ConfigurationError struct {
	ProviderID string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("provider %q: invalid configuration: %s", e.ProviderID, e.Reason)
}

// Validate checks the fields every adapter relies on. knownProtocol reports
// whether an adapter exists for a protocol code; nil skips that check.
func (d Descriptor) Validate(knownProtocol func(string) bool) error {
	switch {
	case strings.TrimSpace(d.ID) == "":
		return &ConfigurationError{ProviderID: d.ID, Reason: "missing id"}
	case d.Protocol == "":
		return &ConfigurationError{ProviderID: d.ID, Reason: "missing protocol"}
	case knownProtocol != nil && !knownProtocol(d.Protocol):
		return &ConfigurationError{ProviderID: d.ID, Reason: fmt.Sprintf("unsupported protocol %q", d.Protocol)}
	case len(d.Currency) != 3:
		return &ConfigurationError{ProviderID: d.ID, Reason: "currency must be a 3-letter code"}
	case d.Credentials.AgentID == "":
		return &ConfigurationError{ProviderID: d.ID, Reason: "missing agent id"}
	case d.Credentials.Secret == "":
		return &ConfigurationError{ProviderID: d.ID, Reason: "missing secret"}
	}

	u, err := url.Parse(d.Credentials.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigurationError{ProviderID: d.ID, Reason: "endpoint must be an absolute URL"}
	}

	return nil
}
