package providers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func knownProtocols(p string) bool {
	return p == "pragmatic" || p == "gamesolution" || p == "infinity"
}

func valid(id string) Descriptor {
	return Descriptor{
		ID:       id,
		Protocol: "pragmatic",
		Currency: "EUR",
		Enabled:  true,
		Credentials: Credentials{
			Endpoint: "https://api.example.test/v1",
			AgentID:  "agent-" + id,
			Secret:   "secret",
		},
	}
}

func TestDescriptor_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(d *Descriptor)
		reason string
	}{
		{"ok", func(*Descriptor) {}, ""},
		{"missing id", func(d *Descriptor) { d.ID = " " }, "missing id"},
		{"missing protocol", func(d *Descriptor) { d.Protocol = "" }, "missing protocol"},
		{"unknown protocol", func(d *Descriptor) { d.Protocol = "netent" }, `unsupported protocol "netent"`},
		{"bad currency", func(d *Descriptor) { d.Currency = "EURO" }, "currency must be a 3-letter code"},
		{"missing agent", func(d *Descriptor) { d.Credentials.AgentID = "" }, "missing agent id"},
		{"missing secret", func(d *Descriptor) { d.Credentials.Secret = "" }, "missing secret"},
		{"relative endpoint", func(d *Descriptor) { d.Credentials.Endpoint = "/v1" }, "endpoint must be an absolute URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := valid("p")
			tt.mutate(&d)

			err := d.Validate(knownProtocols)
			if tt.reason == "" {
				require.NoError(t, err)
				return
			}

			var cerr *ConfigurationError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.reason, cerr.Reason)
		})
	}
}

func TestRegistry_LoadDropsOnlyInvalidProviders(t *testing.T) {
	t.Parallel()

	bad := valid("bad")
	bad.Credentials.Secret = ""

	off := valid("off")
	off.Enabled = false

	reg := New(knownProtocols)
	err := reg.Load(Config{
		Providers: []Descriptor{valid("b"), bad, valid("a"), valid("a"), off},
		Failover:  map[string][]string{"a": {"b", "ghost"}},
	})

	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Len(t, unwrapAll(err), 2)

	_, ok := reg.Get("bad")
	assert.False(t, ok)

	ids := func(ds []Descriptor) []string {
		out := make([]string, 0, len(ds))
		for _, d := range ds {
			out = append(out, d.ID)
		}

		return out
	}

	assert.Equal(t, []string{"a", "b", "off"}, ids(reg.All()))
	assert.Equal(t, []string{"a", "b"}, ids(reg.Enabled()))
	assert.Equal(t, []string{"b", "ghost"}, reg.FailoverOrder("a"))
	assert.Empty(t, reg.FailoverOrder("b"))
	assert.Equal(t, uint64(1), reg.Version())
}

func unwrapAll(err error) []error {
	j, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []error{err}
	}

	return j.Unwrap()
}

func TestRegistry_FailoverOrderIsACopy(t *testing.T) {
	t.Parallel()

	reg := New(nil)
	require.NoError(t, reg.Load(Config{
		Providers: []Descriptor{valid("a"), valid("b")},
		Failover:  map[string][]string{"a": {"b"}},
	}))

	order := reg.FailoverOrder("a")
	order[0] = "mutated"

	assert.Equal(t, []string{"b"}, reg.FailoverOrder("a"))
}

func TestRegistry_ReloadReplacesSnapshotAndNotifies(t *testing.T) {
	t.Parallel()

	reg := New(knownProtocols)
	ch := reg.Subscribe()

	require.NoError(t, reg.Load(Config{Providers: []Descriptor{valid("a")}}))
	require.NoError(t, reg.Load(Config{Providers: []Descriptor{valid("b")}}))

	select {
	case <-ch:
	default:
		t.Fatal("expected a reload notification")
	}

	select {
	case <-ch:
		t.Fatal("notifications coalesce for slow readers")
	default:
	}

	_, ok := reg.Get("a")
	assert.False(t, ok, "reload replaces the whole set")

	_, ok = reg.Get("b")
	assert.True(t, ok)
	assert.Equal(t, uint64(2), reg.Version())
}

func TestParseConfig(t *testing.T) {
	t.Parallel()

	data := []byte(`
providers:
  - id: ppeur
    protocol: pragmatic
    name: Pragmatic EUR
    currency: EUR
    enabled: true
    allow_negative_balance: true
    credentials:
      endpoint: https://pp.example.test
      agent_id: agent-pp
      secret: s1
failover:
  ppeur: [gspeur, infeur]
`)

	cfg, err := ParseConfig(data)
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 1)

	d := cfg.Providers[0]
	assert.Equal(t, "ppeur", d.ID)
	assert.Equal(t, "Pragmatic EUR", d.DisplayName)
	assert.True(t, d.AllowNegativeBalance)
	assert.Equal(t, "agent-pp", d.Credentials.AgentID)
	assert.Equal(t, []string{"gspeur", "infeur"}, cfg.Failover["ppeur"])

	_, err = ParseConfig([]byte("providers: [oops"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnknownProvider))
}
