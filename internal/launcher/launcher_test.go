package launcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fastprodman/gamegateway/internal/adapters"
	"github.com/fastprodman/gamegateway/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func descriptorFor(url, protocol string) providers.Descriptor {
	return providers.Descriptor{
		ID:       "p1",
		Protocol: protocol,
		Currency: "EUR",
		Enabled:  true,
		Credentials: providers.Credentials{
			Endpoint: url,
			AgentID:  "agent",
			Secret:   "secret",
		},
	}
}

func TestLaunch_Success(t *testing.T) {
	t.Parallel()

	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/launch", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)

		_, _ = w.Write([]byte(`{"success":true,"url":"https://inf/play","sessionId":"s-1"}`))
	}))
	t.Cleanup(srv.Close)

	l := New(NewClient(srv.Client()))
	l.newToken = func() string { return "fixed-token" }

	out, err := l.Launch(context.Background(), adapters.GameLaunchRequest{GameID: "g1", PlayerID: "u1"}, descriptorFor(srv.URL, "infinity"))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "https://inf/play", out.GameURL)
	assert.Equal(t, "fixed-token", got["token"], "missing session token is generated")
	assert.Equal(t, "EUR", got["currency"], "currency defaults to the provider's")
}

func TestLaunch_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "non-2xx",
			status: http.StatusServiceUnavailable,
			body:   `maintenance`,
			check: func(t *testing.T, err error) {
				var se *HTTPStatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
				assert.Equal(t, "maintenance", se.Body)
			},
		},
		{
			name:   "provider says no",
			status: http.StatusOK,
			body:   `{"success":false,"reason":"game disabled"}`,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrLaunchRejected)
			},
		},
		{
			name:   "garbage body",
			status: http.StatusOK,
			body:   `<html>`,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, adapters.ErrMalformedPayload)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			_, err := New(NewClient(srv.Client())).Launch(context.Background(),
				adapters.GameLaunchRequest{GameID: "g1", PlayerID: "u1"}, descriptorFor(srv.URL, "infinity"))
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestLaunch_CanceledContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(NewClient(srv.Client())).Launch(ctx,
		adapters.GameLaunchRequest{GameID: "g1", PlayerID: "u1"}, descriptorFor(srv.URL, "pragmatic"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestGames_SetsProviderID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/games", r.URL.Path)
		assert.Equal(t, "agent", r.URL.Query().Get("partner_id"))

		_, _ = w.Write([]byte(`{"status":"OK","games":[{"game_code":"g1","title":"One","has_demo":false}]}`))
	}))
	t.Cleanup(srv.Close)

	games, err := New(NewClient(srv.Client())).Games(context.Background(), descriptorFor(srv.URL, "gamesolution"))
	require.NoError(t, err)
	assert.Equal(t, []adapters.Game{{ID: "g1", Name: "One", ProviderID: "p1"}}, games)
}
