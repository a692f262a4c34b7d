package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fastprodman/gamegateway/internal/adapters"
	"github.com/fastprodman/gamegateway/internal/providers"
	"github.com/fastprodman/gamegateway/internal/services/failover"
	"github.com/fastprodman/gamegateway/internal/services/health"
	"github.com/fastprodman/gamegateway/internal/services/wallet"
	"github.com/fastprodman/gamegateway/pkg/respcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRouter struct {
	gotReq     adapters.GameLaunchRequest
	gotPrimary string
	resp       adapters.GameLaunchResponse
}

func (f *fakeRouter) Launch(_ context.Context, req adapters.GameLaunchRequest, primaryID string) adapters.GameLaunchResponse {
	f.gotReq = req
	f.gotPrimary = primaryID

	return f.resp
}

type fakeCallbacks struct {
	gotProvider string
	gotRaw      string
}

func (f *fakeCallbacks) Process(_ context.Context, providerID string, raw []byte) wallet.Outcome {
	f.gotProvider = providerID
	f.gotRaw = string(raw)

	return wallet.Outcome{Body: []byte(`{"error":1,"errorCode":"LedgerError","description":"Request failed"}`)}
}

type fakeHealth []health.ProviderStatus

func (f fakeHealth) Snapshot() []health.ProviderStatus { return f }

type fakeCatalog map[string][]adapters.Game

func (f fakeCatalog) Games(_ context.Context, id string) ([]adapters.Game, error) {
	if id == "down" {
		return nil, errors.New("dial tcp: connection refused")
	}

	g, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", providers.ErrUnknownProvider, id)
	}

	return g, nil
}

type fakeCache struct{ h respcache.Health }

func (f fakeCache) Health() respcache.Health { return f.h }

func newTestServer(t *testing.T, svc Services) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(NewRouter(svc))
	t.Cleanup(srv.Close)

	return srv
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, url, strings.NewReader(body))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(raw)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Services{})

	code, body := do(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestLaunchHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		resp     adapters.GameLaunchResponse
		wantCode int
		wantBody string
	}{
		{
			name:     "success via fallback",
			body:     `{"providerId":"ppeur","gameId":"g1","playerId":"p1","currency":"eur"}`,
			resp:     adapters.GameLaunchResponse{Success: true, GameURL: "https://gs/play", FallbackProviderID: "gspeur"},
			wantCode: http.StatusOK,
			wantBody: `{"success":true,"gameUrl":"https://gs/play","fallbackProviderId":"gspeur"}`,
		},
		{
			name:     "exhausted",
			body:     `{"providerId":"ppeur","gameId":"g1","playerId":"p1"}`,
			resp:     adapters.GameLaunchResponse{ErrorCode: failover.CodeProvidersUnavailable, ErrorMessage: "try later"},
			wantCode: http.StatusServiceUnavailable,
			wantBody: `{"success":false,"errorMessage":"try later","errorCode":"PROVIDERS_UNAVAILABLE"}`,
		},
		{
			name:     "unknown provider",
			body:     `{"providerId":"x","gameId":"g1","playerId":"p1"}`,
			resp:     adapters.GameLaunchResponse{ErrorCode: failover.CodeUnknownProvider, ErrorMessage: "unknown"},
			wantCode: http.StatusNotFound,
			wantBody: `{"success":false,"errorMessage":"unknown","errorCode":"UNKNOWN_PROVIDER"}`,
		},
		{
			name:     "missing game",
			body:     `{"providerId":"ppeur","playerId":"p1"}`,
			wantCode: http.StatusBadRequest,
			wantBody: `{"error":"gameId required"}`,
		},
		{
			name:     "bad mode",
			body:     `{"providerId":"ppeur","gameId":"g1","playerId":"p1","mode":"fun"}`,
			wantCode: http.StatusBadRequest,
			wantBody: `{"error":"mode must be real or demo"}`,
		},
		{
			name:     "unknown field",
			body:     `{"providerId":"ppeur","gameId":"g1","playerId":"p1","extra":1}`,
			wantCode: http.StatusBadRequest,
			wantBody: `{"error":"invalid JSON"}`,
		},
		{
			name:     "empty body",
			body:     ``,
			wantCode: http.StatusBadRequest,
			wantBody: `{"error":"empty body"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := &fakeRouter{resp: tt.resp}
			srv := newTestServer(t, Services{Router: router})

			code, body := do(t, http.MethodPost, srv.URL+"/games/launch", tt.body)
			assert.Equal(t, tt.wantCode, code)
			assert.JSONEq(t, tt.wantBody, body)
		})
	}
}

func TestLaunchHandler_PassesRequestThrough(t *testing.T) {
	t.Parallel()

	router := &fakeRouter{resp: adapters.GameLaunchResponse{Success: true}}
	srv := newTestServer(t, Services{Router: router})

	code, _ := do(t, http.MethodPost, srv.URL+"/games/launch",
		`{"providerId":"ppeur","gameId":"g1","playerId":"p1","mode":"DEMO","currency":"eur","language":"en","returnUrl":"https://casino/back"}`)
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, "ppeur", router.gotPrimary)
	assert.Equal(t, adapters.GameLaunchRequest{
		GameID:    "g1",
		PlayerID:  "p1",
		Mode:      adapters.ModeDemo,
		Currency:  "EUR",
		Language:  "en",
		ReturnURL: "https://casino/back",
	}, router.gotReq)
}

func TestCallbackHandler_AlwaysOKWithProviderBody(t *testing.T) {
	t.Parallel()

	cb := &fakeCallbacks{}
	srv := newTestServer(t, Services{Callbacks: cb})

	code, body := do(t, http.MethodPost, srv.URL+"/callbacks/ppeur", `{"type":"bet"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"error":1,"errorCode":"LedgerError","description":"Request failed"}`, body)
	assert.Equal(t, "ppeur", cb.gotProvider)
	assert.Equal(t, `{"type":"bet"}`, cb.gotRaw)
}

func TestStatusHandler(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Services{Health: fakeHealth{
		{ProviderID: "ppeur", Status: health.StatusOffline, ConsecutiveFailures: 3, ErrorRate: 1},
	}})

	code, body := do(t, http.MethodGet, srv.URL+"/providers/status", "")
	require.Equal(t, http.StatusOK, code)

	var got struct {
		Providers []health.ProviderStatus `json:"providers"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	require.Len(t, got.Providers, 1)
	assert.Equal(t, health.StatusOffline, got.Providers[0].Status)
	assert.Equal(t, 3, got.Providers[0].ConsecutiveFailures)
}

func TestGamesHandler(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Services{Catalog: fakeCatalog{
		"ppeur": {{ID: "g1", Name: "One", ProviderID: "ppeur"}},
	}})

	tests := []struct {
		id       string
		wantCode int
		wantBody string
	}{
		{"ppeur", http.StatusOK, `{"providerId":"ppeur","games":[{"id":"g1","name":"One","providerId":"ppeur","demo":false}]}`},
		{"nope", http.StatusNotFound, `{"error":"unknown provider"}`},
		{"down", http.StatusBadGateway, `{"error":"game list unavailable"}`},
	}

	for _, tt := range tests {
		code, body := do(t, http.MethodGet, srv.URL+"/providers/"+tt.id+"/games", "")
		assert.Equal(t, tt.wantCode, code, tt.id)
		assert.JSONEq(t, tt.wantBody, body, tt.id)
	}
}

func TestCacheHealthHandler(t *testing.T) {
	t.Parallel()

	healthy := newTestServer(t, Services{Cache: fakeCache{respcache.Health{Healthy: true, Stats: respcache.Stats{MaxSize: 10}}}})
	code, _ := do(t, http.MethodGet, healthy.URL+"/cache/health", "")
	assert.Equal(t, http.StatusOK, code)

	sick := newTestServer(t, Services{Cache: fakeCache{respcache.Health{Issues: []string{"high utilization"}}}})
	code, body := do(t, http.MethodGet, sick.URL+"/cache/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "high utilization")
}
