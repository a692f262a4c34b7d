package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fastprodman/gamegateway/internal/adapters"
	"github.com/fastprodman/gamegateway/internal/providers"
	"github.com/fastprodman/gamegateway/internal/services/failover"
	"github.com/fastprodman/gamegateway/internal/services/health"
	"github.com/fastprodman/gamegateway/internal/services/wallet"
	"github.com/fastprodman/gamegateway/pkg/respcache"
	"github.com/go-chi/chi/v5"
)

const maxBody = 1 << 20

type Router interface {
	Launch(ctx context.Context, req adapters.GameLaunchRequest, primaryID string) adapters.GameLaunchResponse
}

type CallbackProcessor interface {
	Process(ctx context.Context, providerID string, raw []byte) wallet.Outcome
}

type HealthReader interface {
	Snapshot() []health.ProviderStatus
}

type Catalog interface {
	Games(ctx context.Context, providerID string) ([]adapters.Game, error)
}

type CacheReporter interface {
	Health() respcache.Health
}

// Services is everything the HTTP layer calls into.
type Services struct {
	Router    Router
	Callbacks CallbackProcessor
	Health    HealthReader
	Catalog   Catalog
	Cache     CacheReporter
}

// HandlerProvider exposes the gateway services as HTTP handlers.
type HandlerProvider struct {
	svc Services
}

func NewHandler(svc Services) *HandlerProvider {
	return &HandlerProvider{svc: svc}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type launchRequest struct {
	ProviderID   string `json:"providerId"`
	GameID       string `json:"gameId"`
	PlayerID     string `json:"playerId"`
	Mode         string `json:"mode"`
	Currency     string `json:"currency"`
	Language     string `json:"language"`
	ReturnURL    string `json:"returnUrl"`
	SessionToken string `json:"sessionToken"`
}

func (lr launchRequest) toLaunch() (adapters.GameLaunchRequest, error) {
	switch {
	case strings.TrimSpace(lr.ProviderID) == "":
		return adapters.GameLaunchRequest{}, errors.New("providerId required")
	case strings.TrimSpace(lr.GameID) == "":
		return adapters.GameLaunchRequest{}, errors.New("gameId required")
	case strings.TrimSpace(lr.PlayerID) == "":
		return adapters.GameLaunchRequest{}, errors.New("playerId required")
	}

	mode := adapters.Mode(strings.ToLower(strings.TrimSpace(lr.Mode)))
	switch mode {
	case "":
		mode = adapters.ModeReal
	case adapters.ModeReal, adapters.ModeDemo:
	default:
		return adapters.GameLaunchRequest{}, errors.New("mode must be real or demo")
	}

	return adapters.GameLaunchRequest{
		GameID:       lr.GameID,
		PlayerID:     lr.PlayerID,
		Mode:         mode,
		Currency:     strings.ToUpper(lr.Currency),
		Language:     lr.Language,
		ReturnURL:    lr.ReturnURL,
		SessionToken: lr.SessionToken,
	}, nil
}

func launchStatus(resp adapters.GameLaunchResponse) int {
	if resp.Success {
		return http.StatusOK
	}

	switch resp.ErrorCode {
	case failover.CodeUnknownProvider:
		return http.StatusNotFound
	case failover.CodeProvidersUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// --- Handlers ---

// LaunchHandler handles POST /games/launch
func (h *HandlerProvider) LaunchHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	defer r.Body.Close()

	var body launchRequest

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(&body)
	if err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "empty body")
			return
		}

		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req, err := body.toLaunch()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := h.svc.Router.Launch(r.Context(), req, body.ProviderID)

	writeJSON(w, launchStatus(resp), resp)
}

// CallbackHandler handles POST /callbacks/{providerId}. Processed and
// rejected callbacks both answer 200; the provider reads the body.
func (h *HandlerProvider) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerId")

	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	defer r.Body.Close()

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	out := h.svc.Callbacks.Process(r.Context(), providerID, raw)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	_, err = w.Write(out.Body)
	if err != nil {
		slog.Warn("write callback response", "provider", providerID, "error", err)
	}
}

// StatusHandler handles GET /providers/status
func (h *HandlerProvider) StatusHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": h.svc.Health.Snapshot()})
}

// GamesHandler handles GET /providers/{providerId}/games
func (h *HandlerProvider) GamesHandler(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerId")

	games, err := h.svc.Catalog.Games(r.Context(), providerID)
	if err != nil {
		if errors.Is(err, providers.ErrUnknownProvider) {
			writeError(w, http.StatusNotFound, "unknown provider")
			return
		}

		slog.Warn("game list unavailable", "provider", providerID, "error", err)
		writeError(w, http.StatusBadGateway, "game list unavailable")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"providerId": providerID, "games": games})
}

// CacheHealthHandler handles GET /cache/health
func (h *HandlerProvider) CacheHealthHandler(w http.ResponseWriter, _ *http.Request) {
	hl := h.svc.Cache.Health()

	status := http.StatusOK
	if !hl.Healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, hl)
}
