package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter registers every gateway endpoint on a chi router.
func NewRouter(svc Services) http.Handler {
	h := NewHandler(svc)
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Post("/games/launch", h.LaunchHandler)
	r.Post("/callbacks/{providerId}", h.CallbackHandler)

	r.Get("/providers/status", h.StatusHandler)
	r.Get("/providers/{providerId}/games", h.GamesHandler)

	r.Get("/cache/health", h.CacheHealthHandler)

	return r
}
