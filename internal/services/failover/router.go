// Package failover routes a launch to its primary provider and, when that
// fails, through the configured fallback candidates.
package failover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastprodman/gamegateway/internal/adapters"
	"github.com/fastprodman/gamegateway/internal/providers"
	"github.com/fastprodman/gamegateway/internal/services/health"
)

const DefaultAttemptTimeout = 10 * time.Second

const (
	CodeProvidersUnavailable = "PROVIDERS_UNAVAILABLE"
	CodeUnknownProvider      = "UNKNOWN_PROVIDER"
	CodeCancelled            = "CANCELLED"
)

const (
	msgUnavailable = "Game is temporarily unavailable, please try again later"
	msgUnknown     = "Unknown game provider"
	msgCancelled   = "Launch cancelled"
)

type Registry interface {
	Get(id string) (providers.Descriptor, bool)
	FailoverOrder(id string) []string
}

type Launcher interface {
	Launch(ctx context.Context, req adapters.GameLaunchRequest, d providers.Descriptor) (adapters.GameLaunchResponse, error)
}

// Health is where attempt outcomes are recorded and statuses are read.
type Health interface {
	Status(id string) (health.ProviderStatus, bool)
	Record(id string, obs health.Observation)
}

type Router struct {
	reg     Registry
	launch  Launcher
	health  Health
	timeout time.Duration
}

func New(reg Registry, l Launcher, h Health, attemptTimeout time.Duration) *Router {
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}

	return &Router{reg: reg, launch: l, health: h, timeout: attemptTimeout}
}

type attempt struct {
	resp adapters.GameLaunchResponse
	err  error
}

// Launch tries primaryID, then its fallback candidates, and returns the first
// successful response. A disabled primary is reported as unknown. It always returns a response; failures carry a
// user-safe message and an internal code.
func (r *Router) Launch(ctx context.Context, req adapters.GameLaunchRequest, primaryID string) adapters.GameLaunchResponse {
	primary, ok := r.reg.Get(primaryID)
	if !ok || !primary.Enabled {
		return failure(CodeUnknownProvider, msgUnknown)
	}

	var causes []error

	for _, d := range r.candidates(primary) {
		resp, err := r.try(ctx, req, d)
		if err == nil {
			if d.ID != primary.ID {
				resp.FallbackProviderID = d.ID
				slog.Info("launch served by fallback provider", "primary", primary.ID, "provider", d.ID, "game_id", req.GameID)
			}

			return resp
		}

		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			slog.Info("launch cancelled by caller", "primary", primary.ID, "provider", d.ID)
			return failure(CodeCancelled, msgCancelled)
		}

		slog.Warn("launch attempt failed", "primary", primary.ID, "provider", d.ID, "error", err)
		causes = append(causes, fmt.Errorf("%s: %w", d.ID, err))
	}

	slog.Error("all providers failed for launch",
		"primary", primary.ID, "game_id", req.GameID, "error", errors.Join(causes...))

	return failure(CodeProvidersUnavailable, msgUnavailable)
}

// candidates is the primary followed by every usable fallback in order.
func (r *Router) candidates(primary providers.Descriptor) []providers.Descriptor {
	out := []providers.Descriptor{primary}
	seen := map[string]bool{primary.ID: true}

	for _, id := range r.reg.FailoverOrder(primary.ID) {
		if seen[id] {
			continue
		}

		seen[id] = true

		d, ok := r.reg.Get(id)
		if !ok || !d.Enabled {
			continue
		}

		st, known := r.health.Status(id)
		if known && st.Status == health.StatusOffline {
			slog.Debug("skipping offline fallback", "primary", primary.ID, "provider", id)
			continue
		}

		out = append(out, d)
	}

	return out
}

// try runs one attempt detached from ctx so its outcome is always recorded.
// If ctx ends first the attempt keeps running in the background and its
// result is dropped.
func (r *Router) try(ctx context.Context, req adapters.GameLaunchRequest, d providers.Descriptor) (adapters.GameLaunchResponse, error) {
	done := make(chan attempt, 1)

	go func() {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		start := time.Now()
		resp, err := r.launch.Launch(actx, req, d)

		r.health.Record(d.ID, health.Observation{At: start, Duration: time.Since(start), Err: err})

		done <- attempt{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return adapters.GameLaunchResponse{}, fmt.Errorf("attempt %s: %w", d.ID, context.Canceled)
	case a := <-done:
		if ctx.Err() != nil {
			return adapters.GameLaunchResponse{}, fmt.Errorf("attempt %s: %w", d.ID, context.Canceled)
		}

		return a.resp, a.err
	}
}

func failure(code, msg string) adapters.GameLaunchResponse {
	return adapters.GameLaunchResponse{Success: false, ErrorCode: code, ErrorMessage: msg}
}
