// Package catalog serves provider game lists through the response cache.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastprodman/gamegateway/internal/adapters"
	"github.com/fastprodman/gamegateway/internal/providers"
	"github.com/fastprodman/gamegateway/pkg/respcache"
)

type Registry interface {
	Get(id string) (providers.Descriptor, bool)
	Subscribe() <-chan struct{}
}

type Fetcher interface {
	Games(ctx context.Context, d providers.Descriptor) ([]adapters.Game, error)
}

type Service struct {
	reg   Registry
	fetch Fetcher
	cache *respcache.Cache[[]adapters.Game]
	ttl   time.Duration
}

func New(reg Registry, f Fetcher, cache *respcache.Cache[[]adapters.Game], ttl time.Duration) *Service {
	return &Service{reg: reg, fetch: f, cache: cache, ttl: ttl}
}

func key(providerID string) string {
	return "games:" + providerID
}

// Games returns the game list of providerID, fetching it on a cache miss.
func (s *Service) Games(ctx context.Context, providerID string) ([]adapters.Game, error) {
	d, ok := s.reg.Get(providerID)
	if !ok || !d.Enabled {
		return nil, fmt.Errorf("%w: %s", providers.ErrUnknownProvider, providerID)
	}

	games, err := s.cache.GetOrFetch(ctx, key(providerID), func(ctx context.Context) ([]adapters.Game, error) {
		return s.fetch.Games(ctx, d)
	}, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("games of %s: %w", providerID, err)
	}

	return games, nil
}

// Invalidate drops every cached list.
func (s *Service) Invalidate() {
	s.cache.Clear()
}

// WatchRegistry clears the cache after every registry reload until ctx is
// done, so lists never outlive the credentials they were fetched with.
func (s *Service) WatchRegistry(ctx context.Context) {
	ch := s.reg.Subscribe()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				s.Invalidate()
				slog.Info("game catalog cache cleared after provider reload")
			}
		}
	}()
}
