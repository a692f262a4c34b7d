package health

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fastprodman/gamegateway/internal/adapters"
	"github.com/fastprodman/gamegateway/internal/launcher"
	"github.com/fastprodman/gamegateway/internal/providers"
)

// HTTPProber checks a provider with GET {endpoint}{path}. Any 2xx is healthy.
type HTTPProber struct {
	client *launcher.Client
	path   string
}

func NewHTTPProber(client *launcher.Client, path string) *HTTPProber {
	return &HTTPProber{client: client, path: path}
}

func (p *HTTPProber) Probe(ctx context.Context, d providers.Descriptor) error {
	u, err := url.JoinPath(d.Credentials.Endpoint, p.path)
	if err != nil {
		return fmt.Errorf("probe url: %w", err)
	}

	_, err = p.client.Do(ctx, adapters.WireRequest{Method: http.MethodGet, URL: u, Header: http.Header{}})
	if err != nil {
		return fmt.Errorf("probe %s: %w", d.ID, err)
	}

	return nil
}
