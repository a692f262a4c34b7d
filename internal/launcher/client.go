package launcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/fastprodman/gamegateway/internal/adapters"
)

const maxResponseBody = 1 << 20

// HTTPStatusError is a provider answer outside the 2xx range.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("provider answered HTTP %d", e.StatusCode)
}

// NewHTTPClient returns the client shared by every outbound provider call.
// It has no overall timeout; callers bound each call with a context.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        512,
		MaxIdleConnsPerHost: 64,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
	}

	return &http.Client{Transport: transport}
}

// Client executes adapter wire requests.
type Client struct {
	http *http.Client
}

func NewClient(hc *http.Client) *Client {
	if hc == nil {
		hc = NewHTTPClient()
	}

	return &Client{http: hc}
}

// Do sends req and returns the response body. Non-2xx answers come back as
// *HTTPStatusError.
func (c *Client) Do(ctx context.Context, req adapters.WireRequest) (adapters.WireResponse, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return adapters.WireResponse{}, fmt.Errorf("build request: %w", err)
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}

	hreq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(hreq)
	if err != nil {
		return adapters.WireResponse{}, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return adapters.WireResponse{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := raw
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}

		return adapters.WireResponse{StatusCode: resp.StatusCode, Body: raw},
			&HTTPStatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	return adapters.WireResponse{StatusCode: resp.StatusCode, Body: raw}, nil
}
