package api

import (
	"fmt"
	"net/http"
	"time"
)

// NewServer returns the gateway HTTP server. WriteTimeout leaves room for a
// launch that walks several providers.
func NewServer(port uint16, svc Services) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewRouter(svc),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
