// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// NewJSON returns a JSON logger writing to w. Every record carries the
// service name; debug level also records the source position.
func NewJSON(w io.Writer, service string, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	})

	return slog.New(h).With("service", service)
}

// SetupJSON installs a JSON logger on stdout as the slog default.
func SetupJSON(service string, level slog.Level) {
	slog.SetDefault(NewJSON(os.Stdout, service, level))
}
