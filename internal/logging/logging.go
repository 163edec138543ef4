// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// New returns a JSON logger for prod and a text logger otherwise. Debug
// records are only emitted in dev.
func New(env string, w io.Writer) *slog.Logger {
	env = strings.ToLower(strings.TrimSpace(env))
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if env == "dev" {
		opts.Level = slog.LevelDebug
	}

	var h slog.Handler
	if env == "prod" || env == "production" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("service", "account-service")
}
