// Package debug provides context-based debug mode with structured logging.
package debug

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey struct{}

// WithDebug returns a context with request-level debug logging enabled/disabled.
func WithDebug(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, contextKey{}, enabled)
}

// IsEnabled returns true if debug mode is enabled in the context.
func IsEnabled(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(contextKey{}).(bool)
	return v
}

// SetupLogger installs a text slog handler as the process default and returns it.
// Output goes to w (stderr when nil); the level is Debug when enabled, Warn otherwise.
func SetupLogger(w io.Writer, debugEnabled bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelWarn
	if debugEnabled {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
