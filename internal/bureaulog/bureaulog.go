// Package bureaulog provides bureau's process-wide structured logger.
//
// Built directly on log/slog rather than a third-party logging library:
// none of the retrieved example repos call a concrete structured-logging
// package at a call site (grep across the pack surfaces only slog and
// bare fmt/log usage), so there is no corpus idiom to ground a
// third-party logger on. slog is the standard library's own structured
// logger and composes cleanly with bureauerr's coded errors via
// slog.Any("error", err).
package bureaulog

import (
	"context"
	"log/slog"
	"os"

	"bureau/internal/bureauerr"
)

// New returns a JSON-handler logger writing to os.Stderr at the given
// level, tagged with a "component" attribute so Engine, Dispatcher, and
// compaction log lines can be told apart in aggregate.
func New(component string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("component", component)
}

// Err formats err as a log attribute, including its bureauerr.Code when
// present so log aggregation can filter by the taxonomy from spec §7.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Group("error",
		slog.String("message", err.Error()),
		slog.String("code", bureauerr.CodeOf(err).String()),
	)
}

// WithRequestID returns a derived logger tagging every subsequent line
// with a per-connection or per-request identifier.
func WithRequestID(logger *slog.Logger, id string) *slog.Logger {
	return logger.With("request_id", id)
}

// FromContext is a narrow convenience for handlers that thread a logger
// through context.Context rather than passing it explicitly.
type loggerKey struct{}

func IntoContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
