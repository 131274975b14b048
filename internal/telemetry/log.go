package telemetry

import (
	"context"
	"log/slog"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/debug"
)

// LogSink writes events through slog. Start and success events are only
// logged when debug mode is enabled on the request context.
type LogSink struct {
	Logger *slog.Logger
}

// NewLogSink returns a LogSink on logger, or on slog.Default when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{Logger: logger}
}

func (s *LogSink) logger() *slog.Logger {
	if s == nil || s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Record implements Sink.
func (s *LogSink) Record(ctx context.Context, evt Event) {
	log := s.logger()
	attrs := []any{
		"method", evt.Method,
		"path", evt.Path,
		"attempt", evt.Attempt,
	}
	if evt.Tenant != "" {
		attrs = append(attrs, "tenant", evt.Tenant)
	}
	if evt.RequestID != "" {
		attrs = append(attrs, "request_id", evt.RequestID)
	}

	switch evt.Type {
	case EventStart, EventCacheHit, EventCacheMiss:
		if debug.IsEnabled(ctx) {
			log.Debug("request "+string(evt.Type), attrs...)
		}
	case EventSuccess:
		if debug.IsEnabled(ctx) {
			log.Debug("request complete", append(attrs, "status", evt.Status, "duration", evt.Duration)...)
		}
	case EventRetry:
		log.Info("request failed, retrying", append(attrs, "delay", evt.Delay, "error", evt.Err)...)
	case EventFailure:
		if evt.Status > 0 {
			attrs = append(attrs, "status", evt.Status)
		}
		log.Warn("request failed", append(attrs, "duration", evt.Duration, "error", evt.Err)...)
	}
}
