package observability

import (
	"context"
	"io"
	"log/slog"

	slogmulti "github.com/samber/slog-multi"

	"github.com/psaforge/copilot/internal/config"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// NewLogger builds the service logger on writer. Each extra writer receives
// the same records as JSON, which is how the optional log file is attached.
func NewLogger(cfg config.Config, writer io.Writer, extra ...io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}

	var primary slog.Handler
	if cfg.Observability.LogJSON {
		primary = slog.NewJSONHandler(writer, opts)
	} else {
		primary = slog.NewTextHandler(writer, opts)
	}

	handler := primary
	if len(extra) > 0 {
		handlers := []slog.Handler{primary}
		for _, w := range extra {
			if w == nil {
				continue
			}
			handlers = append(handlers, slog.NewJSONHandler(w, opts))
		}
		handler = slogmulti.Fanout(handlers...)
	}

	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}
