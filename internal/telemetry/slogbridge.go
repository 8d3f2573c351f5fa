package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// SlogBridge wraps an slog.Handler and stamps every record emitted under an
// active span with trace_id, span_id and trace_sampled.
type SlogBridge struct {
	inner slog.Handler
}

func NewSlogBridge(inner slog.Handler) *SlogBridge {
	return &SlogBridge{inner: inner}
}

func (h *SlogBridge) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *SlogBridge) Handle(ctx context.Context, record slog.Record) error {
	if attrs := spanAttrs(ctx); attrs != nil {
		record.AddAttrs(attrs...)
	}
	return h.inner.Handle(ctx, record)
}

func (h *SlogBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewSlogBridge(h.inner.WithAttrs(attrs))
}

func (h *SlogBridge) WithGroup(name string) slog.Handler {
	return NewSlogBridge(h.inner.WithGroup(name))
}

func spanAttrs(ctx context.Context) []slog.Attr {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []slog.Attr{
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
		slog.Bool("trace_sampled", sc.IsSampled()),
	}
}
