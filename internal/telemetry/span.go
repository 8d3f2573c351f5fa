package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	cacheTracerName = "enzyme.client.cache"
	meterName       = "enzyme.client"
)

// StartCacheSpan starts a span around an offline cache operation. The caller
// must call the returned end function when the operation completes.
//
//	ctx, end := telemetry.StartCacheSpan(ctx, "cache.StorePage")
//	defer end()
func StartCacheSpan(ctx context.Context, operation string) (context.Context, func()) {
	ctx, span := otel.Tracer(cacheTracerName).Start(ctx, operation,
		trace.WithAttributes(
			attribute.String("db.system", "sqlite"),
		),
	)
	return ctx, func() { span.End() }
}
