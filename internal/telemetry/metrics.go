package telemetry

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Counter creates an Int64Counter on the client meter. Instruments are no-ops
// until Init installs a real meter provider.
func Counter(name, description string) metric.Int64Counter {
	c, err := otel.Meter(meterName).Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		slog.Error("failed to create metric", "metric", name, "error", err)
		return noop.Int64Counter{}
	}
	return c
}
