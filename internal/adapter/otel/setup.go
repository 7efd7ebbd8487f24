// Package otel provides a stub for OpenTelemetry tracing setup.
// This will be implemented with a real OTLP exporter once a collector
// endpoint is configured; for now it only establishes the tracer/meter
// names so spans and metrics recorded elsewhere are no-ops without a
// registered SDK provider.
package otel

import (
	"context"
	"log/slog"
)

// ShutdownFunc is called to flush and shut down the trace provider.
type ShutdownFunc func(ctx context.Context) error

// InitTracer returns a no-op shutdown function.
func InitTracer(serviceName string) ShutdownFunc {
	slog.Info("otel stub: InitTracer called", "service", serviceName)
	return func(_ context.Context) error {
		slog.Info("otel stub: shutdown called")
		return nil
	}
}
