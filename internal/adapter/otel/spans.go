package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "llm-council"

// StartRunSpan starts a span for one council deliberation run.
func StartRunSpan(ctx context.Context, runID, role, mode string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "council.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.role", role),
			attribute.String("run.mode", mode),
		),
	)
}

// StartPhaseSpan starts a span for one orchestration phase (draft, critique, synthesis).
func StartPhaseSpan(ctx context.Context, runID, phase string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "council.phase",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("phase", phase),
		),
	)
}

// StartProviderCallSpan starts a span for a single provider generate() call.
func StartProviderCallSpan(ctx context.Context, runID, provider, model string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "council.provider_call",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("provider", provider),
			attribute.String("model", model),
		),
	)
}
