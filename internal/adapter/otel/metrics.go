package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "llm-council"

// Metrics holds all council metric instruments.
type Metrics struct {
	RunsStarted     metric.Int64Counter
	RunsCompleted   metric.Int64Counter
	RunsFailed      metric.Int64Counter
	RunsTimedOut    metric.Int64Counter
	DraftFailures   metric.Int64Counter
	SynthesisRetries metric.Int64Counter
	RunDuration     metric.Float64Histogram
	RunCost         metric.Float64Histogram
	ProviderLatency metric.Float64Histogram
	TokensUsed      metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.RunsStarted, err = meter.Int64Counter("council.runs.started",
		metric.WithDescription("Number of council runs started")); err != nil {
		return nil, err
	}
	if m.RunsCompleted, err = meter.Int64Counter("council.runs.completed",
		metric.WithDescription("Number of council runs completed successfully")); err != nil {
		return nil, err
	}
	if m.RunsFailed, err = meter.Int64Counter("council.runs.failed",
		metric.WithDescription("Number of council runs that ended in failure")); err != nil {
		return nil, err
	}
	if m.RunsTimedOut, err = meter.Int64Counter("council.runs.timed_out",
		metric.WithDescription("Number of council runs that exceeded the global deadline")); err != nil {
		return nil, err
	}
	if m.DraftFailures, err = meter.Int64Counter("council.drafts.failed",
		metric.WithDescription("Number of per-provider draft failures")); err != nil {
		return nil, err
	}
	if m.SynthesisRetries, err = meter.Int64Counter("council.synthesis.retries",
		metric.WithDescription("Number of synthesis retry attempts")); err != nil {
		return nil, err
	}
	if m.RunDuration, err = meter.Float64Histogram("council.run.duration_seconds",
		metric.WithDescription("Run duration in seconds")); err != nil {
		return nil, err
	}
	if m.RunCost, err = meter.Float64Histogram("council.run.cost_usd",
		metric.WithDescription("Estimated run cost in USD")); err != nil {
		return nil, err
	}
	if m.ProviderLatency, err = meter.Float64Histogram("council.provider.latency_seconds",
		metric.WithDescription("Per-provider call latency in seconds")); err != nil {
		return nil, err
	}
	if m.TokensUsed, err = meter.Int64Counter("council.tokens.used",
		metric.WithDescription("Total input+output tokens consumed")); err != nil {
		return nil, err
	}

	return m, nil
}
