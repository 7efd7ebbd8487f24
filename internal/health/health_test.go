package health_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/llm-council/council/internal/health"
	"github.com/llm-council/council/internal/provider"
)

type fakeAdapter struct {
	name   string
	result provider.DoctorResult
	err    error
	delay  time.Duration
	calls  int
}

func (f *fakeAdapter) Name() string                         { return f.name }
func (f *fakeAdapter) Capabilities() provider.Capabilities   { return provider.Capabilities{} }
func (f *fakeAdapter) Supports(capability string) bool       { return false }
func (f *fakeAdapter) Generate(ctx context.Context, req provider.GenerateRequest) (provider.GenerateResponse, <-chan provider.StreamChunk, error) {
	return provider.GenerateResponse{}, nil, nil
}
func (f *fakeAdapter) Doctor(ctx context.Context) (provider.DoctorResult, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return provider.DoctorResult{}, ctx.Err()
		}
	}
	return f.result, f.err
}

func TestCheckProvider_Healthy(t *testing.T) {
	checker := health.NewChecker(time.Second)
	adapter := &fakeAdapter{name: "openai", result: provider.DoctorResult{OK: true, Message: "all good"}}

	h := checker.CheckProvider(context.Background(), "openai", adapter)
	if h.Status != health.StatusOK {
		t.Fatalf("expected StatusOK, got %v", h.Status)
	}
	if !h.Usable() {
		t.Error("expected healthy provider to be usable")
	}
}

func TestCheckProvider_NotOKMarksDown(t *testing.T) {
	checker := health.NewChecker(time.Second)
	adapter := &fakeAdapter{name: "openai", result: provider.DoctorResult{OK: false, Message: "401 unauthorized"}}

	h := checker.CheckProvider(context.Background(), "openai", adapter)
	if h.Status != health.StatusDown {
		t.Fatalf("expected StatusDown, got %v", h.Status)
	}
	if h.ErrorType != provider.ErrorAuth {
		t.Errorf("expected ErrorAuth classification, got %v", h.ErrorType)
	}
}

func TestCheckProvider_ErrorClassifiesBySeverity(t *testing.T) {
	checker := health.NewChecker(time.Second)

	authAdapter := &fakeAdapter{name: "openai", err: errors.New("invalid_api_key")}
	h := checker.CheckProvider(context.Background(), "openai", authAdapter)
	if h.Status != health.StatusDown {
		t.Errorf("expected auth error to mark provider down, got %v", h.Status)
	}

	networkAdapter := &fakeAdapter{name: "anthropic", err: errors.New("connection refused")}
	h2 := checker.CheckProvider(context.Background(), "anthropic", networkAdapter)
	if h2.Status != health.StatusDegraded {
		t.Errorf("expected network error to mark provider degraded, got %v", h2.Status)
	}
}

func TestCheckProvider_TimeoutMarksDegraded(t *testing.T) {
	checker := health.NewChecker(20 * time.Millisecond)
	adapter := &fakeAdapter{name: "gemini", delay: 200 * time.Millisecond, result: provider.DoctorResult{OK: true}}

	h := checker.CheckProvider(context.Background(), "gemini", adapter)
	if h.Status != health.StatusDegraded {
		t.Fatalf("expected StatusDegraded on timeout, got %v", h.Status)
	}
	if h.ErrorType != provider.ErrorTimeout {
		t.Errorf("expected ErrorTimeout, got %v", h.ErrorType)
	}
}

func TestCheckProvider_CachesWithinTTL(t *testing.T) {
	checker := health.NewChecker(time.Second)
	adapter := &fakeAdapter{name: "openai", result: provider.DoctorResult{OK: true}}

	checker.CheckProvider(context.Background(), "openai", adapter)
	checker.CheckProvider(context.Background(), "openai", adapter)

	if adapter.calls != 1 {
		t.Errorf("expected doctor to be called once due to caching, got %d calls", adapter.calls)
	}

	checker.ClearCache()
	checker.CheckProvider(context.Background(), "openai", adapter)
	if adapter.calls != 2 {
		t.Errorf("expected a fresh call after ClearCache, got %d calls", adapter.calls)
	}
}

func TestCheckAll_AggregatesAcrossProviders(t *testing.T) {
	checker := health.NewChecker(time.Second)
	adapters := map[string]provider.Adapter{
		"openai":    &fakeAdapter{name: "openai", result: provider.DoctorResult{OK: true}},
		"anthropic": &fakeAdapter{name: "anthropic", result: provider.DoctorResult{OK: false, Message: "down for maintenance"}},
	}

	report := checker.CheckAll(context.Background(), adapters)
	if report.TotalCount != 2 {
		t.Fatalf("expected 2 total providers, got %d", report.TotalCount)
	}
	if report.UsableCount != 1 {
		t.Errorf("expected 1 usable provider, got %d", report.UsableCount)
	}
	if report.AllHealthy {
		t.Error("expected AllHealthy false when one provider is down")
	}
	if len(report.DownProviders()) != 1 || report.DownProviders()[0] != "anthropic" {
		t.Errorf("expected anthropic reported down, got %v", report.DownProviders())
	}
}

func TestShouldSkip_NonRetryableErrorsSkip(t *testing.T) {
	down := health.ProviderHealth{Status: health.StatusDown}
	if !health.ShouldSkip(down) {
		t.Error("expected down provider to be skipped")
	}

	degradedAuth := health.ProviderHealth{Status: health.StatusDegraded, ErrorType: provider.ErrorAuth}
	if !health.ShouldSkip(degradedAuth) {
		t.Error("expected degraded-but-auth-failed provider to be skipped")
	}

	degradedNetwork := health.ProviderHealth{Status: health.StatusDegraded, ErrorType: provider.ErrorNetwork}
	if health.ShouldSkip(degradedNetwork) {
		t.Error("expected degraded network provider to not be skipped")
	}
}

func TestPreflight_FiltersToUsableProviders(t *testing.T) {
	adapters := map[string]provider.Adapter{
		"openai": &fakeAdapter{name: "openai", result: provider.DoctorResult{OK: true}},
		"gemini": &fakeAdapter{name: "gemini", result: provider.DoctorResult{OK: false, Message: "invalid_api_key"}},
	}

	usable, report := health.Preflight(context.Background(), adapters, time.Second, true)
	if len(usable) != 1 {
		t.Fatalf("expected 1 usable provider, got %d", len(usable))
	}
	if _, ok := usable["openai"]; !ok {
		t.Error("expected openai to remain usable")
	}
	if report.TotalCount != 2 {
		t.Errorf("expected report to cover both providers, got %d", report.TotalCount)
	}
}
