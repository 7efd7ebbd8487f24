package degradation_test

import (
	"errors"
	"testing"
	"time"

	"github.com/llm-council/council/internal/degradation"
)

func TestDecide_BillingErrorWithoutFallbackSkips(t *testing.T) {
	p := degradation.NewDefaultPolicy(nil)
	d := p.Decide("openai", errors.New("insufficient_quota: billing issue"), "drafts", 1)

	if d.Action != degradation.ActionSkip {
		t.Fatalf("expected skip, got %v", d.Action)
	}
	if d.BillingURL == "" {
		t.Error("expected billing URL to be populated")
	}
}

func TestDecide_BillingErrorWithFallbackFallsBack(t *testing.T) {
	p := degradation.NewDefaultPolicy(map[string]string{"openai": "anthropic"})
	d := p.Decide("openai", errors.New("insufficient_quota"), "drafts", 1)

	if d.Action != degradation.ActionFallback {
		t.Fatalf("expected fallback, got %v", d.Action)
	}
	if d.FallbackProvider != "anthropic" {
		t.Errorf("expected fallback provider anthropic, got %q", d.FallbackProvider)
	}
}

func TestDecide_AuthErrorNoRemainingProvidersAbortsInCriticalPhase(t *testing.T) {
	p := degradation.NewDefaultPolicy(nil)
	d := p.Decide("openai", errors.New("401 unauthorized"), "synthesis", 0)

	if d.Action != degradation.ActionAbort {
		t.Fatalf("expected abort, got %v", d.Action)
	}
}

func TestDecide_RateLimitRetriesWithExponentialBackoff(t *testing.T) {
	p := degradation.NewDefaultPolicy(nil)

	first := p.Decide("openai", errors.New("rate limit exceeded"), "drafts", 1)
	if first.Action != degradation.ActionRetry {
		t.Fatalf("expected retry on first failure, got %v", first.Action)
	}
	if first.RetryDelay != time.Second {
		t.Errorf("expected 1s base delay, got %v", first.RetryDelay)
	}

	second := p.Decide("openai", errors.New("rate limit exceeded"), "drafts", 1)
	if second.Action != degradation.ActionRetry {
		t.Fatalf("expected retry on second failure, got %v", second.Action)
	}
	if second.RetryDelay != 2*time.Second {
		t.Errorf("expected 2s delay on second attempt, got %v", second.RetryDelay)
	}

	third := p.Decide("openai", errors.New("rate limit exceeded"), "drafts", 1)
	if third.Action == degradation.ActionRetry {
		t.Fatal("expected max retries exceeded on third failure")
	}
}

func TestDecide_RetryDelayCapsAtMax(t *testing.T) {
	p := degradation.NewPolicy(10, nil, 1, true)
	var last degradation.Decision
	for i := 0; i < 6; i++ {
		last = p.Decide("openai", errors.New("network timeout"), "drafts", 1)
	}
	if last.RetryDelay != degradation.MaxRetryDelay {
		t.Errorf("expected delay capped at %v, got %v", degradation.MaxRetryDelay, last.RetryDelay)
	}
}

func TestDecide_ModelUnavailableFallsBackOrSkips(t *testing.T) {
	p := degradation.NewDefaultPolicy(map[string]string{"openai": "anthropic"})
	d := p.Decide("openai", errors.New("model not found"), "drafts", 1)
	if d.Action != degradation.ActionFallback {
		t.Fatalf("expected fallback, got %v", d.Action)
	}

	p2 := degradation.NewDefaultPolicy(nil)
	d2 := p2.Decide("openai", errors.New("model not found"), "drafts", 1)
	if d2.Action != degradation.ActionSkip {
		t.Fatalf("expected skip, got %v", d2.Action)
	}
}

func TestDecide_MaxRetriesExceededAbortsWhenNoProvidersRemain(t *testing.T) {
	p := degradation.NewPolicy(1, nil, 1, true)
	p.Decide("openai", errors.New("connection reset"), "synthesis", 0)
	second := p.Decide("openai", errors.New("connection reset"), "synthesis", 0)

	if second.Action != degradation.ActionAbort {
		t.Fatalf("expected abort after exhausting retries, got %v", second.Action)
	}
}

func TestDecide_ContinuesWithEnoughRemainingProviders(t *testing.T) {
	p := degradation.NewDefaultPolicy(nil)
	d := p.Decide("openai", errors.New("some unclassified error"), "drafts", 2)

	if d.Action != degradation.ActionContinue {
		t.Fatalf("expected continue, got %v", d.Action)
	}
}

func TestReset_ClearsRetryCountsAndReport(t *testing.T) {
	p := degradation.NewDefaultPolicy(nil)
	p.Decide("openai", errors.New("rate limit"), "drafts", 1)

	if len(p.Report().Failures) != 1 {
		t.Fatalf("expected 1 recorded failure before reset")
	}

	p.Reset()
	if len(p.Report().Failures) != 0 {
		t.Fatalf("expected report cleared after reset")
	}

	// Retry counter should also be cleared: a fresh rate limit failure
	// should be treated as attempt 1 again, not attempt 3.
	d := p.Decide("openai", errors.New("rate limit"), "drafts", 1)
	if d.RetryDelay != time.Second {
		t.Errorf("expected reset retry counter to restart backoff at 1s, got %v", d.RetryDelay)
	}
}

func TestReport_SummaryReflectsSkipsAndFallbacks(t *testing.T) {
	p := degradation.NewDefaultPolicy(map[string]string{"gemini": "openai"})
	p.Decide("openai", errors.New("401 unauthorized"), "drafts", 1)
	p.Decide("gemini", errors.New("insufficient_quota"), "drafts", 1)

	report := p.Report()
	if len(report.ProvidersSkipped) == 0 && len(report.FallbacksUsed) == 0 {
		t.Fatal("expected either a skip or a fallback to be recorded")
	}

	summary := report.Summary()
	if summary == "" || summary == "No degradation events" {
		t.Errorf("expected non-empty summary reflecting recorded events, got %q", summary)
	}
}
