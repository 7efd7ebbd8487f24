package provider_test

import (
	"testing"

	"github.com/llm-council/council/internal/provider"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		text string
		code int
		want provider.ErrorType
	}{
		{"clean exit", "", 0, provider.ErrorNone},
		{"billing", "Error: insufficient_quota for this request", -1, provider.ErrorBilling},
		{"rate limit", "429 Too Many Requests", -1, provider.ErrorRateLimit},
		{"auth", "401 Unauthorized: invalid api key", -1, provider.ErrorAuth},
		{"model unavailable", "model not found: gpt-9", -1, provider.ErrorModelUnavailable},
		{"network", "dial tcp: connection refused", -1, provider.ErrorNetwork},
		{"unknown", "something went sideways", -1, provider.ErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := provider.ClassifyError(tt.text, tt.code)
			if got != tt.want {
				t.Errorf("ClassifyError(%q, %d) = %q, want %q", tt.text, tt.code, got, tt.want)
			}
		})
	}
}

func TestClassifyErrorBillingTakesPrecedence(t *testing.T) {
	// A message that could match both billing and network patterns should
	// classify as billing, since it is checked first and is non-retryable.
	got := provider.ClassifyError("payment required: connection closed by billing service", -1)
	if got != provider.ErrorBilling {
		t.Errorf("got %q, want %q", got, provider.ErrorBilling)
	}
}

func TestNonRetryable(t *testing.T) {
	for _, et := range []provider.ErrorType{provider.ErrorBilling, provider.ErrorAuth, provider.ErrorCLINotFound} {
		if !provider.NonRetryable[et] {
			t.Errorf("expected %q to be non-retryable", et)
		}
	}
	for _, et := range []provider.ErrorType{provider.ErrorRateLimit, provider.ErrorNetwork, provider.ErrorUnknown, provider.ErrorTimeout} {
		if provider.NonRetryable[et] {
			t.Errorf("expected %q to be retryable", et)
		}
	}
}

func TestBillingHelpURL(t *testing.T) {
	if got := provider.BillingHelpURL("OpenAI"); got != "https://platform.openai.com/account/billing" {
		t.Errorf("got %q", got)
	}
	if got := provider.BillingHelpURL("unknown-provider"); got == "" {
		t.Error("expected a non-empty fallback")
	}
}
