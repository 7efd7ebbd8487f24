package provider

import (
	"errors"
	"strings"
)

// ErrorType classifies a provider invocation failure so the orchestrator's
// degradation policy can decide whether to retry, fall back, or abort.
type ErrorType string

const (
	ErrorNone             ErrorType = "none"
	ErrorTimeout          ErrorType = "timeout"
	ErrorCLINotFound      ErrorType = "cli_not_found"
	ErrorBilling          ErrorType = "billing"
	ErrorRateLimit        ErrorType = "rate_limit"
	ErrorAuth             ErrorType = "auth"
	ErrorModelUnavailable ErrorType = "model_unavailable"
	ErrorNetwork          ErrorType = "network"
	ErrorUnknown          ErrorType = "unknown"
)

// NonRetryable is the set of error types that represent permanent failures;
// retrying them wastes a call (and, for billing, money) with no chance of
// success.
var NonRetryable = map[ErrorType]bool{
	ErrorBilling:     true,
	ErrorAuth:        true,
	ErrorCLINotFound: true,
}

// ErrInvalidTemperature is returned when a GenerateRequest's Temperature is
// outside the [0.0, 2.0] range every adapter accepts.
var ErrInvalidTemperature = errors.New("provider: temperature must be in [0.0, 2.0]")

// ErrStructuredOutputUnsupported is returned by an adapter whose backend
// cannot honor a requested structured output.
var ErrStructuredOutputUnsupported = errors.New("provider: structured output not supported by this adapter")

var billingPatterns = []string{
	"insufficient_quota", "billing", "credit", "payment",
	"exceeded your current quota", "insufficient credits",
	"account has been suspended", "payment required",
	"plan does not include", "upgrade your plan",
}

var rateLimitPatterns = []string{
	"rate_limit", "rate limit", "too many requests", "429", "throttl",
}

var authPatterns = []string{
	"invalid_api_key", "invalid api key", "unauthorized", "authentication",
	"api key not found", "invalid_request_error", "401",
}

var modelUnavailablePatterns = []string{
	"model not found", "model_not_found", "does not exist",
	"model is currently overloaded", "capacity",
}

var networkPatterns = []string{
	"connection", "network", "dns", "socket", "econnrefused", "econnreset", "etimedout",
}

// ClassifyError inspects errText (typically err.Error() or a response body)
// and returns the matching ErrorType. Pattern order matters: billing is
// checked first since it is both non-retryable and the costliest to get
// wrong, followed by rate limiting, auth, model availability, and network.
func ClassifyError(errText string, returnCode int) ErrorType {
	if errText == "" && returnCode == 0 {
		return ErrorNone
	}

	lower := strings.ToLower(errText)

	for _, p := range billingPatterns {
		if strings.Contains(lower, p) {
			return ErrorBilling
		}
	}
	for _, p := range rateLimitPatterns {
		if strings.Contains(lower, p) {
			return ErrorRateLimit
		}
	}
	for _, p := range authPatterns {
		if strings.Contains(lower, p) {
			return ErrorAuth
		}
	}
	for _, p := range modelUnavailablePatterns {
		if strings.Contains(lower, p) {
			return ErrorModelUnavailable
		}
	}
	for _, p := range networkPatterns {
		if strings.Contains(lower, p) {
			return ErrorNetwork
		}
	}

	return ErrorUnknown
}

var billingHelpURLs = map[string]string{
	"openai":     "https://platform.openai.com/account/billing",
	"anthropic":  "https://console.anthropic.com/settings/billing",
	"claude":     "https://console.anthropic.com/settings/billing",
	"google":     "https://console.cloud.google.com/billing",
	"gemini":     "https://console.cloud.google.com/billing",
	"openrouter": "https://openrouter.ai/account/credits",
}

// BillingHelpURL returns a help URL for the named provider's billing page,
// or a generic fallback string when the provider is not recognized.
func BillingHelpURL(name string) string {
	if url, ok := billingHelpURLs[strings.ToLower(name)]; ok {
		return url
	}
	return "check your provider's billing page"
}
