package degradation

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/llm-council/council/internal/provider"
)

// Default retry limits and exponential backoff bounds for the policy.
const (
	DefaultMaxRetries = 2
	BaseRetryDelay    = time.Second
	MaxRetryDelay     = 10 * time.Second
)

// Policy decides what to do when a provider fails mid-run: retry with
// backoff, fall back to an alternate provider, skip the provider for the
// current phase, abort the run, or continue without it.
type Policy struct {
	maxRetries           int
	fallbackProviders    map[string]string
	minProvidersRequired int
	abortOnAllFailures   bool

	mu          sync.Mutex
	retryCounts map[string]int
	report      Report
}

// NewPolicy constructs a Policy. fallbackProviders maps a provider name to
// the provider to substitute when it fails in a non-retryable way.
func NewPolicy(maxRetries int, fallbackProviders map[string]string, minProvidersRequired int, abortOnAllFailures bool) *Policy {
	if fallbackProviders == nil {
		fallbackProviders = map[string]string{}
	}
	return &Policy{
		maxRetries:           maxRetries,
		fallbackProviders:    fallbackProviders,
		minProvidersRequired: minProvidersRequired,
		abortOnAllFailures:   abortOnAllFailures,
		retryCounts:          make(map[string]int),
	}
}

// NewDefaultPolicy returns a Policy with sensible defaults: two retries, the
// given fallback map, one provider required to continue, and abort-on-total-
// failure enabled.
func NewDefaultPolicy(fallbackProviders map[string]string) *Policy {
	return NewPolicy(DefaultMaxRetries, fallbackProviders, 1, true)
}

// Reset clears retry counters and the accumulated report, for reuse across
// runs.
func (p *Policy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retryCounts = make(map[string]int)
	p.report = Report{}
}

// Report returns a snapshot of the degradation events recorded so far.
func (p *Policy) Report() Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.report
}

// Decide determines how to handle a provider's failure during phase, given
// how many other providers remain available for this phase.
func (p *Policy) Decide(providerName string, err error, phase string, remainingProviders int) Decision {
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	errType := provider.ClassifyError(errText, -1)

	p.mu.Lock()
	retryKey := providerName + ":" + phase
	currentRetries := p.retryCounts[retryKey]
	p.mu.Unlock()

	decision := p.determineAction(providerName, errType, phase, currentRetries, remainingProviders)

	event := FailureEvent{
		Provider:         providerName,
		Phase:            phase,
		ErrorType:        errType,
		ErrorMessage:     errText,
		ActionTaken:      decision.Action,
		RetryCount:       currentRetries,
		FallbackProvider: decision.FallbackProvider,
		Timestamp:        time.Now(),
	}

	p.mu.Lock()
	p.report.AddFailure(event)
	if decision.Action == ActionRetry {
		p.retryCounts[retryKey] = currentRetries + 1
	}
	p.mu.Unlock()

	if decision.ShouldLog {
		slog.Warn("provider failed",
			"provider", providerName, "phase", phase,
			"error_type", errType, "action", decision.Action)
	}

	return decision
}

func (p *Policy) determineAction(providerName string, errType provider.ErrorType, phase string, currentRetries, remainingProviders int) Decision {
	if provider.NonRetryable[errType] {
		var billingURL, reason string
		switch errType {
		case provider.ErrorBilling:
			billingURL = provider.BillingHelpURL(providerName)
			reason = "Billing error: check " + billingURL
		case provider.ErrorAuth:
			reason = "Authentication error: check API key for " + providerName
		default:
			reason = "Non-retryable error: " + string(errType)
		}

		if fallback, ok := p.fallbackProviders[providerName]; ok {
			return Decision{Action: ActionFallback, Reason: reason, FallbackProvider: fallback, BillingURL: billingURL, ShouldLog: true}
		}

		if remainingProviders == 0 && (phase == "critique" || phase == "synthesis") {
			return Decision{Action: ActionAbort, Reason: "Critical failure in " + phase + ": " + reason, BillingURL: billingURL, ShouldLog: true}
		}

		return Decision{Action: ActionSkip, Reason: reason, BillingURL: billingURL, ShouldLog: true}
	}

	if errType == provider.ErrorRateLimit || errType == provider.ErrorTimeout || errType == provider.ErrorNetwork {
		if currentRetries < p.maxRetries {
			delay := BaseRetryDelay * time.Duration(1<<currentRetries)
			if delay > MaxRetryDelay {
				delay = MaxRetryDelay
			}
			return Decision{
				Action:     ActionRetry,
				Reason:     "Retryable error (" + string(errType) + "), attempt " + strconv.Itoa(currentRetries+1),
				RetryDelay: delay,
				ShouldLog:  true,
			}
		}
	}

	if errType == provider.ErrorModelUnavailable {
		if fallback, ok := p.fallbackProviders[providerName]; ok {
			return Decision{Action: ActionFallback, Reason: "Model unavailable, using fallback", FallbackProvider: fallback, ShouldLog: true}
		}
		return Decision{Action: ActionSkip, Reason: "Model unavailable, no fallback configured", ShouldLog: true}
	}

	if currentRetries >= p.maxRetries {
		if fallback, ok := p.fallbackProviders[providerName]; ok {
			return Decision{Action: ActionFallback, Reason: "Max retries exceeded, using fallback", FallbackProvider: fallback, ShouldLog: true}
		}

		if remainingProviders == 0 {
			if phase == "critique" || phase == "synthesis" {
				return Decision{Action: ActionAbort, Reason: "All providers exhausted in " + phase, ShouldLog: true}
			}
			if p.abortOnAllFailures {
				return Decision{Action: ActionAbort, Reason: "All providers exhausted", ShouldLog: true}
			}
		}

		return Decision{Action: ActionSkip, Reason: "Max retries exceeded for " + providerName, ShouldLog: true}
	}

	if remainingProviders >= p.minProvidersRequired {
		return Decision{Action: ActionContinue, Reason: "Continuing with remaining provider(s)", ShouldLog: true}
	}

	if p.abortOnAllFailures {
		return Decision{Action: ActionAbort, Reason: "Below minimum required providers", ShouldLog: true}
	}

	return Decision{Action: ActionContinue, Reason: "Continuing with degraded capacity", ShouldLog: true}
}
