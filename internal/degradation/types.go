// Package degradation implements runtime failure handling for council runs:
// it classifies provider errors into an Action (continue, retry, fallback,
// abort, skip) and tracks the resulting failure history for a run.
package degradation

import (
	"strconv"
	"strings"
	"time"

	"github.com/llm-council/council/internal/provider"
)

// Action is the action to take in response to a provider failure.
type Action string

const (
	ActionContinue Action = "continue"
	ActionRetry    Action = "retry"
	ActionFallback Action = "fallback"
	ActionAbort    Action = "abort"
	ActionSkip     Action = "skip"
)

// FailureEvent records a single provider failure and the action taken.
type FailureEvent struct {
	Provider         string
	Phase            string // drafts, critique, synthesis
	ErrorType        provider.ErrorType
	ErrorMessage     string
	ActionTaken      Action
	RetryCount       int
	FallbackProvider string
	Timestamp        time.Time
}

// truncatedMessage returns ErrorMessage capped at 200 bytes. Report and
// Summary do not call it; a Report keeps each event's full ErrorMessage.
func (e FailureEvent) truncatedMessage() string {
	const max = 200
	if len(e.ErrorMessage) <= max {
		return e.ErrorMessage
	}
	return e.ErrorMessage[:max]
}

// Decision is the outcome of Policy.Decide for a single failure.
type Decision struct {
	Action           Action
	Reason           string
	RetryDelay       time.Duration
	FallbackProvider string
	BillingURL       string
	ShouldLog        bool
}

// Report summarizes degradation events accumulated over a council run.
type Report struct {
	Failures         []FailureEvent
	TotalRetries     int
	ProvidersSkipped []string
	FallbacksUsed    []string
	Aborted          bool
}

// AddFailure records event and updates the report's derived tallies.
func (r *Report) AddFailure(event FailureEvent) {
	r.Failures = append(r.Failures, event)
	switch event.ActionTaken {
	case ActionRetry:
		r.TotalRetries++
	case ActionSkip:
		if !contains(r.ProvidersSkipped, event.Provider) {
			r.ProvidersSkipped = append(r.ProvidersSkipped, event.Provider)
		}
	case ActionFallback:
		if event.FallbackProvider != "" && !contains(r.FallbacksUsed, event.FallbackProvider) {
			r.FallbacksUsed = append(r.FallbacksUsed, event.FallbackProvider)
		}
	case ActionAbort:
		r.Aborted = true
	}
}

// Summary renders a short human-readable digest of the report, suitable for
// run logs or a CLI footer.
func (r *Report) Summary() string {
	if len(r.Failures) == 0 {
		return "No degradation events"
	}

	summary := "Degradation: " + strconv.Itoa(len(r.Failures)) + " failure(s)"
	if len(r.ProvidersSkipped) > 0 {
		summary += "\n  Skipped: " + strings.Join(r.ProvidersSkipped, ", ")
	}
	if len(r.FallbacksUsed) > 0 {
		summary += "\n  Fallbacks: " + strings.Join(r.FallbacksUsed, ", ")
	}
	if r.TotalRetries > 0 {
		summary += "\n  Retries: " + strconv.Itoa(r.TotalRetries)
	}
	if r.Aborted {
		summary += "\n  Status: ABORTED"
	}
	return summary
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
