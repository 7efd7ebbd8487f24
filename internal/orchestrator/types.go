// Package orchestrator coordinates a council run's three phases — parallel
// drafts, adversarial critique, and synthesis with retry — enforcing
// per-call and global deadlines and degrading gracefully on partial
// provider failure.
package orchestrator

import (
	"time"

	"github.com/llm-council/council/internal/degradation"
	"github.com/llm-council/council/internal/health"
)

// Timing records how long one phase took.
type Timing struct {
	Phase      string `json:"phase"`
	DurationMS int64  `json:"duration_ms"`
}

// CostEstimate is a token-usage-derived cost estimate for a run, computed
// from the orchestrator's configured per-1k-token rates.
type CostEstimate struct {
	ProviderCalls     map[string]int `json:"provider_calls"`
	TotalInputTokens  int            `json:"total_input_tokens"`
	TotalOutputTokens int            `json:"total_output_tokens"`
	TotalTokens       int            `json:"total_tokens"`
	EstimatedCostUSD  float64        `json:"estimated_cost_usd"`
}

// Overrides lets a caller adjust a single run's behavior without touching
// process-wide configuration.
type Overrides struct {
	// Providers, if non-empty, replaces the orchestrator's default
	// provider set for this run only.
	Providers []string

	// ModelOverrides maps provider name -> model id, applied on top of the
	// role's own per-provider model overrides.
	ModelOverrides map[string]string

	ProviderTimeout time.Duration
	GlobalTimeout   time.Duration

	// MaxRetries overrides the synthesis retry budget when non-nil; zero
	// is a valid override meaning "exactly one synthesis attempt".
	MaxRetries *int

	EnableArtifacts           *bool
	EnableGracefulDegradation *bool
}

// Result is the outcome of one council run.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	ResolvedRole string `json:"resolved_role,omitempty"`
	Mode         string `json:"mode,omitempty"`

	Output           map[string]any `json:"output,omitempty"`
	Drafts           map[string]string `json:"drafts,omitempty"`
	Critique         string            `json:"critique,omitempty"`
	SynthesisAttempts int              `json:"synthesis_attempts"`
	RetryCount        int              `json:"retry_count"`

	DurationMS   int64    `json:"duration_ms"`
	PhaseTimings []Timing `json:"phase_timings,omitempty"`

	ValidationErrors []string          `json:"validation_errors,omitempty"`
	ProviderErrors   map[string]string `json:"provider_errors,omitempty"`

	Cost CostEstimate `json:"cost_estimate"`

	RunID             string         `json:"run_id,omitempty"`
	HealthReport      *health.Report `json:"health_report,omitempty"`
	DegradationReport *degradation.Report `json:"degradation_report,omitempty"`
	DegradationNotes  []string       `json:"degradation_notes,omitempty"`

	ArtifactIDs []string `json:"artifact_ids,omitempty"`
}
