package http

import (
	"net/http"
	"time"

	"github.com/llm-council/council/internal/council"
	"github.com/llm-council/council/internal/orchestrator"
)

// Handlers wires the HTTP surface to the council facade.
type Handlers struct {
	Council *council.Council
}

type runRequest struct {
	Task           string            `json:"task"`
	Subagent       string            `json:"subagent"`
	Mode           string            `json:"mode,omitempty"`
	Providers      []string          `json:"providers,omitempty"`
	ModelOverrides map[string]string `json:"model_overrides,omitempty"`

	ProviderTimeoutSeconds int  `json:"provider_timeout_seconds,omitempty"`
	GlobalTimeoutSeconds   int  `json:"global_timeout_seconds,omitempty"`
	MaxRetries             *int `json:"max_retries,omitempty"`

	EnableArtifacts           *bool `json:"enable_artifacts,omitempty"`
	EnableGracefulDegradation *bool `json:"enable_graceful_degradation,omitempty"`
}

// HandleRun handles POST /api/v1/run: runs one council deliberation and
// returns the full orchestrator result, success or not — a failed run is
// still a 200 with Result.Success == false, since the request itself was
// well formed.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[runRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Task, "task") || !requireField(w, req.Subagent, "subagent") {
		return
	}

	overrides := orchestrator.Overrides{
		Providers:                 req.Providers,
		ModelOverrides:            req.ModelOverrides,
		MaxRetries:                req.MaxRetries,
		EnableArtifacts:           req.EnableArtifacts,
		EnableGracefulDegradation: req.EnableGracefulDegradation,
	}
	if req.ProviderTimeoutSeconds > 0 {
		overrides.ProviderTimeout = time.Duration(req.ProviderTimeoutSeconds) * time.Second
	}
	if req.GlobalTimeoutSeconds > 0 {
		overrides.GlobalTimeout = time.Duration(req.GlobalTimeoutSeconds) * time.Second
	}

	result := h.Council.Run(r.Context(), req.Task, req.Subagent, req.Mode, overrides)
	writeJSON(w, http.StatusOK, result)
}

// HandleDoctor handles GET /api/v1/doctor: a preflight health check over
// every configured provider.
func (h *Handlers) HandleDoctor(w http.ResponseWriter, r *http.Request) {
	report := h.Council.Doctor(r.Context())
	writeJSON(w, http.StatusOK, report)
}

// HandleProviders handles GET /api/v1/providers.
func (h *Handlers) HandleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"providers": h.Council.Providers()})
}

// HandleSubagents handles GET /api/v1/subagents.
func (h *Handlers) HandleSubagents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"subagents": h.Council.AvailableSubagents()})
}

func requireField(w http.ResponseWriter, value, fieldName string) bool {
	if value == "" {
		writeError(w, http.StatusBadRequest, fieldName+" is required")
		return false
	}
	return true
}
