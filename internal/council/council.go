// Package council is the top-level facade over a council deliberation: a
// thin wrapper that hides orchestrator construction details behind
// Run/Doctor/Providers, the shape an embedding application or CLI actually
// wants to call.
package council

import (
	"context"
	"sort"

	"github.com/llm-council/council/internal/health"
	"github.com/llm-council/council/internal/orchestrator"
	"github.com/llm-council/council/internal/provider"
	"github.com/llm-council/council/internal/role"
)

// Council is the public entry point for running a multi-provider
// deliberation. It owns no state of its own beyond what it needs to
// describe itself (Providers, AvailableSubagents) — the actual run state
// lives in the orchestrator.
type Council struct {
	providers    map[string]provider.Adapter
	roles        *role.Registry
	orchestrator *orchestrator.Orchestrator
	checker      *health.Checker
}

// New constructs a Council from an already-wired orchestrator and the
// provider/role registries it was built from.
func New(providers map[string]provider.Adapter, roles *role.Registry, orch *orchestrator.Orchestrator) *Council {
	return &Council{
		providers:    providers,
		roles:        roles,
		orchestrator: orch,
		checker:      health.NewChecker(0),
	}
}

// Run executes one council deliberation for (subagent, mode) against task.
func (c *Council) Run(ctx context.Context, task, subagent, mode string, overrides orchestrator.Overrides) orchestrator.Result {
	return c.orchestrator.Run(ctx, task, subagent, mode, overrides)
}

// Doctor checks every configured provider's health and returns the
// aggregated report.
func (c *Council) Doctor(ctx context.Context) health.Report {
	return c.checker.CheckAll(ctx, c.providers)
}

// Providers returns the names of every provider this council was
// constructed with, sorted.
func (c *Council) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AvailableSubagents returns every subagent name the role registry will
// resolve: canonical role names plus the deprecated aliases that still
// resolve to one, sorted together so callers see one flat list.
func (c *Council) AvailableSubagents() []string {
	names := append([]string{}, c.roles.Names()...)
	names = append(names, role.AliasNames()...)
	sort.Strings(names)
	return names
}
