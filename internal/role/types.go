// Package role loads role definitions (system prompts, modes, schema
// references, provider/model/reasoning preferences), resolves deprecated
// aliases to canonical roles with baked-in modes, and composes the final
// system prompt a role+mode pair submits to a provider.
package role

// ProviderPreferences controls which providers a role resolves to.
type ProviderPreferences struct {
	Preferred []string `yaml:"preferred"`
	Fallback  []string `yaml:"fallback"`
	Exclude   []string `yaml:"exclude"`
}

// ReasoningBudget is a role's default reasoning/thinking configuration,
// translated per-adapter into provider.ReasoningConfig.
type ReasoningBudget struct {
	Enabled       bool   `yaml:"enabled"`
	Effort        string `yaml:"effort,omitempty"`
	BudgetTokens  int    `yaml:"budget_tokens,omitempty"`
	ThinkingLevel string `yaml:"thinking_level,omitempty"`
}

// Role is a canonical role definition as loaded from its YAML file.
type Role struct {
	Name          string            `yaml:"name"`
	ModelPack     string            `yaml:"model_pack"`
	Providers     ProviderPreferences `yaml:"providers"`
	Models        map[string]string `yaml:"models"`
	Reasoning     ReasoningBudget   `yaml:"reasoning"`
	SystemPrompt  string            `yaml:"system_prompt"`
	Modes         map[string]string `yaml:"modes"`
	SchemaRef     string            `yaml:"schema"`
}

// Resolved is the outcome of resolving a (subagent name, mode) pair: the
// canonical role, the effective mode, and whether alias resolution fired.
type Resolved struct {
	Role       *Role
	Mode       string
	WasAlias   bool
	AliasInput string
}

// ErrUnknownRole is returned when a name is neither a canonical role nor a
// registered alias.
type ErrUnknownRole struct{ Name string }

func (e ErrUnknownRole) Error() string { return "role: unknown role " + e.Name }

// ErrUnknownMode is returned when a mode is supplied that the resolved
// role does not recognize.
type ErrUnknownMode struct {
	Role string
	Mode string
}

func (e ErrUnknownMode) Error() string {
	return "role: role " + e.Role + " does not recognize mode " + e.Mode
}
