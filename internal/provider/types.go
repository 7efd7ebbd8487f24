// Package provider defines the provider adapter port: a uniform contract
// over heterogeneous LLM HTTP/SDK backends, and the registry that
// constructs adapter instances by name from registered factories.
package provider

import "context"

// Role is a message role in a generate request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// FinishReason describes why a generation stopped.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishError         FinishReason = "error"
)

// ReasoningConfig negotiates a reasoning/thinking budget with the backend.
// At most one of Effort, BudgetTokens, ThinkingLevel is meaningful for any
// given provider; adapters translate whichever field their backend
// understands and drop (with a warning) fields it does not support.
type ReasoningConfig struct {
	Enabled bool `json:"enabled"`

	// Effort is one of "low", "medium", "high" for effort-style backends.
	Effort string `json:"effort,omitempty"`

	// BudgetTokens is a token budget for thinking-budget-style backends.
	// Adapters clamp this to the provider's supported range and log a
	// warning when clamping occurs.
	BudgetTokens int `json:"budget_tokens,omitempty"`

	// ThinkingLevel is one of "minimal", "low", "medium", "high" for
	// thinking-level-style backends.
	ThinkingLevel string `json:"thinking_level,omitempty"`
}

// StructuredOutputConfig requests a schema-validated JSON response.
type StructuredOutputConfig struct {
	// Schema is the canonical JSON Schema (untransformed); adapters apply
	// their own provider-variant transform (see package schema) before
	// sending it to the backend.
	Schema map[string]any `json:"schema"`
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
}

// GenerateRequest is the canonical request every adapter translates into
// its backend-native call.
type GenerateRequest struct {
	Messages  []Message `json:"messages"`
	Model     string    `json:"model,omitempty"`
	MaxTokens int       `json:"max_tokens,omitempty"`

	// Temperature must be in [0.0, 2.0]; values outside that range are a
	// configuration error (see ErrInvalidTemperature).
	Temperature float64 `json:"temperature,omitempty"`

	Stream           bool                     `json:"stream,omitempty"`
	StructuredOutput *StructuredOutputConfig  `json:"structured_output,omitempty"`
	Reasoning        *ReasoningConfig         `json:"reasoning,omitempty"`
	ResponseFormat   map[string]any           `json:"response_format,omitempty"`
}

// Usage reports token consumption for a single call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ToolCall is a parsed tool/function call extracted from a response.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// GenerateResponse is the canonical response every adapter produces.
type GenerateResponse struct {
	// Text is nil when the response is a structured/tool-call-only
	// response with no plain-text content.
	Text         *string        `json:"text,omitempty"`
	RawContent   string         `json:"raw_content,omitempty"`
	ToolCalls    []ToolCall     `json:"tool_calls,omitempty"`
	Usage        Usage          `json:"usage"`
	Model        string         `json:"model"`
	FinishReason FinishReason   `json:"finish_reason"`
	RawPayload   map[string]any `json:"raw_payload,omitempty"`
}

// StreamChunk is one partial response delivered while streaming.
type StreamChunk struct {
	TextDelta    string        `json:"text_delta"`
	FinishReason *FinishReason `json:"finish_reason,omitempty"`
}

// Capabilities declares what an adapter's backend supports.
type Capabilities struct {
	Streaming        bool `json:"streaming"`
	ToolUse          bool `json:"tool_use"`
	StructuredOutput bool `json:"structured_output"`
	Multimodal       bool `json:"multimodal"`
	MaxTokens        int  `json:"max_tokens"`
}

// DoctorResult is the outcome of a provider health probe.
type DoctorResult struct {
	OK        bool           `json:"ok"`
	Message   string         `json:"message"`
	LatencyMS float64        `json:"latency_ms"`
	Details   map[string]any `json:"details,omitempty"`
}

// Adapter is the contract every provider backend implements. Adapters are
// stateless beyond their configuration and must be safe for concurrent use
// — the orchestrator calls Generate from multiple goroutines for a single
// run's parallel draft phase.
type Adapter interface {
	// Name returns the adapter's stable registry name (e.g. "openai").
	Name() string

	// Capabilities returns this adapter's static capability descriptor.
	Capabilities() Capabilities

	// Generate performs one generation call. When req.Stream is true and
	// the adapter supports streaming, chunks is non-nil and resp is the
	// zero value; callers must drain chunks to completion. Otherwise resp
	// is populated and chunks is nil.
	Generate(ctx context.Context, req GenerateRequest) (resp GenerateResponse, chunks <-chan StreamChunk, err error)

	// Supports reports whether the adapter's backend supports the named
	// capability ("streaming", "tool_use", "structured_output",
	// "multimodal", "max_tokens").
	Supports(capability string) bool

	// Doctor performs a lightweight health probe. It must be side-effect
	// free modulo the network call itself.
	Doctor(ctx context.Context) (DoctorResult, error)
}
