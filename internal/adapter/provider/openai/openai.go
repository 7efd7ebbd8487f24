// Package openai implements the provider Adapter contract against the
// OpenAI-compatible chat completions REST API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/llm-council/council/internal/provider"
	"github.com/llm-council/council/internal/resilience"
	"github.com/llm-council/council/internal/schema"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-5.1"
)

// structuredOutputModels are models known to support json_schema response
// formats with full schema enforcement, matched by exact name or prefix
// (so dated snapshots like "gpt-4o-2024-08-06" resolve).
var structuredOutputModels = map[string]bool{
	"gpt-5.2": true, "gpt-5.2-codex": true,
	"gpt-5.1": true, "gpt-5.1-codex": true, "gpt-5.1-mini": true, "gpt-5.1-nano": true,
	"gpt-4o": true, "gpt-4o-mini": true,
	"gpt-4.1": true, "gpt-4.1-mini": true, "gpt-4.1-nano": true,
	"o1": true, "o1-mini": true, "o3-mini": true, "o4-mini": true,
}

var structuredOutputPrefixes = []string{"gpt-5", "gpt-4o", "gpt-4.1", "o1", "o3", "o4"}

// jsonModeOnlyModels support only the bare {"type":"json_object"} fallback,
// with no schema enforcement.
var jsonModeOnlyModels = map[string]bool{
	"gpt-4-turbo": true, "gpt-4-turbo-preview": true,
	"gpt-3.5-turbo": true,
}

var reasoningModels = map[string]bool{
	"o1": true, "o1-mini": true, "o3": true, "o3-mini": true, "o3-pro": true, "o4-mini": true,
}

var reasoningPrefixes = []string{"o1", "o3", "o4"}

// maxCompletionTokensPrefixes identifies model families that require the
// max_completion_tokens field name instead of max_tokens.
var maxCompletionTokensPrefixes = []string{"gpt-5", "o1", "o3", "o4"}

func init() {
	provider.Register("openai", func(config map[string]string) (provider.Adapter, error) {
		return New(config), nil
	})
}

// Adapter talks to the OpenAI chat completions API.
type Adapter struct {
	apiKey       string
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	breaker      *resilience.Breaker
}

// New constructs an OpenAI adapter from config keys "api_key", "base_url",
// and "default_model". When "api_key" is absent, OPENAI_API_KEY is read
// from the environment; "base_url" and "default_model" fall back to the
// built-in defaults.
func New(config map[string]string) *Adapter {
	apiKey := config["api_key"]
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	baseURL := config["base_url"]
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := config["default_model"]
	if model == "" {
		model = defaultModel
	}

	return &Adapter{
		apiKey:       apiKey,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		defaultModel: model,
		httpClient: &http.Client{
			Timeout:   120 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// SetBreaker attaches a circuit breaker to outgoing calls.
func (a *Adapter) SetBreaker(b *resilience.Breaker) { a.breaker = b }

func (a *Adapter) Name() string { return "openai" }

func (a *Adapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Streaming:        true,
		ToolUse:          true,
		StructuredOutput: true,
		Multimodal:       true,
		MaxTokens:        16384,
	}
}

func (a *Adapter) Supports(capability string) bool {
	caps := a.Capabilities()
	switch capability {
	case "streaming":
		return caps.Streaming
	case "tool_use":
		return caps.ToolUse
	case "structured_output":
		return caps.StructuredOutput
	case "multimodal":
		return caps.Multimodal
	case "max_tokens":
		return caps.MaxTokens > 0
	default:
		return false
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (a *Adapter) Generate(ctx context.Context, req provider.GenerateRequest) (provider.GenerateResponse, <-chan provider.StreamChunk, error) {
	if req.Temperature < 0 || req.Temperature > 2 {
		return provider.GenerateResponse{}, nil, provider.ErrInvalidTemperature
	}
	if a.apiKey == "" {
		return provider.GenerateResponse{}, nil, fmt.Errorf("openai: API key not configured")
	}

	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	messages := make([]chatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	body := map[string]any{
		"model":    model,
		"messages": messages,
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		if usesMaxCompletionTokens(model) {
			body["max_completion_tokens"] = req.MaxTokens
		} else {
			body["max_tokens"] = req.MaxTokens
		}
	}

	if req.StructuredOutput != nil {
		switch {
		case supportsStructuredOutput(model):
			transformed := schema.Transform(req.StructuredOutput.Schema, schema.VariantOpenAI)
			body["response_format"] = map[string]any{
				"type": "json_schema",
				"json_schema": map[string]any{
					"name":   req.StructuredOutput.Name,
					"strict": req.StructuredOutput.Strict,
					"schema": transformed,
				},
			}
		case jsonModeOnlyModels[model]:
			body["response_format"] = map[string]any{"type": "json_object"}
		}
	} else if req.ResponseFormat != nil {
		body["response_format"] = req.ResponseFormat
	}

	if req.Reasoning != nil && req.Reasoning.Enabled {
		if supportsReasoning(model) {
			effort := req.Reasoning.Effort
			if effort == "" {
				effort = "medium"
			}
			if effort == "none" && hasPrefix(model, reasoningPrefixes) {
				slog.Warn("openai: reasoning_effort=none unsupported for o-series model, using medium", "model", model)
				effort = "medium"
			}
			body["reasoning_effort"] = effort
		} else {
			slog.Warn("openai: model does not support reasoning_effort, ignored", "model", model)
		}
	}

	if req.Stream {
		body["stream"] = true
		// Streaming support is declared in capabilities but this adapter's
		// non-interactive council usage never sets Stream=true; callers that
		// need partial output should extend doRequest with an SSE reader.
		return provider.GenerateResponse{}, nil, fmt.Errorf("openai: streaming not implemented in this adapter")
	}

	raw, err := a.doRequest(ctx, "/chat/completions", body)
	if err != nil {
		return provider.GenerateResponse{}, nil, err
	}
	resp, err := parseResponse(raw)
	return resp, nil, err
}

func usesMaxCompletionTokens(model string) bool { return hasPrefix(model, maxCompletionTokensPrefixes) }

func supportsStructuredOutput(model string) bool {
	if structuredOutputModels[model] {
		return true
	}
	if hasPrefix(model, structuredOutputPrefixes) {
		return true
	}
	for _, suffix := range []string{"-2024", "-2025", "-2026"} {
		if idx := strings.Index(model, suffix); idx >= 0 {
			if structuredOutputModels[model[:idx]] {
				return true
			}
		}
	}
	return false
}

func supportsReasoning(model string) bool {
	return reasoningModels[model] || hasPrefix(model, reasoningPrefixes)
}

func hasPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func parseResponse(raw []byte) (provider.GenerateResponse, error) {
	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return provider.GenerateResponse{}, fmt.Errorf("openai: unmarshal response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return provider.GenerateResponse{}, fmt.Errorf("openai: response contained no choices")
	}

	choice := parsed.Choices[0]
	var toolCalls []provider.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		toolCalls = append(toolCalls, provider.ToolCall{Name: tc.Function.Name, Arguments: args})
	}

	text := choice.Message.Content
	var rawPayload map[string]any
	_ = json.Unmarshal(raw, &rawPayload)

	return provider.GenerateResponse{
		Text:       &text,
		RawContent: choice.Message.Content,
		ToolCalls:  toolCalls,
		Usage: provider.Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		},
		Model:        parsed.Model,
		FinishReason: mapFinishReason(choice.FinishReason),
		RawPayload:   rawPayload,
	}, nil
}

func mapFinishReason(reason string) provider.FinishReason {
	switch reason {
	case "length":
		return provider.FinishLength
	case "content_filter":
		return provider.FinishContentFilter
	case "tool_calls":
		return provider.FinishToolCalls
	case "stop":
		return provider.FinishStop
	default:
		return provider.FinishStop
	}
}

func (a *Adapter) Doctor(ctx context.Context) (provider.DoctorResult, error) {
	start := time.Now()

	if a.apiKey == "" {
		return provider.DoctorResult{
			OK:      false,
			Message: "OPENAI_API_KEY not configured",
			Details: map[string]any{"error": "missing_api_key"},
		}, nil
	}

	_, err := a.doGet(ctx, "/models")
	latency := time.Since(start).Seconds() * 1000
	if err != nil {
		return provider.DoctorResult{OK: false, Message: err.Error(), LatencyMS: latency}, nil
	}
	return provider.DoctorResult{OK: true, Message: "ok", LatencyMS: latency}, nil
}

func (a *Adapter) doRequest(ctx context.Context, path string, body map[string]any) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	var result []byte
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(encoded))
		if err != nil {
			return fmt.Errorf("openai: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+a.apiKey)

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("openai: http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("openai: read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("openai API error %d: %s", resp.StatusCode, string(data))
		}
		result = data
		return nil
	}

	if a.breaker != nil {
		if err := a.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}
	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}

func (a *Adapter) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("openai API error %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}
