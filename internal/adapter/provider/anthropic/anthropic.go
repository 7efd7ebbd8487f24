// Package anthropic implements the provider Adapter contract against the
// Anthropic messages REST API, including structured-output and extended
// thinking support.
package anthropic

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
	defaultBaseURL           = "https://api.anthropic.com/v1"
	defaultModel             = "claude-opus-4-5"
	apiVersion               = "2023-06-01"
	structuredOutputsBeta    = "structured-outputs-2025-11-13"
	defaultMaxTokens         = 4096
	thinkingBudgetMin        = 1024
	thinkingBudgetMax        = 128000
)

var structuredOutputModels = map[string]bool{
	"claude-opus-4-5":   true,
	"claude-opus-4-1":   true,
	"claude-sonnet-4-5": true,
	"claude-haiku-4-5":  true,
}

var structuredOutputPrefixes = []string{"claude-opus-4", "claude-sonnet-4", "claude-haiku-4", "claude-4"}

func init() {
	provider.Register("anthropic", func(config map[string]string) (provider.Adapter, error) {
		return New(config), nil
	})
}

// Adapter talks to the Anthropic messages API.
type Adapter struct {
	apiKey       string
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	breaker      *resilience.Breaker
}

// New constructs an Anthropic adapter from config keys "api_key",
// "base_url", and "default_model", falling back to ANTHROPIC_API_KEY.
func New(config map[string]string) *Adapter {
	apiKey := config["api_key"]
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
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

func (a *Adapter) Name() string { return "anthropic" }

func (a *Adapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Streaming:        true,
		ToolUse:          true,
		StructuredOutput: true,
		Multimodal:       true,
		MaxTokens:        8192,
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

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (a *Adapter) Generate(ctx context.Context, req provider.GenerateRequest) (provider.GenerateResponse, <-chan provider.StreamChunk, error) {
	if req.Temperature < 0 || req.Temperature > 2 {
		return provider.GenerateResponse{}, nil, provider.ErrInvalidTemperature
	}
	if a.apiKey == "" {
		return provider.GenerateResponse{}, nil, fmt.Errorf("anthropic: API key not configured")
	}

	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	var system string
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == provider.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		messages = append(messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body := map[string]any{
		"model":      model,
		"messages":   messages,
		"max_tokens": maxTokens,
	}
	if system != "" {
		body["system"] = system
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}

	useBeta := false

	if req.StructuredOutput != nil && supportsStructuredOutput(model) {
		useBeta = true
		transformed := schema.Transform(req.StructuredOutput.Schema, schema.VariantAnthropic)
		body["output_format"] = map[string]any{
			"type":   "json_schema",
			"schema": transformed,
		}
	}

	if req.Reasoning != nil && req.Reasoning.Enabled {
		useBeta = true
		budget := req.Reasoning.BudgetTokens
		if budget <= 0 {
			budget = 8192
		}
		clamped := clamp(budget, thinkingBudgetMin, thinkingBudgetMax)
		if clamped != budget {
			slog.Warn("anthropic: budget_tokens clamped",
				"requested", budget, "clamped", clamped,
				"min", thinkingBudgetMin, "max", thinkingBudgetMax)
		}
		body["thinking"] = map[string]any{
			"type":          "enabled",
			"budget_tokens": clamped,
		}
	}

	if req.Stream {
		return provider.GenerateResponse{}, nil, fmt.Errorf("anthropic: streaming not implemented in this adapter")
	}

	raw, err := a.doRequest(ctx, "/messages", body, useBeta)
	if err != nil {
		return provider.GenerateResponse{}, nil, err
	}
	resp, err := parseResponse(raw)
	return resp, nil, err
}

func supportsStructuredOutput(model string) bool {
	if structuredOutputModels[model] {
		return true
	}
	for _, p := range structuredOutputPrefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type messagesResponse struct {
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type  string `json:"type"`
		Text  string `json:"text"`
		Name  string `json:"name"`
		Input map[string]any `json:"input"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func parseResponse(raw []byte) (provider.GenerateResponse, error) {
	var parsed messagesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return provider.GenerateResponse{}, fmt.Errorf("anthropic: unmarshal response: %w", err)
	}

	var textParts []string
	var toolCalls []provider.ToolCall
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			textParts = append(textParts, block.Text)
		case "tool_use":
			toolCalls = append(toolCalls, provider.ToolCall{Name: block.Name, Arguments: block.Input})
		}
	}
	text := strings.Join(textParts, "")

	var rawPayload map[string]any
	_ = json.Unmarshal(raw, &rawPayload)

	return provider.GenerateResponse{
		Text:       &text,
		RawContent: text,
		ToolCalls:  toolCalls,
		Usage: provider.Usage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
			TotalTokens:  parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
		Model:        parsed.Model,
		FinishReason: mapFinishReason(parsed.StopReason),
		RawPayload:   rawPayload,
	}, nil
}

func mapFinishReason(reason string) provider.FinishReason {
	switch reason {
	case "max_tokens":
		return provider.FinishLength
	case "tool_use":
		return provider.FinishToolCalls
	case "end_turn", "stop_sequence":
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
			Message: "ANTHROPIC_API_KEY not configured",
			Details: map[string]any{"error": "missing_api_key"},
		}, nil
	}

	body := map[string]any{
		"model":      a.defaultModel,
		"max_tokens": 1,
		"messages":   []anthropicMessage{{Role: "user", Content: "ping"}},
	}
	_, err := a.doRequest(ctx, "/messages", body, false)
	latency := time.Since(start).Seconds() * 1000
	if err != nil {
		return provider.DoctorResult{OK: false, Message: err.Error(), LatencyMS: latency}, nil
	}
	return provider.DoctorResult{OK: true, Message: "ok", LatencyMS: latency}, nil
}

func (a *Adapter) doRequest(ctx context.Context, path string, body map[string]any, useBeta bool) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	var result []byte
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(encoded))
		if err != nil {
			return fmt.Errorf("anthropic: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", a.apiKey)
		req.Header.Set("anthropic-version", apiVersion)
		if useBeta {
			req.Header.Set("anthropic-beta", structuredOutputsBeta)
		}

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("anthropic: http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("anthropic: read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("anthropic API error %d: %s", resp.StatusCode, string(data))
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
