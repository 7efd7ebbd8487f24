// Package gemini implements the provider Adapter contract against the
// Gemini generateContent REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
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
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash-exp"
)

func init() {
	provider.Register("gemini", func(config map[string]string) (provider.Adapter, error) {
		return New(config), nil
	})
}

// Adapter talks to the Gemini generateContent API.
type Adapter struct {
	apiKey       string
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	breaker      *resilience.Breaker
}

// New constructs a Gemini adapter from config keys "api_key", "base_url",
// and "default_model", falling back to GOOGLE_API_KEY / GEMINI_API_KEY.
func New(config map[string]string) *Adapter {
	apiKey := config["api_key"]
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
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

func (a *Adapter) Name() string { return "gemini" }

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

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

func (a *Adapter) Generate(ctx context.Context, req provider.GenerateRequest) (provider.GenerateResponse, <-chan provider.StreamChunk, error) {
	if req.Temperature < 0 || req.Temperature > 2 {
		return provider.GenerateResponse{}, nil, provider.ErrInvalidTemperature
	}
	if a.apiKey == "" {
		return provider.GenerateResponse{}, nil, fmt.Errorf("gemini: API key not configured")
	}

	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	// Gemini has no system role; system messages are prepended to the
	// first user turn, and "assistant" is remapped to "model".
	var systemPrefix string
	contents := make([]geminiContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case provider.RoleSystem:
			if systemPrefix != "" {
				systemPrefix += "\n\n"
			}
			systemPrefix += m.Content
		case provider.RoleAssistant:
			contents = append(contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	if systemPrefix != "" && len(contents) > 0 {
		contents[0].Parts[0].Text = systemPrefix + "\n\n" + contents[0].Parts[0].Text
	}

	generationConfig := map[string]any{}
	if req.MaxTokens > 0 {
		generationConfig["maxOutputTokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		generationConfig["temperature"] = req.Temperature
	}

	if req.Reasoning != nil && req.Reasoning.Enabled && req.Reasoning.ThinkingLevel != "" {
		generationConfig["thinkingConfig"] = map[string]any{
			"thinkingLevel": req.Reasoning.ThinkingLevel,
		}
	}

	if req.StructuredOutput != nil {
		generationConfig["responseMimeType"] = "application/json"
		generationConfig["responseSchema"] = schema.Transform(req.StructuredOutput.Schema, schema.VariantGemini)
	}

	body := map[string]any{"contents": contents}
	if len(generationConfig) > 0 {
		body["generationConfig"] = generationConfig
	}

	if req.Stream {
		return provider.GenerateResponse{}, nil, fmt.Errorf("gemini: streaming not implemented in this adapter")
	}

	path := fmt.Sprintf("/models/%s:generateContent", model)
	raw, err := a.doRequest(ctx, path, body)
	if err != nil {
		return provider.GenerateResponse{}, nil, err
	}
	resp, err := parseResponse(raw, model)
	return resp, nil, err
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func parseResponse(raw []byte, model string) (provider.GenerateResponse, error) {
	var parsed generateContentResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return provider.GenerateResponse{}, fmt.Errorf("gemini: unmarshal response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return provider.GenerateResponse{}, fmt.Errorf("gemini: response contained no candidates")
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	combined := text.String()

	var rawPayload map[string]any
	_ = json.Unmarshal(raw, &rawPayload)

	return provider.GenerateResponse{
		Text:       &combined,
		RawContent: combined,
		Usage: provider.Usage{
			InputTokens:  parsed.UsageMetadata.PromptTokenCount,
			OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  parsed.UsageMetadata.TotalTokenCount,
		},
		Model:        model,
		FinishReason: mapFinishReason(parsed.Candidates[0].FinishReason),
		RawPayload:   rawPayload,
	}, nil
}

func mapFinishReason(reason string) provider.FinishReason {
	switch reason {
	case "MAX_TOKENS":
		return provider.FinishLength
	case "SAFETY", "RECITATION":
		return provider.FinishContentFilter
	case "STOP":
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
			Message: "GEMINI_API_KEY/GOOGLE_API_KEY not configured",
			Details: map[string]any{"error": "missing_api_key"},
		}, nil
	}

	_, err := a.doRequest(ctx, fmt.Sprintf("/models/%s:generateContent", a.defaultModel), map[string]any{
		"contents": []geminiContent{{Role: "user", Parts: []geminiPart{{Text: "ping"}}}},
		"generationConfig": map[string]any{
			"maxOutputTokens": 1,
		},
	})
	latency := time.Since(start).Seconds() * 1000
	if err != nil {
		return provider.DoctorResult{OK: false, Message: err.Error(), LatencyMS: latency}, nil
	}
	return provider.DoctorResult{OK: true, Message: "ok", LatencyMS: latency}, nil
}

func (a *Adapter) doRequest(ctx context.Context, path string, body map[string]any) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	var result []byte
	call := func() error {
		url := a.baseURL + path + "?key=" + a.apiKey
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
		if err != nil {
			return fmt.Errorf("gemini: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("gemini: http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("gemini: read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("gemini API error %d: %s", resp.StatusCode, string(data))
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
