package anthropic_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/llm-council/council/internal/adapter/provider/anthropic"
	"github.com/llm-council/council/internal/provider"
)

func newTestAdapter(srv *httptest.Server) *anthropic.Adapter {
	return anthropic.New(map[string]string{
		"api_key":  "test-key",
		"base_url": srv.URL,
	})
}

func TestGenerate_ExtractsSystemMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Fatalf("unexpected api key header: %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Fatal("expected anthropic-version header")
		}

		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["system"] != "be terse" {
			t.Fatalf("expected system prompt extracted, got %v", body["system"])
		}
		msgs := body["messages"].([]any)
		if len(msgs) != 1 {
			t.Fatalf("expected system message removed from messages list, got %d", len(msgs))
		}

		_, _ = w.Write([]byte(`{
			"model": "claude-opus-4-5",
			"stop_reason": "end_turn",
			"content": [{"type":"text","text":"hello"}],
			"usage": {"input_tokens": 5, "output_tokens": 3}
		}`))
	}))
	defer srv.Close()

	adapter := newTestAdapter(srv)
	resp, _, err := adapter.Generate(context.Background(), provider.GenerateRequest{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: "be terse"},
			{Role: provider.RoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Text == nil || *resp.Text != "hello" {
		t.Fatalf("unexpected text: %v", resp.Text)
	}
	if resp.Usage.TotalTokens != 8 {
		t.Fatalf("expected total tokens 8, got %d", resp.Usage.TotalTokens)
	}
}

func TestGenerate_StructuredOutputSetsBetaHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("anthropic-beta") == "" {
			t.Fatal("expected anthropic-beta header for structured output")
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		of, ok := body["output_format"].(map[string]any)
		if !ok {
			t.Fatal("expected output_format in request")
		}
		s := of["schema"].(map[string]any)
		if _, has := s["$schema"]; has {
			t.Fatal("expected $schema stripped from output_format.schema")
		}
		_, _ = w.Write([]byte(`{"model":"claude-opus-4-5","stop_reason":"end_turn","content":[{"type":"text","text":"{}"}],"usage":{}}`))
	}))
	defer srv.Close()

	adapter := newTestAdapter(srv)
	_, _, err := adapter.Generate(context.Background(), provider.GenerateRequest{
		Model:    "claude-opus-4-5",
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
		StructuredOutput: &provider.StructuredOutputConfig{
			Name: "result",
			Schema: map[string]any{
				"$schema": "http://json-schema.org/draft-07/schema#",
				"type":    "object",
			},
		},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
}

func TestGenerate_ThinkingBudgetClamped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		thinking := body["thinking"].(map[string]any)
		if thinking["budget_tokens"] != float64(128000) {
			t.Fatalf("expected budget clamped to 128000, got %v", thinking["budget_tokens"])
		}
		_, _ = w.Write([]byte(`{"model":"claude-opus-4-5","stop_reason":"end_turn","content":[{"type":"text","text":"ok"}],"usage":{}}`))
	}))
	defer srv.Close()

	adapter := newTestAdapter(srv)
	_, _, err := adapter.Generate(context.Background(), provider.GenerateRequest{
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
		Reasoning: &provider.ReasoningConfig{
			Enabled:      true,
			BudgetTokens: 200000,
		},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
}

func TestDoctor_MissingAPIKey(t *testing.T) {
	adapter := anthropic.New(map[string]string{})
	result, err := adapter.Doctor(context.Background())
	if err != nil {
		t.Fatalf("Doctor should not return an error, got %v", err)
	}
	if result.OK {
		t.Fatal("expected OK=false without an API key")
	}
}

func TestName(t *testing.T) {
	adapter := anthropic.New(map[string]string{})
	if adapter.Name() != "anthropic" {
		t.Fatalf("unexpected name: %s", adapter.Name())
	}
}
