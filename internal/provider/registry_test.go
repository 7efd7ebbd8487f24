package provider_test

import (
	"context"
	"testing"

	"github.com/llm-council/council/internal/provider"
)

type testAdapter struct {
	name string
}

func (a *testAdapter) Name() string { return a.name }
func (a *testAdapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{Streaming: true}
}
func (a *testAdapter) Generate(_ context.Context, _ provider.GenerateRequest) (provider.GenerateResponse, <-chan provider.StreamChunk, error) {
	return provider.GenerateResponse{}, nil, nil
}
func (a *testAdapter) Supports(capability string) bool { return capability == "streaming" }
func (a *testAdapter) Doctor(_ context.Context) (provider.DoctorResult, error) {
	return provider.DoctorResult{OK: true}, nil
}

func TestRegisterAndNew(t *testing.T) {
	provider.Register("test-provider", func(_ map[string]string) (provider.Adapter, error) {
		return &testAdapter{name: "test-provider"}, nil
	})

	a, err := provider.New("test-provider", nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.Name() != "test-provider" {
		t.Fatalf("expected test-provider, got %s", a.Name())
	}
}

func TestNewUnknownAdapter(t *testing.T) {
	_, err := provider.New("nonexistent", nil)
	if err == nil {
		t.Fatal("expected error for unknown adapter")
	}
}

func TestAvailable(t *testing.T) {
	provider.Register("test-provider-available", func(_ map[string]string) (provider.Adapter, error) {
		return &testAdapter{name: "test-provider-available"}, nil
	})

	names := provider.Available()
	found := false
	for _, n := range names {
		if n == "test-provider-available" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected test-provider-available in available adapters")
	}
}
