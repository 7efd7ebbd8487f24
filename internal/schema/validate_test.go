package schema_test

import (
	"testing"

	"github.com/llm-council/council/internal/schema"
)

func roleSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]any{"type": "string"},
			"actions": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"confidence": map[string]any{"type": "number"},
		},
		"required": []any{"summary", "actions"},
	}
}

func TestValidate_Valid(t *testing.T) {
	payload := []byte(`{"summary":"ok","actions":["a","b"],"confidence":0.9}`)
	_, errs := schema.Validate(payload, roleSchema())
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	payload := []byte(`{"actions":["a"]}`)
	_, errs := schema.Validate(payload, roleSchema())
	if len(errs) == 0 {
		t.Fatal("expected validation errors for missing summary")
	}
}

func TestValidate_WrongType(t *testing.T) {
	payload := []byte(`{"summary":123,"actions":["a"]}`)
	_, errs := schema.Validate(payload, roleSchema())
	if len(errs) == 0 {
		t.Fatal("expected validation error for wrong type")
	}
}

func TestValidate_InvalidJSON(t *testing.T) {
	_, errs := schema.Validate([]byte(`{not json`), roleSchema())
	if len(errs) != 1 {
		t.Fatalf("expected exactly one parse error, got %v", errs)
	}
}

func TestValidate_NestedArrayItems(t *testing.T) {
	payload := []byte(`{"summary":"ok","actions":[1,2]}`)
	_, errs := schema.Validate(payload, roleSchema())
	if len(errs) == 0 {
		t.Fatal("expected validation errors for wrong item type in actions")
	}
}

func TestSanityCheck_ValidSchema(t *testing.T) {
	if err := schema.SanityCheck(roleSchema()); err != nil {
		t.Fatalf("expected valid schema to pass sanity check: %v", err)
	}
}
