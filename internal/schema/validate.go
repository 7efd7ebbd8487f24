package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	invopop "github.com/invopop/jsonschema"
)

// ValidationError describes one point of non-conformance between a payload
// and a schema.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks payload (raw JSON bytes) against the canonical schema.
// It returns the parsed value and any validation errors; a non-empty error
// slice means the payload does not conform, not that validation itself
// failed.
func Validate(payload []byte, canonical map[string]any) (any, []ValidationError) {
	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return nil, []ValidationError{{Message: fmt.Sprintf("invalid JSON: %v", err)}}
	}

	var errs []ValidationError
	validateNode(value, canonical, "$", &errs)
	return value, errs
}

func validateNode(value any, node map[string]any, path string, errs *[]ValidationError) {
	if node == nil {
		return
	}

	if wantType, ok := node["type"].(string); ok {
		if !matchesType(value, wantType) {
			*errs = append(*errs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("expected type %q, got %s", wantType, jsonTypeName(value)),
			})
			return
		}
	}

	if enum, ok := node["enum"].([]any); ok {
		if !inEnum(value, enum) {
			*errs = append(*errs, ValidationError{Path: path, Message: "value not in enum"})
		}
	}

	switch v := value.(type) {
	case map[string]any:
		validateObject(v, node, path, errs)
	case []any:
		validateArray(v, node, path, errs)
	}
}

func validateObject(obj map[string]any, node map[string]any, path string, errs *[]ValidationError) {
	props, _ := node["properties"].(map[string]any)

	if required, ok := node["required"].([]any); ok {
		for _, r := range required {
			name, _ := r.(string)
			if _, present := obj[name]; !present {
				*errs = append(*errs, ValidationError{
					Path:    path,
					Message: fmt.Sprintf("missing required property %q", name),
				})
			}
		}
	} else if required, ok := node["required"].([]string); ok {
		for _, name := range required {
			if _, present := obj[name]; !present {
				*errs = append(*errs, ValidationError{
					Path:    path,
					Message: fmt.Sprintf("missing required property %q", name),
				})
			}
		}
	}

	if props == nil {
		return
	}

	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		propSchema, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		validateNode(obj[name], propSchema, path+"."+name, errs)
	}
}

func validateArray(arr []any, node map[string]any, path string, errs *[]ValidationError) {
	items, ok := node["items"].(map[string]any)
	if !ok {
		return
	}
	for i, item := range arr {
		validateNode(item, items, fmt.Sprintf("%s[%d]", path, i), errs)
	}
}

func matchesType(value any, want string) bool {
	switch want {
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "null":
		return value == nil
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		f, ok := value.(float64)
		return ok && f == float64(int64(f))
	default:
		return true
	}
}

func jsonTypeName(value any) string {
	switch value.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}

func inEnum(value any, enum []any) bool {
	encodedValue, err := json.Marshal(value)
	if err != nil {
		return false
	}
	for _, candidate := range enum {
		encodedCandidate, err := json.Marshal(candidate)
		if err == nil && string(encodedValue) == string(encodedCandidate) {
			return true
		}
	}
	return false
}

// SanityCheck confirms a canonical schema is itself well-formed enough to
// be usable: it must round-trip through the invopop/jsonschema Schema type
// without error, which catches malformed keyword types (e.g. "required"
// as a string instead of an array) before a role is ever invoked.
func SanityCheck(canonical map[string]any) error {
	raw, err := json.Marshal(canonical)
	if err != nil {
		return fmt.Errorf("schema: marshal canonical schema: %w", err)
	}

	var probe invopop.Schema
	if err := json.Unmarshal(raw, &probe); err != nil {
		return fmt.Errorf("schema: canonical schema is malformed: %w", err)
	}
	return nil
}
