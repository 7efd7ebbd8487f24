// Package schema converts one canonical JSON Schema into the structured
// output dialect each provider family expects, and validates a response
// payload against the canonical form. Transformation is a pure function of
// (schema, variant); it performs no I/O and is exhaustively testable in
// isolation from any adapter.
package schema

import "sort"

// Variant names a provider family's structured-output dialect.
type Variant string

const (
	VariantOpenAI    Variant = "openai"
	VariantAnthropic Variant = "anthropic"
	VariantGemini    Variant = "gemini"
)

// dateTimeFormats is the set of "format" values OpenAI strict mode passes
// through unmodified; anything else is stripped.
var dateTimeFormats = map[string]bool{
	"date-time": true,
	"time":      true,
	"date":      true,
	"duration":  true,
	"email":     true,
	"hostname":  true,
	"ipv4":      true,
	"ipv6":      true,
	"uuid":      true,
}

// Transform converts a canonical JSON Schema into the given provider
// variant's structured-output dialect. The input is never mutated.
func Transform(canonical map[string]any, variant Variant) map[string]any {
	switch variant {
	case VariantOpenAI:
		return transformOpenAI(canonical)
	case VariantAnthropic:
		return transformAnthropic(canonical)
	case VariantGemini:
		return transformGemini(canonical)
	default:
		return cloneMap(canonical)
	}
}

// transformOpenAI makes a schema compatible with strict-mode structured
// outputs: every object gains additionalProperties:false and lists all of
// its declared properties as required, recursively, and unsupported
// "format" values are dropped.
func transformOpenAI(s map[string]any) map[string]any {
	result := make(map[string]any, len(s))

	for k, v := range s {
		switch k {
		case "$schema", "additionalProperties", "required":
			continue
		case "format":
			if name, ok := v.(string); ok && dateTimeFormats[name] {
				result[k] = v
			}
		case "properties":
			props, ok := v.(map[string]any)
			if !ok {
				result[k] = v
				continue
			}
			newProps := make(map[string]any, len(props))
			required := make([]string, 0, len(props))
			for name, propSchema := range props {
				required = append(required, name)
				newProps[name] = transformOpenAIProperty(propSchema)
			}
			sort.Strings(required)
			result[k] = newProps
			result["required"] = required
			result["additionalProperties"] = false
		default:
			if nested, ok := v.(map[string]any); ok && nested["type"] == "object" {
				result[k] = transformOpenAI(nested)
			} else {
				result[k] = v
			}
		}
	}

	if s["type"] == "object" {
		if _, has := result["additionalProperties"]; !has {
			result["additionalProperties"] = false
		}
	}

	return result
}

func transformOpenAIProperty(v any) any {
	propSchema, ok := v.(map[string]any)
	if !ok {
		return v
	}
	switch propSchema["type"] {
	case "object":
		return transformOpenAI(propSchema)
	case "array":
		items, ok := propSchema["items"].(map[string]any)
		if ok && items["type"] == "object" {
			out := cloneMap(propSchema)
			out["items"] = transformOpenAI(items)
			return out
		}
	}
	if format, ok := propSchema["format"].(string); ok && !dateTimeFormats[format] {
		out := cloneMap(propSchema)
		delete(out, "format")
		return out
	}
	return propSchema
}

// transformAnthropic strips JSON Schema meta fields Anthropic's structured
// output API neither needs nor accepts.
func transformAnthropic(s map[string]any) map[string]any {
	result := make(map[string]any, len(s))
	for k, v := range s {
		if k == "$schema" || k == "$id" || k == "$ref" || k == "$comment" {
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			result[k] = transformAnthropic(val)
		case []any:
			result[k] = transformAnthropicList(val)
		default:
			result[k] = v
		}
	}
	return result
}

func transformAnthropicList(items []any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		if m, ok := item.(map[string]any); ok {
			out[i] = transformAnthropic(m)
		} else {
			out[i] = item
		}
	}
	return out
}

// geminiStrippedKeys are meta/validation fields Gemini's responseSchema
// does not understand and rejects if present.
var geminiStrippedKeys = map[string]bool{
	"additionalProperties": true,
	"default":              true,
	"examples":             true,
	"minLength":            true,
	"maxLength":            true,
	"minimum":              true,
	"maximum":              true,
	"pattern":              true,
	"format":                true,
	"minItems":             true,
	"maxItems":             true,
	"uniqueItems":          true,
	"$schema":              true,
}

// transformGemini strips the fields Gemini's schema dialect does not
// support. "title" is stripped only when it appears as a schema-level key,
// never when "title" is itself a property name inside "properties".
func transformGemini(s map[string]any) map[string]any {
	return transformGeminiNode(s, false)
}

func transformGeminiNode(s map[string]any, isPropertiesMap bool) map[string]any {
	result := make(map[string]any, len(s))
	for k, v := range s {
		if !isPropertiesMap {
			if k == "title" || geminiStrippedKeys[k] {
				continue
			}
		}

		switch val := v.(type) {
		case map[string]any:
			result[k] = transformGeminiNode(val, k == "properties")
		case []any:
			result[k] = transformGeminiList(val)
		default:
			result[k] = v
		}
	}
	return result
}

func transformGeminiList(items []any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		if m, ok := item.(map[string]any); ok {
			out[i] = transformGeminiNode(m, false)
		} else {
			out[i] = item
		}
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
