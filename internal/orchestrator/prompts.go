package orchestrator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/llm-council/council/internal/artifact"
)

const critiqueSystemPrompt = "You are an adversarial reviewer. Identify errors, gaps, contradictions, " +
	"and schema violations. Provide concrete fixes. Attack ideas, not sources."

const synthesisSystemPrompt = "You are the synthesizer. Combine drafts and critique into a single response. " +
	"Return ONLY valid JSON that matches the provided schema."

func formatDraftPrompt(task string, schema map[string]any, tier artifact.SummaryTier) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task:\n%s\n", task)
	if schema != nil {
		b.WriteString("\nReturn a draft that aligns with the JSON schema.\n")
	}
	fmt.Fprintf(&b, "Summary tier: %s\n", tier)
	return b.String()
}

func formatCritiquePrompt(task string, drafts map[string]string, schema map[string]any, tier artifact.SummaryTier) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task:\n%s\n", task)
	if schema != nil {
		encoded, _ := json.MarshalIndent(schema, "", "  ")
		fmt.Fprintf(&b, "\nSchema (JSON):\n%s\n", encoded)
	}
	fmt.Fprintf(&b, "Summary tier: %s\n\nDrafts:\n%s", tier, joinDraftBlocks(drafts))
	return b.String()
}

func formatSynthesisPrompt(task string, drafts map[string]string, critique string, schema map[string]any, tier artifact.SummaryTier, errs []string) string {
	schemaBlock := "{}"
	if schema != nil {
		if encoded, err := json.MarshalIndent(schema, "", "  "); err == nil {
			schemaBlock = string(encoded)
		}
	}

	errBlock := "None"
	if len(errs) > 0 {
		lines := make([]string, len(errs))
		for i, e := range errs {
			lines[i] = "- " + e
		}
		errBlock = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(
		"Task:\n%s\n\nSchema (JSON):\n%s\n\nSummary tier: %s\n\nCritique:\n%s\n\nDrafts:\n%s\n\n"+
			"Validation errors to fix (if any):\n%s\n\nReturn ONLY JSON that matches the schema.",
		task, schemaBlock, tier, critique, joinDraftBlocks(drafts), errBlock,
	)
}

// joinDraftBlocks renders drafts in a stable, provider-name-sorted order so
// prompts (and therefore any cache keyed on them) are deterministic.
func joinDraftBlocks(drafts map[string]string) string {
	names := make([]string, 0, len(drafts))
	for name := range drafts {
		names = append(names, name)
	}
	sort.Strings(names)

	blocks := make([]string, 0, len(names))
	for _, name := range names {
		blocks = append(blocks, fmt.Sprintf("Provider: %s\nDraft:\n%s", name, drafts[name]))
	}
	return strings.Join(blocks, "\n\n")
}

// extractJSON pulls the first JSON object out of a model response,
// tolerating a markdown code fence and trailing commentary. It mirrors the
// balanced-brace scan used to recover structured output from models that
// don't honor "JSON only" instructions perfectly.
func extractJSON(text string) (map[string]any, bool) {
	cleaned := strings.TrimSpace(text)

	if strings.HasPrefix(cleaned, "```") {
		if end := strings.LastIndex(cleaned, "```"); end > 3 {
			cleaned = strings.TrimSpace(cleaned[3:end])
		} else {
			cleaned = strings.Trim(cleaned, "`")
		}
		cleaned = strings.TrimPrefix(cleaned, "json")
		cleaned = strings.TrimSpace(cleaned)
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err == nil {
		return parsed, true
	}

	if balanced, ok := extractBalancedJSON(cleaned); ok {
		if err := json.Unmarshal([]byte(balanced), &parsed); err == nil {
			return parsed, true
		}
	}

	return nil, false
}

// extractBalancedJSON finds the first balanced {...} object by brace
// counting, skipping braces inside quoted strings. Used when a response
// buries JSON in surrounding prose the direct parse above couldn't strip.
func extractBalancedJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
