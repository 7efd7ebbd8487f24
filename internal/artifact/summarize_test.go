package artifact_test

import (
	"context"
	"strings"
	"testing"

	"github.com/llm-council/council/internal/artifact"
)

func TestSummarize_ShortContentPassesThroughUnchanged(t *testing.T) {
	s := artifact.NewSummarizer(nil, artifact.DefaultSummarizeThreshold)
	content := "short content"

	result, err := s.Summarize(context.Background(), content, artifact.TierGIST, "", "", "", false)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if result.Summary != content {
		t.Errorf("expected content passed through unchanged, got %q", result.Summary)
	}
	if result.TokensSaved != 0 {
		t.Errorf("expected no tokens saved for short content, got %d", result.TokensSaved)
	}
}

func TestSummarize_GistExtractsSummaryLine(t *testing.T) {
	s := artifact.NewSummarizer(nil, 5)
	content := strings.Repeat("padding text that goes on and on. ", 50) +
		"Summary: the council recommends shipping the v2 API.\n" +
		strings.Repeat("more padding text follows here. ", 50)

	result, err := s.Summarize(context.Background(), content, artifact.TierGIST, "", "", "", false)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if !strings.Contains(result.Summary, "council recommends shipping") {
		t.Errorf("expected gist to extract summary line, got %q", result.Summary)
	}
}

func TestSummarize_FindingsExtractsBullets(t *testing.T) {
	s := artifact.NewSummarizer(nil, 5)
	content := strings.Repeat("x", 200) + "\n" +
		"- the API needs a v2 rollout plan\n" +
		"- latency regressed in the last release\n" +
		strings.Repeat("y", 200)

	result, err := s.Summarize(context.Background(), content, artifact.TierFindings, "", "", "", false)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if !strings.Contains(result.Summary, "Key findings:") {
		t.Errorf("expected findings header, got %q", result.Summary)
	}
	if !strings.Contains(result.Summary, "v2 rollout plan") {
		t.Errorf("expected bullet content extracted, got %q", result.Summary)
	}
}

func TestSummarize_ActionsExtractsRecommendations(t *testing.T) {
	s := artifact.NewSummarizer(nil, 5)
	content := strings.Repeat("z", 400) + "\n" +
		"We recommend migrating the auth service before the next release.\n"

	result, err := s.Summarize(context.Background(), content, artifact.TierActions, "", "", "", false)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if !strings.Contains(result.Summary, "Actions:") {
		t.Errorf("expected actions section, got %q", result.Summary)
	}
}

func TestSummarize_RationaleExtractsReasoning(t *testing.T) {
	s := artifact.NewSummarizer(nil, 5)
	content := strings.Repeat("w", 400) + "\n" +
		"We recommend the rollback because the new index caused lock contention under load.\n"

	result, err := s.Summarize(context.Background(), content, artifact.TierRationale, "", "", "", false)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if !strings.Contains(result.Summary, "Rationale:") {
		t.Errorf("expected rationale section, got %q", result.Summary)
	}
}

func TestSummarize_AuditTruncatesAtCharLimit(t *testing.T) {
	s := artifact.NewSummarizer(nil, 5)
	content := strings.Repeat("a", 200000)

	result, err := s.Summarize(context.Background(), content, artifact.TierAudit, "", "", "", false)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if !result.Truncated {
		t.Error("expected audit tier to report truncation for oversized content")
	}
	if len(result.Summary) != artifact.TierTokenLimits[artifact.TierAudit]*4 {
		t.Errorf("expected summary truncated to the audit char limit, got len %d", len(result.Summary))
	}
}

func TestShouldSummarize_RespectsThreshold(t *testing.T) {
	s := artifact.NewSummarizer(nil, 10)
	if s.ShouldSummarize("short") {
		t.Error("expected short content to not require summarization")
	}
	if !s.ShouldSummarize(strings.Repeat("word ", 100)) {
		t.Error("expected long content to require summarization")
	}
}

func TestSummarizeDrafts_SummarizesEachProvider(t *testing.T) {
	s := artifact.NewSummarizer(nil, 5)
	drafts := map[string]string{
		"openai":    strings.Repeat("alpha ", 200),
		"anthropic": strings.Repeat("beta ", 200),
	}

	results, err := s.SummarizeDrafts(context.Background(), drafts, artifact.TierGIST, "")
	if err != nil {
		t.Fatalf("SummarizeDrafts failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}
