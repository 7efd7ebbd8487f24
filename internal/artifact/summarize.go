package artifact

import (
	"context"
	"regexp"
	"strings"
)

// DefaultSummarizeThreshold is the token count above which content is
// condensed rather than stored verbatim in a follow-up prompt.
const DefaultSummarizeThreshold = 500

// SummaryResult is the outcome of summarizing one piece of content to a
// tier.
type SummaryResult struct {
	Tier           SummaryTier
	Summary        string
	TokenEstimate  int
	OriginalTokens int
	TokensSaved    int
	ArtifactRef    string
	Truncated      bool
}

// Summarizer produces tiered summaries of phase output, optionally
// persisting the full content as an artifact first so the summary can
// reference it.
type Summarizer struct {
	store     *Store
	threshold int
}

// NewSummarizer constructs a Summarizer. store may be nil, in which case
// Summarize never persists full content regardless of storeFull.
func NewSummarizer(store *Store, threshold int) *Summarizer {
	if threshold <= 0 {
		threshold = DefaultSummarizeThreshold
	}
	return &Summarizer{store: store, threshold: threshold}
}

// ShouldSummarize reports whether content exceeds the configured token
// threshold and therefore warrants condensing.
func (s *Summarizer) ShouldSummarize(content string) bool {
	return estimateTokens([]byte(content)) > s.threshold
}

// Summarize condenses content to tier; content at or under the summarizer's
// token threshold is returned unchanged. When storeFull is true and store is
// non-nil, the full content is first persisted as an artifact under
// (runID, phase, producer) and the result's ArtifactRef points to it.
func (s *Summarizer) Summarize(ctx context.Context, content string, tier SummaryTier, runID string, phase Phase, producer string, storeFull bool) (SummaryResult, error) {
	originalTokens := estimateTokens([]byte(content))
	charLimit := tierCharLimit(tier)

	if originalTokens <= s.threshold {
		return SummaryResult{
			Tier:           tier,
			Summary:        content,
			TokenEstimate:  originalTokens,
			OriginalTokens: originalTokens,
		}, nil
	}

	var artifactRef string
	if storeFull && s.store != nil && runID != "" {
		a, err := s.store.StoreArtifact(ctx, runID, phase, producer, []byte(content))
		if err != nil {
			return SummaryResult{}, err
		}
		artifactRef = a.ID
	}

	summary := generateSummary(content, tier, charLimit)
	summaryTokens := estimateTokens([]byte(summary))

	if tier == TierAudit && artifactRef != "" {
		summary += "\n\n[Full details: artifact " + artifactRef + "]"
		summaryTokens = estimateTokens([]byte(summary))
	}

	return SummaryResult{
		Tier:           tier,
		Summary:        summary,
		TokenEstimate:  summaryTokens,
		OriginalTokens: originalTokens,
		TokensSaved:    originalTokens - summaryTokens,
		ArtifactRef:    artifactRef,
		Truncated:      len(content) > charLimit,
	}, nil
}

// SummarizeDrafts summarizes each provider's draft to tier, keyed by
// provider name.
func (s *Summarizer) SummarizeDrafts(ctx context.Context, drafts map[string]string, tier SummaryTier, runID string) (map[string]SummaryResult, error) {
	results := make(map[string]SummaryResult, len(drafts))
	for providerName, content := range drafts {
		r, err := s.Summarize(ctx, content, tier, runID, PhaseDraft, providerName, true)
		if err != nil {
			return nil, err
		}
		results[providerName] = r
	}
	return results, nil
}

func generateSummary(content string, tier SummaryTier, charLimit int) string {
	switch tier {
	case TierGIST:
		return extractGist(content, charLimit)
	case TierFindings:
		return extractFindings(content, charLimit)
	case TierActions:
		return extractActions(content, charLimit)
	case TierRationale:
		return extractRationale(content, charLimit)
	default: // audit
		if len(content) > charLimit {
			return content[:charLimit]
		}
		return content
	}
}

var gistPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)summary[:\s]+(.+?)[\n.]`),
	regexp.MustCompile(`(?i)in summary[,:\s]+(.+?)[\n.]`),
	regexp.MustCompile(`(?i)conclusion[:\s]+(.+?)[\n.]`),
	regexp.MustCompile(`(?i)^(?:the\s+)?(?:main\s+)?(?:key\s+)?(?:point|takeaway|finding)[:\s]+(.+?)[\n.]`),
}

func extractGist(content string, charLimit int) string {
	for _, pattern := range gistPatterns {
		if match := pattern.FindStringSubmatch(content); match != nil {
			gist := strings.TrimSpace(match[1])
			if len(gist) <= charLimit {
				return gist
			}
		}
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if len(line) <= 10 {
			continue
		}
		if len(line) <= charLimit {
			return line
		}
		return line[:charLimit-3] + "..."
	}

	if len(content) <= charLimit {
		return content
	}
	return content[:charLimit-3] + "..."
}

var (
	bulletPattern = regexp.MustCompile(`(?m)^\s*[-*•]\s*(.+)$`)
	numberPattern = regexp.MustCompile(`(?m)^\s*\d+[.)]\s*(.+)$`)
)

func extractFindings(content string, charLimit int) string {
	var findings []string

	for _, match := range bulletPattern.FindAllStringSubmatch(content, -1) {
		finding := strings.TrimSpace(match[1])
		if len(finding) > 10 {
			findings = append(findings, "- "+truncateString(finding, 100))
		}
	}
	for _, match := range numberPattern.FindAllStringSubmatch(content, -1) {
		finding := strings.TrimSpace(match[1])
		if len(finding) > 10 {
			findings = append(findings, "- "+truncateString(finding, 100))
		}
	}

	if len(findings) > 0 {
		result := "Key findings:\n" + strings.Join(firstN(findings, 5), "\n")
		return truncateString(result, charLimit)
	}

	paragraphs := strings.SplitN(content, "\n\n", 2)
	if len(paragraphs) > 0 {
		return truncateString(paragraphs[0], charLimit)
	}
	return truncateString(content, charLimit)
}

var actionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:should|must|need to|recommend|suggest)\s+(.+?)[\n.]`),
	regexp.MustCompile(`(?i)(?:action|step|task)[:\s]+(.+?)[\n.]`),
	regexp.MustCompile(`(?i)(?:next|todo|to-do)[:\s]+(.+?)[\n.]`),
}

func extractActions(content string, charLimit int) string {
	findings := extractFindings(content, charLimit/2)

	var actions []string
	for _, pattern := range actionPatterns {
		for _, match := range pattern.FindAllStringSubmatch(content, -1) {
			action := strings.TrimSpace(match[1])
			if len(action) > 10 {
				actions = append(actions, "- "+truncateString(action, 80))
			}
		}
	}

	actionsText := ""
	if len(actions) > 0 {
		actionsText = "\n\nActions:\n" + strings.Join(firstN(actions, 3), "\n")
	}

	return truncateString(findings+actionsText, charLimit)
}

var rationalePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)because\s+(.+?)[\n.]`),
	regexp.MustCompile(`(?i)reason[:\s]+(.+?)[\n.]`),
	regexp.MustCompile(`(?i)(?:this is because|the reason is)\s+(.+?)[\n.]`),
}

func extractRationale(content string, charLimit int) string {
	actions := extractActions(content, charLimit/2)

	var reasons []string
	for _, pattern := range rationalePatterns {
		for _, match := range pattern.FindAllStringSubmatch(content, -1) {
			reason := strings.TrimSpace(match[1])
			if len(reason) > 20 {
				reasons = append(reasons, truncateString(reason, 150))
			}
		}
	}

	rationale := ""
	if len(reasons) > 0 {
		lines := make([]string, len(firstN(reasons, 3)))
		for i, r := range firstN(reasons, 3) {
			lines[i] = "- " + r
		}
		rationale = "\n\nRationale:\n" + strings.Join(lines, "\n")
	}

	return truncateString(actions+rationale, charLimit)
}
