package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/llm-council/council/internal/adapter/otel"
	cfg "github.com/llm-council/council/internal/config"
	"github.com/llm-council/council/internal/artifact"
	"github.com/llm-council/council/internal/degradation"
	"github.com/llm-council/council/internal/health"
	"github.com/llm-council/council/internal/port/broadcast"
	"github.com/llm-council/council/internal/port/messagequeue"
	"github.com/llm-council/council/internal/provider"
	"github.com/llm-council/council/internal/resilience"
	"github.com/llm-council/council/internal/role"
	"github.com/llm-council/council/internal/schema"
)

// roleResolver is the subset of *role.Registry the orchestrator needs; an
// interface so tests can supply a registry backed by a temp directory
// without a real one loaded behind it.
type roleResolver interface {
	Resolve(subagent, mode string) (role.Resolved, error)
	ComposePrompt(ctx context.Context, resolved role.Resolved) string
}

// Orchestrator runs a single council deliberation: parallel drafts from
// every configured provider, a single adversarial critique pass, and a
// synthesis step that retries with the prior attempt's validation errors
// folded into the next prompt until it validates or the retry budget is
// spent.
type Orchestrator struct {
	cfg        cfg.Orchestrator
	providers  map[string]provider.Adapter
	roles      roleResolver
	schemaDir  string
	store      *artifact.Store
	summarizer *artifact.Summarizer
	checker    *health.Checker
	policy     *degradation.Policy
	queue      messagequeue.Queue
	hub        broadcast.Broadcaster
	logger     *slog.Logger
	metrics    *otel.Metrics

	breakersMu sync.Mutex
	breakers   map[string]*resilience.Breaker
}

// New constructs an Orchestrator. store, summarizer, queue, and hub may all
// be nil — artifact persistence and event publishing are then skipped.
func New(
	settings cfg.Orchestrator,
	providers map[string]provider.Adapter,
	roles roleResolver,
	schemaDir string,
	store *artifact.Store,
	summarizer *artifact.Summarizer,
	queue messagequeue.Queue,
	hub broadcast.Broadcaster,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:        settings,
		providers:  providers,
		roles:      roles,
		schemaDir:  schemaDir,
		store:      store,
		summarizer: summarizer,
		checker:    health.NewChecker(0),
		policy:     degradation.NewPolicy(degradation.DefaultMaxRetries, settings.FallbackProviders, settings.MinProvidersRequired, settings.AbortOnAllFailures),
		queue:      queue,
		hub:        hub,
		logger:     logger,
		breakers:   make(map[string]*resilience.Breaker),
	}
}

// SetMetrics attaches the meter instruments recorded against during Run.
// A nil or never-called SetMetrics leaves metric recording a no-op.
func (o *Orchestrator) SetMetrics(m *otel.Metrics) {
	o.metrics = m
}

// recordProviderCall records one successful provider call's latency and
// token usage. A no-op when no Metrics has been attached.
func (o *Orchestrator) recordProviderCall(ctx context.Context, providerName string, d time.Duration, u provider.Usage) {
	if o.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("provider", providerName))
	o.metrics.ProviderLatency.Record(ctx, d.Seconds(), attrs)
	o.metrics.TokensUsed.Add(ctx, int64(u.InputTokens+u.OutputTokens), attrs)
}

func (o *Orchestrator) recordDraftFailure(ctx context.Context, providerName string) {
	if o.metrics == nil {
		return
	}
	o.metrics.DraftFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", providerName)))
}

func (o *Orchestrator) recordSynthesisRetry(ctx context.Context) {
	if o.metrics == nil {
		return
	}
	o.metrics.SynthesisRetries.Add(ctx, 1)
}

func (o *Orchestrator) recordRunOutcome(ctx context.Context, outcome string, d time.Duration, cost CostEstimate) {
	if o.metrics == nil {
		return
	}
	switch outcome {
	case "completed":
		o.metrics.RunsCompleted.Add(ctx, 1)
	case "failed":
		o.metrics.RunsFailed.Add(ctx, 1)
	case "timed_out":
		o.metrics.RunsTimedOut.Add(ctx, 1)
	}
	o.metrics.RunDuration.Record(ctx, d.Seconds())
	if cost.EstimatedCostUSD > 0 {
		o.metrics.RunCost.Record(ctx, cost.EstimatedCostUSD)
	}
}

// Run executes one full council deliberation for (subagent, mode) against
// task, honoring per-run overrides, and returns the outcome. Run never
// panics on a provider failure; every provider error is captured in the
// result instead.
func (o *Orchestrator) Run(ctx context.Context, task, subagent, mode string, overrides Overrides) Result {
	start := time.Now()
	if o.metrics != nil {
		o.metrics.RunsStarted.Add(ctx, 1)
	}

	resolved, err := o.roles.Resolve(subagent, mode)
	if err != nil {
		return Result{Success: false, Error: err.Error(), DurationMS: time.Since(start).Milliseconds()}
	}

	globalTimeout := o.cfg.GlobalTimeout
	if overrides.GlobalTimeout > 0 {
		globalTimeout = overrides.GlobalTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, globalTimeout)
	defer cancel()

	res := o.run(runCtx, resolved, task, overrides)
	res.ResolvedRole = resolved.Role.Name
	res.Mode = resolved.Mode
	res.DurationMS = time.Since(start).Milliseconds()

	outcome := "failed"
	if res.Success {
		outcome = "completed"
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && !res.Success {
		res.Error = "global timeout exceeded: " + res.Error
		outcome = "timed_out"
	}
	o.recordRunOutcome(ctx, outcome, time.Since(start), res.Cost)
	return res
}

func (o *Orchestrator) run(ctx context.Context, resolved role.Resolved, task string, overrides Overrides) Result {
	runCtx, runSpan := otel.StartRunSpan(ctx, "", resolved.Role.Name, resolved.Mode)
	defer runSpan.End()

	enableArtifacts := o.cfg.EnableArtifacts
	if overrides.EnableArtifacts != nil {
		enableArtifacts = *overrides.EnableArtifacts
	}
	enableDegradation := o.cfg.EnableGracefulDegradation
	if overrides.EnableGracefulDegradation != nil {
		enableDegradation = *overrides.EnableGracefulDegradation
	}

	var runID string
	if enableArtifacts && o.store != nil {
		run, err := o.store.CreateRun(runCtx, resolved.Role.Name, task, "", 0)
		if err != nil {
			o.logger.Warn("create run record failed", "error", err)
		} else {
			runID = run.ID
		}
	}
	if runID != "" {
		runSpan.SetAttributes(attribute.String("run.id", runID))
	}

	o.policy.Reset()

	prompt := o.roles.ComposePrompt(runCtx, resolved)

	var canonicalSchema map[string]any
	if resolved.Role.SchemaRef != "" {
		loaded, err := schema.Load(o.schemaDir, resolved.Role.SchemaRef)
		if err != nil {
			return Result{Success: false, Error: fmt.Sprintf("schema: %v", err), RunID: runID}
		}
		canonicalSchema = loaded
	}

	models := mergedModels(resolved.Role.Models, overrides.ModelOverrides)

	providerNames, providerErrs := o.selectProviders(resolved.Role.Providers, overrides)
	if len(providerNames) == 0 {
		return Result{
			Success:        false,
			Error:          "no usable providers configured",
			ProviderErrors: providerErrs,
			RunID:          runID,
		}
	}

	var healthReport *health.Report
	if o.cfg.EnableHealthCheck {
		adapters := make(map[string]provider.Adapter, len(providerNames))
		for _, name := range providerNames {
			adapters[name] = o.providers[name]
		}
		report := o.checker.CheckAll(runCtx, adapters)
		healthReport = &report
		providerNames = report.UsableProviders()
		sort.Strings(providerNames)
		if len(providerNames) == 0 {
			return Result{
				Success:        false,
				Error:          "no providers passed preflight health check",
				ProviderErrors: providerErrs,
				HealthReport:   healthReport,
				RunID:          runID,
			}
		}
	}

	o.publishEvent(runCtx, messagequeue.SubjectRunStarted, RunStartedPayload{RunID: runID, Role: resolved.Role.Name, Mode: resolved.Mode})
	o.broadcastRunStatus(runCtx, runID, resolved.Role.Name, resolved.Mode, "started")

	timeout := o.providerTimeout(overrides)

	var timings []Timing
	var artifactIDs []string

	// Phase 1: parallel drafts.
	draftStart := time.Now()
	o.broadcastPhase(runCtx, runID, "drafts", "started")
	draftCtx, draftSpan := otel.StartPhaseSpan(runCtx, runID, "drafts")
	drafts, usage, draftErrs, abort := o.runDrafts(draftCtx, runID, resolved, models, providerNames, prompt, task, canonicalSchema, timeout, enableDegradation)
	draftSpan.End()
	timings = append(timings, Timing{Phase: "drafts", DurationMS: time.Since(draftStart).Milliseconds()})
	for name, e := range draftErrs {
		providerErrs[name] = e
		o.recordDraftFailure(runCtx, name)
	}
	o.broadcastPhase(runCtx, runID, "drafts", "completed")

	if abort != nil {
		return o.fail(runCtx, runID, "draft phase aborted: "+abort.Reason, providerErrs, timings)
	}
	if len(drafts) == 0 {
		return o.fail(runCtx, runID, "no draft succeeded from any configured provider", providerErrs, timings)
	}

	if enableArtifacts && o.store != nil {
		for name, text := range drafts {
			if text == "" {
				continue
			}
			a, err := o.store.StoreArtifact(runCtx, runID, artifact.PhaseDraft, name, []byte(text))
			if err != nil {
				o.logger.Warn("store draft artifact failed", "provider", name, "error", err)
				continue
			}
			artifactIDs = append(artifactIDs, a.ID)
		}
	}

	draftsForPrompt := drafts
	if o.summarizer != nil && o.cfg.DraftSummaryTier != "" {
		tier := artifact.SummaryTier(strings.ToLower(o.cfg.DraftSummaryTier))
		summaries, err := o.summarizer.SummarizeDrafts(runCtx, drafts, tier, runID)
		if err != nil {
			o.logger.Warn("draft summarization failed", "error", err)
		} else {
			draftsForPrompt = make(map[string]string, len(summaries))
			for name, s := range summaries {
				draftsForPrompt[name] = s.Summary
			}
		}
	}

	// Phase 2: critique.
	critiqueStart := time.Now()
	o.broadcastPhase(runCtx, runID, "critique", "started")
	critiqueCtx, critiqueSpan := otel.StartPhaseSpan(runCtx, runID, "critique")
	critique, critiqueProvider, err := o.runCritique(critiqueCtx, runID, models, providerNames, drafts, task, canonicalSchema, timeout, enableDegradation)
	critiqueSpan.End()
	timings = append(timings, Timing{Phase: "critique", DurationMS: time.Since(critiqueStart).Milliseconds()})
	o.broadcastPhase(runCtx, runID, "critique", "completed")
	if err != nil {
		providerErrs[critiqueProvider] = err.Error()
		return o.fail(runCtx, runID, "critique phase failed: "+err.Error(), providerErrs, timings)
	}

	if enableArtifacts && o.store != nil {
		a, err := o.store.StoreArtifact(runCtx, runID, artifact.PhaseCritique, critiqueProvider, []byte(critique))
		if err == nil {
			artifactIDs = append(artifactIDs, a.ID)
		}
	}

	// Phase 3: synthesis with state-carrying retry.
	synthStart := time.Now()
	o.broadcastPhase(runCtx, runID, "synthesis", "started")
	maxRetries := o.cfg.MaxRetries
	if overrides.MaxRetries != nil {
		maxRetries = *overrides.MaxRetries
	}

	synthCtx, synthSpan := otel.StartPhaseSpan(runCtx, runID, "synthesis")
	output, validationErrs, attempts, synthUsage, synthErr := o.runSynthesis(
		synthCtx, runID, models, providerNames, draftsForPrompt, critique, task, canonicalSchema, timeout, maxRetries, enableDegradation, enableArtifacts)
	synthSpan.End()
	timings = append(timings, Timing{Phase: "synthesis", DurationMS: time.Since(synthStart).Milliseconds()})
	o.broadcastPhase(runCtx, runID, "synthesis", "completed")

	for name, u := range synthUsage {
		usage[name] = addUsage(usage[name], u)
	}

	degradationReport := o.policy.Report()

	if synthErr != nil {
		res := o.fail(runCtx, runID, "synthesis failed after "+fmt.Sprint(attempts)+" attempt(s): "+synthErr.Error(), providerErrs, timings)
		res.SynthesisAttempts = attempts
		res.RetryCount = attempts - 1
		res.ValidationErrors = validationErrs
		res.Drafts = drafts
		res.Critique = critique
		res.Cost = o.buildCostEstimate(usage)
		res.DegradationReport = &degradationReport
		return res
	}

	if enableArtifacts && o.store != nil {
		_ = o.store.CompleteRun(runCtx, runID, "completed")
	}
	o.publishEvent(runCtx, messagequeue.SubjectRunCompleted, RunCompletedPayload{RunID: runID})
	o.broadcastRunStatus(runCtx, runID, resolved.Role.Name, resolved.Mode, "completed")

	return Result{
		Success:           true,
		ResolvedRole:      resolved.Role.Name,
		Mode:              resolved.Mode,
		Output:            output,
		Drafts:            drafts,
		Critique:          critique,
		SynthesisAttempts: attempts,
		RetryCount:        attempts - 1,
		PhaseTimings:      timings,
		ProviderErrors:    providerErrs,
		Cost:              o.buildCostEstimate(usage),
		RunID:             runID,
		HealthReport:      healthReport,
		DegradationReport: &degradationReport,
		ArtifactIDs:       artifactIDs,
	}
}

func (o *Orchestrator) fail(ctx context.Context, runID, message string, providerErrs map[string]string, timings []Timing) Result {
	if o.cfg.EnableArtifacts && o.store != nil && runID != "" {
		_ = o.store.CompleteRun(ctx, runID, "failed")
	}
	o.publishEvent(ctx, messagequeue.SubjectRunFailed, RunFailedPayload{RunID: runID, Error: message})
	o.broadcastRunStatus(ctx, runID, "", "", "failed")

	report := o.policy.Report()
	return Result{
		Success:           false,
		Error:             message,
		ProviderErrors:    providerErrs,
		PhaseTimings:      timings,
		RunID:             runID,
		DegradationReport: &report,
	}
}

// selectProviders orders the providers available to this run: a per-run
// override if given, otherwise the role's preferred then fallback
// providers, or the process-wide set when the role names none; the result
// is filtered by the role's exclusions. Providers named in an override or a
// role preference but not registered are recorded as provider errors.
func (o *Orchestrator) selectProviders(prefs role.ProviderPreferences, overrides Overrides) ([]string, map[string]string) {
	errs := make(map[string]string)
	excluded := toSet(prefs.Exclude)

	var candidates []string
	if len(overrides.Providers) > 0 {
		candidates = overrides.Providers
	} else {
		seen := make(map[string]bool)
		add := func(name string) {
			if !seen[name] {
				seen[name] = true
				candidates = append(candidates, name)
			}
		}
		for _, name := range prefs.Preferred {
			add(name)
		}
		for _, name := range prefs.Fallback {
			add(name)
		}
		if len(candidates) == 0 {
			names := make([]string, 0, len(o.providers))
			for name := range o.providers {
				names = append(names, name)
			}
			sort.Strings(names)
			candidates = names
		}
	}

	ordered := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if excluded[name] {
			continue
		}
		if _, ok := o.providers[name]; !ok {
			errs[name] = "provider not registered"
			continue
		}
		ordered = append(ordered, name)
	}
	return ordered, errs
}

// mergedModels overlays per-run model overrides onto a role's own
// per-provider model map without mutating either.
func mergedModels(roleModels, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(roleModels)+len(overrides))
	for name, model := range roleModels {
		merged[name] = model
	}
	for name, model := range overrides {
		merged[name] = model
	}
	return merged
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

// providerTimeout resolves the per-call deadline for this run: the
// override if set, otherwise the configured default, always capped at the
// configured maximum.
func (o *Orchestrator) providerTimeout(overrides Overrides) time.Duration {
	d := o.cfg.ProviderTimeout
	if overrides.ProviderTimeout > 0 {
		d = overrides.ProviderTimeout
	}
	if d > o.cfg.MaxProviderTimeout {
		d = o.cfg.MaxProviderTimeout
	}
	return d
}

func (o *Orchestrator) breakerFor(name string) *resilience.Breaker {
	o.breakersMu.Lock()
	defer o.breakersMu.Unlock()
	b, ok := o.breakers[name]
	if !ok {
		b = resilience.NewBreaker(5, 30*time.Second)
		o.breakers[name] = b
	}
	return b
}

// callProvider invokes adapter with the per-call deadline and circuit
// breaker, consulting the degradation policy on failure. Transient errors
// are retried in place with the policy's backoff; a fallback decision
// swaps in the configured substitute provider for at most one hop; every
// other decision is returned to the caller as terminal. It returns the
// adapter that actually served the request (which may differ from the one
// passed in, after a fallback).
func (o *Orchestrator) callProvider(ctx context.Context, runID string, adapter provider.Adapter, req provider.GenerateRequest, phase string, remainingOthers int, timeout time.Duration, enableDegradation bool) (provider.GenerateResponse, provider.Adapter, degradation.Decision, error) {
	current := adapter
	fellBack := false

	for {
		name := current.Name()
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		spanCtx, span := otel.StartProviderCallSpan(callCtx, runID, name, req.Model)

		callStart := time.Now()
		var resp provider.GenerateResponse
		breaker := o.breakerFor(name)
		callErr := breaker.Execute(func() error {
			var genErr error
			resp, _, genErr = current.Generate(spanCtx, req)
			return genErr
		})
		span.End()
		cancel()

		if callErr == nil {
			o.recordProviderCall(ctx, name, time.Since(callStart), resp.Usage)
			return resp, current, degradation.Decision{Action: degradation.ActionContinue}, nil
		}

		if errors.Is(callErr, resilience.ErrCircuitOpen) {
			return provider.GenerateResponse{}, current, degradation.Decision{Action: degradation.ActionSkip, Reason: "circuit open for " + name}, callErr
		}

		var decision degradation.Decision
		if enableDegradation {
			decision = o.policy.Decide(name, callErr, phase, remainingOthers)
		} else if remainingOthers >= o.cfg.MinProvidersRequired {
			decision = degradation.Decision{Action: degradation.ActionContinue, Reason: "graceful degradation disabled"}
		} else {
			decision = degradation.Decision{Action: degradation.ActionAbort, Reason: "graceful degradation disabled and below minimum providers"}
		}

		switch decision.Action {
		case degradation.ActionRetry:
			select {
			case <-time.After(decision.RetryDelay):
				continue
			case <-ctx.Done():
				return provider.GenerateResponse{}, current, decision, ctx.Err()
			}
		case degradation.ActionFallback:
			if fellBack {
				return provider.GenerateResponse{}, current, decision, callErr
			}
			fb, ok := o.providers[decision.FallbackProvider]
			if !ok {
				return provider.GenerateResponse{}, current, decision, callErr
			}
			current = fb
			fellBack = true
			continue
		default:
			return provider.GenerateResponse{}, current, decision, callErr
		}
	}
}

// runDrafts fans every provider's draft call out in parallel with a bare
// errgroup: one provider's failure never cancels its siblings. abort is
// non-nil only when the degradation policy decided the whole phase must be
// aborted.
func (o *Orchestrator) runDrafts(
	ctx context.Context,
	runID string,
	resolved role.Resolved,
	models map[string]string,
	providerNames []string,
	prompt, task string,
	canonicalSchema map[string]any,
	timeout time.Duration,
	enableDegradation bool,
) (drafts map[string]string, usage map[string]provider.Usage, providerErrs map[string]string, abort *degradation.Decision) {
	drafts = make(map[string]string)
	usage = make(map[string]provider.Usage)
	providerErrs = make(map[string]string)

	var mu sync.Mutex
	var g errgroup.Group
	remainingOthers := len(providerNames) - 1
	if remainingOthers < 0 {
		remainingOthers = 0
	}

	for _, name := range providerNames {
		name := name
		adapter := o.providers[name]
		g.Go(func() error {
			req := provider.GenerateRequest{
				Messages: []provider.Message{
					{Role: provider.RoleSystem, Content: prompt},
					{Role: provider.RoleUser, Content: formatDraftPrompt(task, canonicalSchema, artifact.TierAudit)},
				},
				Model:       models[name],
				Temperature: o.cfg.DraftTemperature,
				MaxTokens:   o.cfg.MaxDraftTokens,
				Reasoning:   reasoningConfig(resolved.Role.Reasoning),
			}

			resp, served, decision, err := o.callProvider(ctx, runID, adapter, req, "drafts", remainingOthers, timeout, enableDegradation)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				providerErrs[name] = err.Error()
				o.broadcastDraftResult(ctx, runID, name, false, err.Error())
				if decision.Action == degradation.ActionAbort {
					d := decision
					abort = &d
				}
				return nil
			}

			text := ""
			if resp.Text != nil {
				text = *resp.Text
			}
			drafts[name] = text
			usage[served.Name()] = addUsage(usage[served.Name()], resp.Usage)
			o.broadcastDraftResult(ctx, runID, name, true, "")
			o.publishEvent(ctx, messagequeue.SubjectRunDraft, DraftPayload{RunID: runID, Provider: name, Success: true})
			return nil
		})
	}
	_ = g.Wait()
	return
}

// runCritique picks the first cfg.CritiqueProviders providers (in the run's
// provider order) capable of reviewing the drafts and, when more than one
// is configured, runs them concurrently and joins their findings under a
// provider-labeled heading. CritiqueProviders defaults to 1, matching a
// single adversarial reviewer; the loop and joining already support a
// multi-critic panel as a config change.
func (o *Orchestrator) runCritique(
	ctx context.Context,
	runID string,
	models map[string]string,
	providerNames []string,
	drafts map[string]string,
	task string,
	canonicalSchema map[string]any,
	timeout time.Duration,
	enableDegradation bool,
) (string, string, error) {
	n := o.cfg.CritiqueProviders
	if n <= 0 {
		n = 1
	}
	if n > len(providerNames) {
		n = len(providerNames)
	}
	chosen := providerNames[:n]

	prompt := formatCritiquePrompt(task, drafts, canonicalSchema, artifact.TierAudit)
	req := provider.GenerateRequest{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: critiqueSystemPrompt},
			{Role: provider.RoleUser, Content: prompt},
		},
		Temperature: o.cfg.CritiqueTemperature,
		MaxTokens:   o.cfg.MaxCritiqueTokens,
	}

	type result struct {
		name string
		text string
		err  error
	}
	results := make([]result, len(chosen))
	var g errgroup.Group
	remainingOthers := len(chosen) - 1

	for i, name := range chosen {
		i, name := i, name
		adapter := o.providers[name]
		g.Go(func() error {
			r := req
			r.Model = models[name]
			resp, _, _, err := o.callProvider(ctx, runID, adapter, r, "critique", remainingOthers, timeout, enableDegradation)
			if err != nil {
				results[i] = result{name: name, err: err}
				return nil
			}
			text := ""
			if resp.Text != nil {
				text = *resp.Text
			}
			results[i] = result{name: name, text: text}
			return nil
		})
	}
	_ = g.Wait()

	var ok []result
	var firstErr error
	var firstErrProvider string
	for _, r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
				firstErrProvider = r.name
			}
			continue
		}
		ok = append(ok, r)
	}
	if len(ok) == 0 {
		return "", firstErrProvider, firstErr
	}
	if len(ok) == 1 {
		return ok[0].text, ok[0].name, nil
	}

	var joined string
	for i, r := range ok {
		if i > 0 {
			joined += "\n\n"
		}
		joined += fmt.Sprintf("--- Critique from %s ---\n%s", r.name, r.text)
	}
	return joined, ok[0].name, nil
}

// runSynthesis attempts synthesis up to maxRetries+1 times. Each failed
// attempt's validation errors are folded into the next attempt's prompt so
// the provider sees exactly what it got wrong, rather than being asked the
// same question twice.
func (o *Orchestrator) runSynthesis(
	ctx context.Context,
	runID string,
	models map[string]string,
	providerNames []string,
	drafts map[string]string,
	critique, task string,
	canonicalSchema map[string]any,
	timeout time.Duration,
	maxRetries int,
	enableDegradation bool,
	enableArtifacts bool,
) (map[string]any, []string, int, map[string]provider.Usage, error) {
	name := o.selectSynthesisProvider(providerNames)
	adapter := o.providers[name]
	usage := make(map[string]provider.Usage)

	var lastErrs []string
	var lastErr error

	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		if attempt > 1 {
			o.recordSynthesisRetry(ctx)
		}
		prompt := formatSynthesisPrompt(task, drafts, critique, canonicalSchema, artifact.TierAudit, lastErrs)

		req := provider.GenerateRequest{
			Messages: []provider.Message{
				{Role: provider.RoleSystem, Content: synthesisSystemPrompt},
				{Role: provider.RoleUser, Content: prompt},
			},
			Model:       models[name],
			Temperature: o.cfg.SynthesisTemperature,
			MaxTokens:   o.cfg.MaxSynthesisTokens,
		}
		if canonicalSchema != nil && adapter.Supports("structured_output") {
			req.StructuredOutput = &provider.StructuredOutputConfig{Schema: canonicalSchema, Name: "synthesis", Strict: true}
		}

		remainingOthers := len(providerNames) - 1
		resp, served, _, err := o.callProvider(ctx, runID, adapter, req, "synthesis", remainingOthers, timeout, enableDegradation)
		if err != nil {
			lastErr = err
			lastErrs = []string{err.Error()}
			continue
		}
		usage[served.Name()] = addUsage(usage[served.Name()], resp.Usage)

		text := resp.RawContent
		if resp.Text != nil {
			text = *resp.Text
		}

		if enableArtifacts && o.store != nil && runID != "" {
			producer := fmt.Sprintf("synthesis#%d", attempt)
			if _, err := o.store.StoreArtifact(ctx, runID, artifact.PhaseSynthesis, producer, []byte(text)); err != nil {
				o.logger.Warn("store synthesis artifact failed", "attempt", attempt, "error", err)
			}
		}
		o.publishEvent(ctx, messagequeue.SubjectRunSynthesis, SynthesisPayload{RunID: runID, Attempt: attempt})

		parsed, ok := extractJSON(text)
		if !ok {
			lastErrs = []string{"response did not contain a parseable JSON object"}
			lastErr = errors.New(lastErrs[0])
			continue
		}

		if canonicalSchema != nil && o.cfg.EnableSchemaValidation {
			payload, _ := json.Marshal(parsed)
			if _, validationErrs := schema.Validate(payload, canonicalSchema); len(validationErrs) > 0 {
				lastErrs = make([]string, len(validationErrs))
				for i, e := range validationErrs {
					lastErrs[i] = e.String()
				}
				lastErr = fmt.Errorf("schema validation failed: %d error(s)", len(validationErrs))
				continue
			}
		}

		return parsed, nil, attempt, usage, nil
	}

	if lastErr == nil {
		lastErr = errors.New("synthesis exhausted retry budget")
	}
	return nil, lastErrs, maxRetries + 1, usage, lastErr
}

// selectSynthesisProvider prefers the first provider that supports
// structured output, falling back to the first available provider so
// synthesis still runs (with best-effort JSON extraction) against a
// backend that cannot enforce the schema itself.
func (o *Orchestrator) selectSynthesisProvider(providerNames []string) string {
	for _, name := range providerNames {
		if o.providers[name].Supports("structured_output") {
			return name
		}
	}
	return providerNames[0]
}

func (o *Orchestrator) buildCostEstimate(usage map[string]provider.Usage) CostEstimate {
	estimate := CostEstimate{ProviderCalls: make(map[string]int, len(usage))}
	for name, u := range usage {
		estimate.ProviderCalls[name]++
		estimate.TotalInputTokens += u.InputTokens
		estimate.TotalOutputTokens += u.OutputTokens
		estimate.TotalTokens += u.TotalTokens

		inRate := o.cfg.CostPer1KInput[name]
		outRate := o.cfg.CostPer1KOutput[name]
		estimate.EstimatedCostUSD += float64(u.InputTokens) / 1000 * inRate
		estimate.EstimatedCostUSD += float64(u.OutputTokens) / 1000 * outRate
	}
	return estimate
}

func addUsage(a, b provider.Usage) provider.Usage {
	return provider.Usage{
		InputTokens:  a.InputTokens + b.InputTokens,
		OutputTokens: a.OutputTokens + b.OutputTokens,
		TotalTokens:  a.TotalTokens + b.TotalTokens,
	}
}

func reasoningConfig(b role.ReasoningBudget) *provider.ReasoningConfig {
	if !b.Enabled {
		return nil
	}
	return &provider.ReasoningConfig{Enabled: true, Effort: b.Effort, BudgetTokens: b.BudgetTokens, ThinkingLevel: b.ThinkingLevel}
}

func (o *Orchestrator) publishEvent(ctx context.Context, subject string, payload any) {
	if o.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		o.logger.Error("marshal run event", "subject", subject, "error", err)
		return
	}
	if err := o.queue.Publish(ctx, subject, data); err != nil {
		o.logger.Warn("publish run event failed", "subject", subject, "error", err)
	}
}

func (o *Orchestrator) broadcastRunStatus(ctx context.Context, runID, roleName, mode, status string) {
	if o.hub == nil {
		return
	}
	o.hub.BroadcastEvent(ctx, "run.status", runStatusEvent{RunID: runID, Role: roleName, Mode: mode, Status: status})
}

func (o *Orchestrator) broadcastPhase(ctx context.Context, runID, phase, status string) {
	if o.hub == nil {
		return
	}
	o.hub.BroadcastEvent(ctx, "phase.status", phaseStatusEvent{RunID: runID, Phase: phase, Status: status})
}

func (o *Orchestrator) broadcastDraftResult(ctx context.Context, runID, providerName string, success bool, errMsg string) {
	if o.hub == nil {
		return
	}
	o.hub.BroadcastEvent(ctx, "draft.result", draftResultEvent{RunID: runID, Provider: providerName, Success: success, Error: errMsg})
}

// runStatusEvent, phaseStatusEvent, and draftResultEvent mirror
// internal/adapter/ws's payload shapes without importing that adapter
// package directly, so the orchestrator depends only on the broadcast
// port.
type runStatusEvent struct {
	RunID  string `json:"run_id"`
	Role   string `json:"role"`
	Mode   string `json:"mode,omitempty"`
	Status string `json:"status"`
}

type phaseStatusEvent struct {
	RunID  string `json:"run_id"`
	Phase  string `json:"phase"`
	Status string `json:"status"`
}

type draftResultEvent struct {
	RunID    string `json:"run_id"`
	Provider string `json:"provider"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// RunStartedPayload, RunCompletedPayload, RunFailedPayload, and
// SynthesisPayload are the NATS message bodies published at each phase
// transition's subject.
type RunStartedPayload struct {
	RunID string `json:"run_id"`
	Role  string `json:"role"`
	Mode  string `json:"mode,omitempty"`
}

type RunCompletedPayload struct {
	RunID string `json:"run_id"`
}

type RunFailedPayload struct {
	RunID string `json:"run_id"`
	Error string `json:"error"`
}

type DraftPayload struct {
	RunID    string `json:"run_id"`
	Provider string `json:"provider"`
	Success  bool   `json:"success"`
}

type SynthesisPayload struct {
	RunID   string `json:"run_id"`
	Attempt int    `json:"attempt"`
}
