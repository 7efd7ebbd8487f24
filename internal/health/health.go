// Package health implements preflight health checking for provider
// adapters before a council run starts: it calls each adapter's Doctor
// method, classifies failures, and reports which providers are usable.
package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/llm-council/council/internal/provider"
)

// Status is a provider's health classification.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
	StatusUnknown  Status = "unknown"
)

// ProviderHealth is the health status for a single provider.
type ProviderHealth struct {
	Provider  string
	Status    Status
	Message   string
	LatencyMS float64
	ErrorType provider.ErrorType
	CheckedAt time.Time
	Details   map[string]any
}

// Usable reports whether a provider in this health state should be used
// for council execution.
func (h ProviderHealth) Usable() bool {
	return h.Status == StatusOK || h.Status == StatusDegraded
}

// Report is the aggregated health of every checked provider.
type Report struct {
	Providers     []ProviderHealth
	AllHealthy    bool
	UsableCount   int
	TotalCount    int
	CheckedAt     time.Time
	CheckDuration time.Duration
}

// UsableProviders returns the names of every provider this report
// considers usable.
func (r Report) UsableProviders() []string {
	names := make([]string, 0, len(r.Providers))
	for _, p := range r.Providers {
		if p.Usable() {
			names = append(names, p.Provider)
		}
	}
	return names
}

// DownProviders returns the names of every provider this report marked
// down.
func (r Report) DownProviders() []string {
	names := make([]string, 0)
	for _, p := range r.Providers {
		if p.Status == StatusDown {
			names = append(names, p.Provider)
		}
	}
	return names
}

const (
	// DefaultTimeout bounds an individual health probe; it is shorter than
	// a generation call's timeout since a doctor check should be cheap.
	DefaultTimeout = 10 * time.Second
	cacheTTL       = 60 * time.Second
)

// Checker performs preflight health checks on a set of provider adapters,
// caching each provider's result for cacheTTL to avoid hammering a
// provider's status endpoint across repeated runs.
type Checker struct {
	Timeout time.Duration

	mu    sync.Mutex
	cache map[string]cachedHealth
}

type cachedHealth struct {
	health  ProviderHealth
	checked time.Time
}

// NewChecker constructs a Checker with the given per-probe timeout. A zero
// timeout uses DefaultTimeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{Timeout: timeout, cache: make(map[string]cachedHealth)}
}

// CheckProvider probes a single provider adapter, returning a cached
// result if one was recorded within the last 60 seconds.
func (c *Checker) CheckProvider(ctx context.Context, name string, adapter provider.Adapter) ProviderHealth {
	c.mu.Lock()
	if cached, ok := c.cache[name]; ok && time.Since(cached.checked) < cacheTTL {
		c.mu.Unlock()
		return cached.health
	}
	c.mu.Unlock()

	health := c.probe(ctx, name, adapter)

	c.mu.Lock()
	c.cache[name] = cachedHealth{health: health, checked: time.Now()}
	c.mu.Unlock()

	return health
}

func (c *Checker) probe(ctx context.Context, name string, adapter provider.Adapter) ProviderHealth {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	start := time.Now()
	result, err := adapter.Doctor(ctx)
	latency := float64(time.Since(start).Milliseconds())

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ProviderHealth{
				Provider:  name,
				Status:    StatusDegraded,
				Message:   "health check timed out after " + c.Timeout.String(),
				LatencyMS: latency,
				ErrorType: provider.ErrorTimeout,
				CheckedAt: time.Now(),
			}
		}

		errType := provider.ClassifyError(err.Error(), -1)
		status := StatusDegraded
		if errType == provider.ErrorAuth || errType == provider.ErrorBilling {
			status = StatusDown
		}
		return ProviderHealth{
			Provider:  name,
			Status:    status,
			Message:   "health check error: " + truncate(err.Error(), 100),
			LatencyMS: latency,
			ErrorType: errType,
			CheckedAt: time.Now(),
		}
	}

	if result.OK {
		lat := result.LatencyMS
		if lat == 0 {
			lat = latency
		}
		msg := result.Message
		if msg == "" {
			msg = "Healthy"
		}
		return ProviderHealth{
			Provider:  name,
			Status:    StatusOK,
			Message:   msg,
			LatencyMS: lat,
			Details:   result.Details,
			CheckedAt: time.Now(),
		}
	}

	errType := provider.ClassifyError(result.Message, -1)
	msg := result.Message
	if msg == "" {
		msg = "Health check failed"
	}
	return ProviderHealth{
		Provider:  name,
		Status:    StatusDown,
		Message:   msg,
		LatencyMS: result.LatencyMS,
		ErrorType: errType,
		Details:   result.Details,
		CheckedAt: time.Now(),
	}
}

// CheckAll probes every provider in parallel and returns the aggregated
// report.
func (c *Checker) CheckAll(ctx context.Context, adapters map[string]provider.Adapter) Report {
	start := time.Now()

	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}

	healths := make([]ProviderHealth, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		adapter := adapters[name]
		g.Go(func() error {
			healths[i] = c.CheckProvider(gctx, name, adapter)
			return nil
		})
	}
	_ = g.Wait()

	usable := 0
	allHealthy := true
	for _, h := range healths {
		if h.Usable() {
			usable++
		}
		if h.Status != StatusOK {
			allHealthy = false
		}
	}

	return Report{
		Providers:     healths,
		AllHealthy:    allHealthy,
		UsableCount:   usable,
		TotalCount:    len(healths),
		CheckedAt:     time.Now(),
		CheckDuration: time.Since(start),
	}
}

// ClearCache discards all cached provider health results.
func (c *Checker) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]cachedHealth)
}

// ShouldSkip reports whether a provider in this health state should be
// excluded from a run: it is down, or it failed with a non-retryable
// error type.
func ShouldSkip(h ProviderHealth) bool {
	if h.Status == StatusDown {
		return true
	}
	return provider.NonRetryable[h.ErrorType]
}

// Preflight checks every provider and returns the subset considered
// usable alongside the full report. When skipOnFailure is false, every
// provider is returned regardless of health.
func Preflight(ctx context.Context, adapters map[string]provider.Adapter, timeout time.Duration, skipOnFailure bool) (map[string]provider.Adapter, Report) {
	checker := NewChecker(timeout)
	report := checker.CheckAll(ctx, adapters)

	if !skipOnFailure {
		return adapters, report
	}

	usableNames := make(map[string]bool, len(report.Providers))
	for _, name := range report.UsableProviders() {
		usableNames[name] = true
	}

	usable := make(map[string]provider.Adapter, len(usableNames))
	for name, adapter := range adapters {
		if usableNames[name] {
			usable[name] = adapter
		}
	}
	return usable, report
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
