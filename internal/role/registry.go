package role

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/llm-council/council/internal/pathsafe"
)

// promptCache is the subset of the cache port Registry needs to memoize
// composed system prompts.
type promptCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Registry loads role definitions from a directory of YAML files, indexed
// by canonical name, and resolves deprecated aliases.
type Registry struct {
	dir   string
	cache promptCache

	mu    sync.RWMutex
	roles map[string]*Role
}

// NewRegistry constructs a Registry rooted at dir. A nil cache disables
// prompt composition memoization.
func NewRegistry(dir string, cache promptCache) *Registry {
	return &Registry{dir: dir, cache: cache, roles: make(map[string]*Role)}
}

// Load reads every "*.yaml" file directly under the registry's directory
// and parses it as a Role, keyed by its declared name.
func (r *Registry) Load() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("role: read registry dir: %w", err)
	}

	loaded := make(map[string]*Role, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		name := entry.Name()[:len(entry.Name())-len(".yaml")]
		if err := pathsafe.ValidateName(name, "role"); err != nil {
			return err
		}

		path := filepath.Join(r.dir, entry.Name())
		if err := pathsafe.EnsureContained(path, r.dir, "role config"); err != nil {
			return err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("role: read %s: %w", entry.Name(), err)
		}

		var role Role
		if err := yaml.Unmarshal(data, &role); err != nil {
			return fmt.Errorf("role: parse %s: %w", entry.Name(), err)
		}
		if role.Name == "" {
			role.Name = name
		}
		loaded[role.Name] = &role
	}

	r.mu.Lock()
	r.roles = loaded
	r.mu.Unlock()
	return nil
}

// Names returns every canonical role name currently loaded.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.roles))
	for name := range r.roles {
		names = append(names, name)
	}
	return names
}

// Resolve looks up subagent by canonical name or deprecated alias,
// returning the role and effective mode. If mode is non-empty and the
// resolved role does not declare that mode in its Modes map, it returns
// ErrUnknownMode.
func (r *Registry) Resolve(subagent, mode string) (Resolved, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	canonical := subagent
	wasAlias := false

	if _, ok := r.roles[subagent]; !ok {
		if aliasedRole, aliasedMode, ok := resolveAlias(subagent); ok {
			canonical = aliasedRole
			wasAlias = true
			if mode == "" {
				mode = aliasedMode
			}
		}
	}

	role, ok := r.roles[canonical]
	if !ok {
		return Resolved{}, ErrUnknownRole{Name: subagent}
	}

	if mode != "" {
		if _, hasMode := role.Modes[mode]; !hasMode {
			return Resolved{}, ErrUnknownMode{Role: canonical, Mode: mode}
		}
	}

	return Resolved{Role: role, Mode: mode, WasAlias: wasAlias, AliasInput: subagent}, nil
}

// ComposePrompt builds the full system prompt for a resolved role+mode:
// base system prompt, then the mode-specific fragment (if any), then the
// Council Deliberation Protocol text, which is appended to every role.
// Results are memoized in the registry's cache keyed by (role name, mode).
func (r *Registry) ComposePrompt(ctx context.Context, resolved Resolved) string {
	key := "role-prompt:" + resolved.Role.Name + ":" + resolved.Mode

	if r.cache != nil {
		if cached, ok, _ := r.cache.Get(ctx, key); ok {
			return string(cached)
		}
	}

	prompt := resolved.Role.SystemPrompt
	if resolved.Mode != "" {
		if fragment, ok := resolved.Role.Modes[resolved.Mode]; ok && fragment != "" {
			prompt = prompt + "\n\n" + fragment
		}
	}
	prompt = prompt + "\n\n" + councilProtocol

	if r.cache != nil {
		_ = r.cache.Set(ctx, key, []byte(prompt), time.Hour)
	}
	return prompt
}
