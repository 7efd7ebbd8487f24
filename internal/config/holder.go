package config

import "sync"

// Holder provides safe concurrent access to a Config that can be reloaded
// from its backing YAML file (plus environment overrides) at runtime,
// without restarting the process.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewHolder wraps an already-loaded Config with its source YAML path so it
// can later be reloaded.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Get returns the current config snapshot.
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return *h.cfg
}

// Reload re-reads the backing YAML file and environment, replacing the
// held config only if the result validates. On validation or read failure
// the previously held config is left untouched.
func (h *Holder) Reload() error {
	cfg, err := LoadFrom(h.path)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()

	return nil
}
