package schema

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// byteCache is the subset of the cache port (internal/port/cache.Cache)
// Transformer needs; accepting the interface rather than a concrete type
// keeps this package decoupled from any particular cache backend.
type byteCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Transformer memoizes Transform results. Transform is a pure function of
// (schema, variant), so its output is safe to cache indefinitely per
// process; Transformer adds a bounded, TTL'd cache on top for processes
// that transform the same role schemas across many runs.
type Transformer struct {
	cache byteCache
	ttl   time.Duration
}

// NewTransformer builds a Transformer backed by cache. A nil cache is
// valid and simply disables memoization.
func NewTransformer(cache byteCache, ttl time.Duration) *Transformer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Transformer{cache: cache, ttl: ttl}
}

// Transform returns the provider-variant schema, consulting the cache
// first and populating it on miss.
func (t *Transformer) Transform(ctx context.Context, canonical map[string]any, variant Variant) (map[string]any, error) {
	if t.cache == nil {
		return Transform(canonical, variant), nil
	}

	key, err := cacheKey(canonical, variant)
	if err != nil {
		return Transform(canonical, variant), nil
	}

	if cached, ok, _ := t.cache.Get(ctx, key); ok {
		var result map[string]any
		if err := json.Unmarshal(cached, &result); err == nil {
			return result, nil
		}
	}

	result := Transform(canonical, variant)
	if encoded, err := json.Marshal(result); err == nil {
		_ = t.cache.Set(ctx, key, encoded, t.ttl)
	}
	return result, nil
}

func cacheKey(canonical map[string]any, variant Variant) (string, error) {
	encoded, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return "schema:" + string(variant) + ":" + hex.EncodeToString(sum[:]), nil
}
