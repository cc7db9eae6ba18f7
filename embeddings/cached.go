package embeddings

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/snow-ghost/embedcfg/pkg/cache"
)

// CachedEmbeddingFunction serves previously computed vectors from a VectorCache and
// sends only the misses upstream. Concurrent identical miss batches share one call.
type CachedEmbeddingFunction struct {
	inner    EmbeddingFunction
	cache    cache.VectorCache
	dedup    *cache.Deduplicator
	ttl      time.Duration
	onLookup func(ctx context.Context, provider string, hits, misses int)
}

var (
	_ EmbeddingFunction = (*CachedEmbeddingFunction)(nil)
	_ Wrapper           = (*CachedEmbeddingFunction)(nil)
)

// CacheOption configures a CachedEmbeddingFunction
type CacheOption func(*CachedEmbeddingFunction)

// WithCacheTTL sets the lifetime of cached vectors
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *CachedEmbeddingFunction) { c.ttl = ttl }
}

// WithLookupHook installs a callback reporting hits and misses per call
func WithLookupHook(fn func(ctx context.Context, provider string, hits, misses int)) CacheOption {
	return func(c *CachedEmbeddingFunction) { c.onLookup = fn }
}

// NewCachedEmbeddingFunction wraps inner with vc
func NewCachedEmbeddingFunction(inner EmbeddingFunction, vc cache.VectorCache, opts ...CacheOption) *CachedEmbeddingFunction {
	c := &CachedEmbeddingFunction{
		inner: inner,
		cache: vc,
		dedup: cache.NewDeduplicator(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedEmbeddingFunction) Unwrap() EmbeddingFunction { return c.inner }

func (c *CachedEmbeddingFunction) Name() string { return c.inner.Name() }

func (c *CachedEmbeddingFunction) GenerateEmbeddings(ctx context.Context, input Embeddable) (Embeddings, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	fingerprint, err := Fingerprint(c.inner)
	if err != nil {
		return nil, err
	}

	result := make(Embeddings, input.Len())
	keys := make([]cache.CacheKey, input.Len())
	var misses []int
	for i := range result {
		keys[i] = cache.Key(fingerprint, input.item(i))
		vector, ok, err := c.cache.Get(ctx, keys[i])
		if err != nil {
			return nil, fmt.Errorf("embedding cache lookup failed: %w", err)
		}
		if ok {
			result[i] = vector
		} else {
			misses = append(misses, i)
		}
	}

	if c.onLookup != nil {
		c.onLookup(ctx, c.Name(), input.Len()-len(misses), len(misses))
	}
	if len(misses) == 0 {
		return result, nil
	}

	missKeys := make([]string, len(misses))
	for i, pos := range misses {
		missKeys[i] = string(keys[pos])
	}
	batchKey := cache.Key(fingerprint, []byte(strings.Join(missKeys, ",")))

	computed, err := c.dedup.Execute(ctx, batchKey, func(ctx context.Context) ([][]float32, error) {
		vectors, err := c.inner.GenerateEmbeddings(ctx, input.pick(misses))
		if err != nil {
			return nil, err
		}
		out := make([][]float32, len(vectors))
		for i, v := range vectors {
			out[i] = v
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	if len(computed) != len(misses) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d items", ErrDimensionMismatch, c.Name(), len(computed), len(misses))
	}

	for i, pos := range misses {
		result[pos] = slices.Clone(computed[i])
		if err := c.cache.Set(ctx, keys[pos], computed[i], c.ttl); err != nil {
			return nil, fmt.Errorf("embedding cache store failed: %w", err)
		}
	}
	return result, nil
}

func (c *CachedEmbeddingFunction) DefaultMetric() (DistanceMetric, error) {
	return c.inner.DefaultMetric()
}

func (c *CachedEmbeddingFunction) GetConfig() Config {
	return c.inner.GetConfig()
}

// BuildFromConfig rebuilds the inner function and wraps it with the same cache
func (c *CachedEmbeddingFunction) BuildFromConfig(cfg Config) (EmbeddingFunction, error) {
	inner, err := c.inner.BuildFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	next := *c
	next.inner = inner
	return &next, nil
}

func (c *CachedEmbeddingFunction) ModifiableVariables() []string {
	return c.inner.ModifiableVariables()
}

// Fingerprint identifies the vector space ef produces: its name plus every config
// key that is not modifiable. Functions with equal fingerprints embed identically.
func Fingerprint(ef EmbeddingFunction) (string, error) {
	cfg := ef.GetConfig().Clone()
	for _, key := range ef.ModifiableVariables() {
		delete(cfg, key)
	}
	// encoding/json sorts map keys, so equal configs encode identically
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint %s: %w", ef.Name(), err)
	}
	return ef.Name() + ":" + string(data), nil
}
