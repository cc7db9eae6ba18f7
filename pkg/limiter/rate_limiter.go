package limiter

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limits bounds the request rate to one provider
type Limits struct {
	RequestsPerMinute float64 `json:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int     `json:"burst" yaml:"burst"`
}

// DefaultLimits allows 1000 requests per minute with a burst of a tenth of that
func DefaultLimits() Limits {
	return Limits{RequestsPerMinute: 1000, Burst: 100}
}

// RateLimiter keeps a token bucket per key
type RateLimiter struct {
	defaults  Limits
	overrides map[string]Limits
	limiters  map[string]*rate.Limiter
	mu        sync.Mutex
}

// NewRateLimiter creates a new rate limiter; overrides apply per key
func NewRateLimiter(defaults Limits, overrides map[string]Limits) *RateLimiter {
	if overrides == nil {
		overrides = make(map[string]Limits)
	}
	return &RateLimiter{
		defaults:  defaults,
		overrides: overrides,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// GetLimiter returns or creates the bucket for key
func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists := rl.limiters[key]; exists {
		return limiter
	}

	limits, ok := rl.overrides[key]
	if !ok {
		limits = rl.defaults
	}
	burst := limits.Burst
	if burst <= 0 {
		burst = max(1, int(limits.RequestsPerMinute/10))
	}

	var limit rate.Limit = rate.Inf
	if limits.RequestsPerMinute > 0 {
		limit = rate.Limit(limits.RequestsPerMinute / 60.0)
	}
	limiter := rate.NewLimiter(limit, burst)
	rl.limiters[key] = limiter
	return limiter
}

// Wait blocks until key may send one request
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	if err := rl.GetLimiter(key).Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}
	return nil
}

// Allow checks if key may send a request without waiting
func (rl *RateLimiter) Allow(key string) bool {
	return rl.GetLimiter(key).Allow()
}

// GetStats returns bucket state for key
func (rl *RateLimiter) GetStats(key string) map[string]interface{} {
	limiter := rl.GetLimiter(key)
	return map[string]interface{}{
		"limit":  float64(limiter.Limit()),
		"burst":  limiter.Burst(),
		"tokens": limiter.Tokens(),
	}
}

// Reset drops the bucket for key
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	delete(rl.limiters, key)
}
