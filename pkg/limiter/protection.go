package limiter

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrCircuitOpen is returned without calling upstream while a provider's breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ProtectionConfig combines the settings of the three mechanisms
type ProtectionConfig struct {
	Retry     *RetryConfig      `json:"retry" yaml:"retry"`
	Breaker   BreakerConfig     `json:"breaker" yaml:"breaker"`
	Limits    Limits            `json:"limits" yaml:"limits"`
	Overrides map[string]Limits `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

// DefaultProtectionConfig returns the default settings for every mechanism
func DefaultProtectionConfig() ProtectionConfig {
	return ProtectionConfig{
		Retry:   DefaultRetryConfig(),
		Breaker: DefaultBreakerConfig(),
		Limits:  DefaultLimits(),
	}
}

// Protection applies rate limiting, retries and circuit breaking to calls keyed by
// provider name
type Protection struct {
	rateLimiter    *RateLimiter
	retryManager   *RetryManager
	circuitBreaker *CircuitBreakerManager
}

// NewProtection creates a protection layer from config
func NewProtection(config ProtectionConfig, logger *zap.Logger) *Protection {
	return &Protection{
		rateLimiter:    NewRateLimiter(config.Limits, config.Overrides),
		retryManager:   NewRetryManager(config.Retry),
		circuitBreaker: NewCircuitBreakerManager(config.Breaker, logger),
	}
}

// Execute runs fn for key. The breaker sees one outcome per Execute, after retries.
func (p *Protection) Execute(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if p.circuitBreaker.IsOpen(key) {
		return fmt.Errorf("%w for %s", ErrCircuitOpen, key)
	}

	if err := p.rateLimiter.Wait(ctx, key); err != nil {
		return err
	}

	err := p.circuitBreaker.Execute(key, func() error {
		return p.retryManager.Execute(ctx, fn)
	})
	if err != nil {
		return fmt.Errorf("protected execution failed: %w", err)
	}
	return nil
}

// IsAvailable reports whether key is neither circuit broken nor rate limited
func (p *Protection) IsAvailable(key string) bool {
	return !p.circuitBreaker.IsOpen(key) && p.rateLimiter.Allow(key)
}

// GetStats returns the state of every mechanism for key
func (p *Protection) GetStats(key string) map[string]interface{} {
	cfg := p.retryManager.config
	return map[string]interface{}{
		"provider":        key,
		"rate_limiter":    p.rateLimiter.GetStats(key),
		"circuit_breaker": p.circuitBreaker.GetStats(key),
		"retry_config": map[string]interface{}{
			"max_retries":      cfg.MaxRetries,
			"base_delay":       cfg.BaseDelay.String(),
			"max_delay":        cfg.MaxDelay.String(),
			"backoff_factor":   cfg.BackoffFactor,
			"retryable_errors": cfg.RetryableErrors,
		},
	}
}

// Reset clears the rate limiter and breaker for key
func (p *Protection) Reset(key string) {
	p.rateLimiter.Reset(key)
	p.circuitBreaker.Reset(key)
}
