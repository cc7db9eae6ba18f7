package limiter

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig holds circuit breaker settings shared by every provider
type BreakerConfig struct {
	MaxRequests  uint32        `json:"max_requests" yaml:"max_requests"`
	Interval     time.Duration `json:"interval" yaml:"interval"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
	MinRequests  uint32        `json:"min_requests" yaml:"min_requests"`
	FailureRatio float64       `json:"failure_ratio" yaml:"failure_ratio"`
}

// DefaultBreakerConfig opens a breaker once at least half of five or more
// requests in an interval have failed
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  3,
		Interval:     10 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.5,
	}
}

// CircuitBreakerManager keeps one breaker per key
type CircuitBreakerManager struct {
	config   BreakerConfig
	logger   *zap.Logger
	breakers map[string]*gobreaker.CircuitBreaker
	mu       sync.Mutex
}

// NewCircuitBreakerManager creates a new circuit breaker manager
func NewCircuitBreakerManager(config BreakerConfig, logger *zap.Logger) *CircuitBreakerManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreakerManager{
		config:   config,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// GetBreaker returns or creates the breaker for key
func (cbm *CircuitBreakerManager) GetBreaker(key string) *gobreaker.CircuitBreaker {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	if breaker, exists := cbm.breakers[key]; exists {
		return breaker
	}

	cfg := cbm.config
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= cfg.MinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		// Caller mistakes say nothing about upstream health
		IsSuccessful: func(err error) bool {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) {
				return httpErr.StatusCode < 500 && httpErr.StatusCode != 429
			}
			return err == nil
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			cbm.logger.Warn("Circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	cbm.breakers[key] = breaker
	return breaker
}

// Execute runs fn through the breaker for key
func (cbm *CircuitBreakerManager) Execute(key string, fn func() error) error {
	_, err := cbm.GetBreaker(key).Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// State returns the current state of the breaker for key
func (cbm *CircuitBreakerManager) State(key string) gobreaker.State {
	return cbm.GetBreaker(key).State()
}

// IsOpen checks if the breaker for key rejects calls
func (cbm *CircuitBreakerManager) IsOpen(key string) bool {
	return cbm.State(key) == gobreaker.StateOpen
}

// GetStats returns breaker counters for key
func (cbm *CircuitBreakerManager) GetStats(key string) map[string]interface{} {
	breaker := cbm.GetBreaker(key)
	counts := breaker.Counts()

	return map[string]interface{}{
		"state":                breaker.State().String(),
		"requests":             counts.Requests,
		"total_success":        counts.TotalSuccesses,
		"total_failures":       counts.TotalFailures,
		"consecutive_success":  counts.ConsecutiveSuccesses,
		"consecutive_failures": counts.ConsecutiveFailures,
	}
}

// Reset drops the breaker for key
func (cbm *CircuitBreakerManager) Reset(key string) {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	delete(cbm.breakers, key)
}
