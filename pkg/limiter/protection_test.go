package limiter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testProtection() *Protection {
	config := DefaultProtectionConfig()
	config.Retry = fastRetryConfig(2)
	return NewProtection(config, nil)
}

func TestProtectionRetriesThenSucceeds(t *testing.T) {
	p := testProtection()

	attempts := 0
	err := p.Execute(context.Background(), "openai", func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return NewHTTPError(502, "bad gateway", "")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestProtectionOpensCircuit(t *testing.T) {
	config := DefaultProtectionConfig()
	config.Retry = fastRetryConfig(0)
	config.Breaker.Timeout = time.Minute
	p := NewProtection(config, nil)

	for i := 0; i < 5; i++ {
		p.Execute(context.Background(), "cohere", func(ctx context.Context) error {
			return NewHTTPError(500, "boom", "")
		})
	}

	called := false
	err := p.Execute(context.Background(), "cohere", func(ctx context.Context) error {
		called = true
		return nil
	})

	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Expected upstream not to be called")
	}
	if p.IsAvailable("cohere") {
		t.Error("Expected cohere to be unavailable")
	}
	if !p.IsAvailable("openai") {
		t.Error("Expected openai to be available")
	}
}

func TestProtectionStatsAndReset(t *testing.T) {
	p := testProtection()
	p.Execute(context.Background(), "ollama", func(ctx context.Context) error { return nil })

	stats := p.GetStats("ollama")
	if stats["provider"] != "ollama" {
		t.Errorf("Expected provider ollama, got %v", stats["provider"])
	}
	if _, ok := stats["circuit_breaker"].(map[string]interface{}); !ok {
		t.Error("Expected circuit breaker stats")
	}

	p.Reset("ollama")
	if !p.IsAvailable("ollama") {
		t.Error("Expected ollama to be available after reset")
	}
}
