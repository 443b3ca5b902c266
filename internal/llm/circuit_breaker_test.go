package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures: 2,
		Timeout:     time.Minute,
	})
	ctx := context.Background()
	boom := errors.New("backend down")

	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(ctx, func() (interface{}, error) { return nil, boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected backend error, got %v", i, err)
		}
	}
	if cb.State() != "open" {
		t.Fatalf("expected open state, got %s", cb.State())
	}

	_, err := cb.Execute(ctx, func() (interface{}, error) { return "ok", nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker()
	ctx := context.Background()

	result, err := cb.Execute(ctx, func() (interface{}, error) { return 42, nil })
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result != 42 {
		t.Errorf("expected 42, got %v", result)
	}
	if cb.State() != "closed" {
		t.Errorf("expected closed state, got %s", cb.State())
	}
}

func TestCircuitBreakerRespectsContext(t *testing.T) {
	cb := NewCircuitBreaker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cb.Execute(ctx, func() (interface{}, error) { return nil, nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
