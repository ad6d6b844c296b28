package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_ClosedState_PassesThrough(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	if !cb.CanExecute() {
		t.Fatal("closed circuit should allow requests")
	}

	var calls int
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     1 * time.Minute,
	})

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	if cb.State() != CircuitOpen {
		t.Errorf("expected open state after 3 failures, got %s", cb.State())
	}
	if cb.CanExecute() {
		t.Error("open circuit should reject requests before the reset timeout")
	}

	// Execute must fail fast without invoking the operation.
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		t.Error("should not be called when circuit is open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     30 * time.Second,
	})

	now := time.Unix(1000, 0)
	cb.nowFunc = func() time.Time { return now }

	cb.RecordFailure()
	if cb.CanExecute() {
		t.Fatal("circuit should be open immediately after tripping")
	}

	// Advance past the reset timeout: the first check transitions to
	// half-open and allows exactly that probe.
	now = now.Add(31 * time.Second)
	if !cb.CanExecute() {
		t.Fatal("circuit should allow a probe after the reset timeout")
	}

	_, state := cb.Counters()
	if state != CircuitHalfOpen {
		t.Errorf("expected half-open state, got %s", state)
	}
}

func TestCircuitBreaker_FailureInHalfOpenReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     30 * time.Second,
	})

	now := time.Unix(1000, 0)
	cb.nowFunc = func() time.Time { return now }

	cb.RecordFailure()
	now = now.Add(31 * time.Second)
	if !cb.CanExecute() {
		t.Fatal("expected probe to be allowed")
	}

	// One failure during half-open reopens the circuit for a full timeout.
	cb.RecordFailure()
	_, state := cb.Counters()
	if state != CircuitOpen {
		t.Errorf("expected open state after half-open failure, got %s", state)
	}
	if cb.CanExecute() {
		t.Error("reopened circuit should reject requests")
	}
}

func TestCircuitBreaker_SuccessInHalfOpenCloses(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     30 * time.Second,
	})

	now := time.Unix(1000, 0)
	cb.nowFunc = func() time.Time { return now }

	cb.RecordFailure()
	now = now.Add(31 * time.Second)
	if !cb.CanExecute() {
		t.Fatal("expected probe to be allowed")
	}

	cb.RecordSuccess()
	failures, state := cb.Counters()
	if state != CircuitClosed {
		t.Errorf("expected closed state after successful probe, got %s", state)
	}
	if failures != 0 {
		t.Errorf("expected failure count reset, got %d", failures)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     1 * time.Minute,
	})

	cb.RecordFailure()
	cb.RecordFailure()

	failures, state := cb.Counters()
	if failures != 2 {
		t.Errorf("expected 2 consecutive failures, got %d", failures)
	}
	if state != CircuitClosed {
		t.Errorf("expected closed state below threshold, got %s", state)
	}

	cb.RecordSuccess()
	failures, _ = cb.Counters()
	if failures != 0 {
		t.Errorf("expected 0 consecutive failures after success, got %d", failures)
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     30 * time.Second,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	now := time.Unix(1000, 0)
	cb.nowFunc = func() time.Time { return now }

	cb.RecordFailure()
	now = now.Add(31 * time.Second)
	cb.CanExecute()
	cb.RecordSuccess()

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %v", len(want), transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestCircuitBreaker_ShouldTripFilter(t *testing.T) {
	terminal := errors.New("bad request")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     1 * time.Minute,
		ShouldTrip:       func(err error) bool { return !errors.Is(err, terminal) },
	})

	// A terminal error counts as success for breaker purposes.
	_ = cb.Execute(context.Background(), func(_ context.Context) error {
		return terminal
	})
	if cb.State() != CircuitClosed {
		t.Errorf("terminal error should not trip breaker, state %s", cb.State())
	}

	_ = cb.Execute(context.Background(), func(_ context.Context) error {
		return errors.New("upstream exploded")
	})
	if cb.State() != CircuitOpen {
		t.Errorf("tripping error should open breaker, state %s", cb.State())
	}
}

func TestExecuteVal_PreservesValue(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	got, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (string, error) {
		return "payload", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "payload" {
		t.Errorf("expected payload, got %q", got)
	}
}
