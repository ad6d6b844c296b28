package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func transientFailure(msg string) error {
	return NewTransientError(errors.New(msg), 503)
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetryConfig(3), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetryConfig(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return transientFailure("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_MaxRetriesPlusOneTotalAttempts(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetryConfig(2), func(_ context.Context) error {
		calls++
		return transientFailure("always down")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// MaxRetries=2 means 3 total attempts.
	if calls != 3 {
		t.Errorf("expected 3 total attempts, got %d", calls)
	}
	if !strings.Contains(err.Error(), "exhausted 3 attempts") {
		t.Errorf("expected attempt count context in error, got %v", err)
	}
}

func TestDo_ZeroRetriesSingleAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetryConfig(0), func(_ context.Context) error {
		calls++
		return transientFailure("always down")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("MaxRetries=0 should mean exactly 1 attempt, got %d", calls)
	}
}

func TestFromRetryConfig_HonorsExplicitZero(t *testing.T) {
	cfg := FromRetryConfig(0, 1000, 30000, 0)
	if cfg.MaxRetries != 0 {
		t.Errorf("explicit zero retries should not be coerced, got %d", cfg.MaxRetries)
	}

	cfg = FromRetryConfig(-1, 1000, 30000, 0)
	if cfg.MaxRetries != 3 {
		t.Errorf("negative retries should fall back to default, got %d", cfg.MaxRetries)
	}
}

func TestDo_TerminalErrorNotRetried(t *testing.T) {
	terminal := errors.New("validation failed")
	var calls int
	err := Do(context.Background(), fastRetryConfig(5), func(_ context.Context) error {
		calls++
		return terminal
	})
	if !errors.Is(err, terminal) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("terminal error should not be retried, got %d calls", calls)
	}
}

func TestDo_ContextCancellationStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	err := Do(ctx, fastRetryConfig(5), func(_ context.Context) error {
		calls++
		cancel()
		return transientFailure("down")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected no retries after cancellation, got %d calls", calls)
	}
}

func TestDoVal_PreservesValue(t *testing.T) {
	var calls int
	got, err := DoVal(context.Background(), fastRetryConfig(3), func(_ context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, transientFailure("flaky")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestBackoff_DoublesAndCaps(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 1000 * time.Millisecond,
		MaxBackoff:     30000 * time.Millisecond,
	}

	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
		30000 * time.Millisecond,
		30000 * time.Millisecond,
	}
	for attempt, expected := range want {
		if got := Backoff(attempt, cfg); got != expected {
			t.Errorf("attempt %d: expected %v, got %v", attempt, expected, got)
		}
	}
}

func TestBackoff_JitterStaysInRange(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 1000 * time.Millisecond,
		MaxBackoff:     30000 * time.Millisecond,
		JitterFraction: 0.25,
	}

	for i := 0; i < 100; i++ {
		got := Backoff(0, cfg)
		if got < 750*time.Millisecond || got > 1250*time.Millisecond {
			t.Fatalf("jittered backoff %v outside ±25%% band", got)
		}
	}
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := fastRetryConfig(2)
	cfg.OnRetry = func(attempt int, _ error) {
		attempts = append(attempts, attempt)
	}

	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		return transientFailure("down")
	})

	if len(attempts) != 2 {
		t.Fatalf("expected 2 retry callbacks, got %v", attempts)
	}
	if attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("expected callbacks [1 2], got %v", attempts)
	}
}

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}
