package resilience

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
)

func TestIsTransient_ExplicitWrapper(t *testing.T) {
	err := NewTransientError(errors.New("rate limited"), 429)
	if !IsTransient(err) {
		t.Error("TransientError should be transient")
	}

	wrapped := eris.Wrap(err, "gateway: request")
	if !IsTransient(wrapped) {
		t.Error("wrapped TransientError should still be transient")
	}
}

func TestIsTransient_PlainErrorIsTerminal(t *testing.T) {
	if IsTransient(errors.New("malformed response")) {
		t.Error("plain error should not be transient")
	}
	if IsTransient(nil) {
		t.Error("nil should not be transient")
	}
}

func TestIsTransient_NetworkPatterns(t *testing.T) {
	cases := []string{
		"read tcp: connection reset by peer",
		"dial tcp: i/o timeout",
		"lookup api.example.com: no such host",
	}
	for _, msg := range cases {
		if !IsTransient(errors.New(msg)) {
			t.Errorf("expected %q to be transient", msg)
		}
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	transient := []int{408, 429, 500, 502, 503, 504}
	for _, code := range transient {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("status %d should be transient", code)
		}
	}

	terminal := []int{200, 301, 400, 401, 403, 404, 422}
	for _, code := range terminal {
		if IsTransientHTTPStatus(code) {
			t.Errorf("status %d should be terminal", code)
		}
	}
}

func TestWrapStatus(t *testing.T) {
	base := errors.New("upstream said no")

	wrapped := WrapStatus(base, 503)
	if !IsTransient(wrapped) {
		t.Error("503 should come back transient-wrapped")
	}
	if !errors.Is(wrapped, base) {
		t.Error("wrapping should preserve the original error")
	}

	terminal := WrapStatus(base, 401)
	if terminal != base {
		t.Error("terminal statuses should return the error unchanged")
	}
	if IsTransient(terminal) {
		t.Error("401 must not be retryable")
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := NewTransientError(inner, 500)
	if !errors.Is(err, inner) {
		t.Error("TransientError should unwrap to inner error")
	}
	if err.StatusCode != 500 {
		t.Errorf("expected status 500, got %d", err.StatusCode)
	}
}
