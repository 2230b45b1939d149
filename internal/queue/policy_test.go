package queue

import (
	"testing"
	"time"
)

func TestRetryPolicy_NextDelay_Exponential(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		MaxDelay:    10 * time.Second,
		Kind:        BackoffExponential,
	}

	tests := []struct {
		attemptsMade int
		expected     time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second}, // 16s capped at 10s
		{5, 10 * time.Second},
	}

	for _, tt := range tests {
		if d := p.NextDelay(tt.attemptsMade); d != tt.expected {
			t.Errorf("attemptsMade=%d: expected %v, got %v", tt.attemptsMade, tt.expected, d)
		}
	}
}

func TestRetryPolicy_NextDelay_Fixed(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 3, BaseDelay: 5 * time.Second, Kind: BackoffFixed}

	for _, attempts := range []int{1, 2, 3} {
		if d := p.NextDelay(attempts); d != 5*time.Second {
			t.Errorf("attemptsMade=%d: expected 5s, got %v", attempts, d)
		}
	}
}

func TestRetryPolicy_NextDelay_ClampsLowAttempts(t *testing.T) {
	t.Parallel()

	p := DefaultRetryPolicy()

	if d := p.NextDelay(0); d != p.BaseDelay {
		t.Fatalf("expected base delay for attemptsMade=0, got %v", d)
	}
	if d := p.NextDelay(-3); d != p.BaseDelay {
		t.Fatalf("expected base delay for negative attemptsMade, got %v", d)
	}
}
