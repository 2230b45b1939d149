package queue

import "time"

type BackoffKind string

const (
	BackoffExponential BackoffKind = "exponential"
	BackoffFixed       BackoffKind = "fixed"
)

// RetryPolicy governs how many times a job is attempted and how long the
// queue waits between attempts. It is fixed at queue construction.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Kind        BackoffKind
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    10 * time.Minute,
		Kind:        BackoffExponential,
	}
}

// NextDelay returns the delay before the next attempt given the number of
// attempts already made. Exponential backoff doubles per attempt
// (base, 2*base, 4*base, ...) capped at MaxDelay.
func (p RetryPolicy) NextDelay(attemptsMade int) time.Duration {
	if attemptsMade < 1 {
		attemptsMade = 1
	}

	d := p.BaseDelay
	if p.Kind != BackoffFixed {
		for i := 1; i < attemptsMade; i++ {
			d *= 2
			if p.MaxDelay > 0 && d >= p.MaxDelay {
				return p.MaxDelay
			}
		}
	}

	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
