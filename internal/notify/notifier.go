// Package notify holds the push-notification capability the processor
// delivers through. The capability may legitimately be absent (no provider
// configured); callers decide what that means for their pipeline.
package notify

import (
	"context"
	"errors"
)

// ErrUnavailable reports that no push provider is configured. The processor
// treats it as soft-success, not as a retryable delivery failure.
var ErrUnavailable = errors.New("notify: push provider not configured")

type Notification struct {
	Title string
	Body  string
}

// Notifier delivers a notification to a device token and returns the
// provider-assigned message id.
type Notifier interface {
	Deliver(ctx context.Context, token string, n Notification, data map[string]string) (string, error)
}

type disabled struct{}

// Disabled returns a Notifier representing the unconfigured capability.
func Disabled() Notifier {
	return disabled{}
}

func (disabled) Deliver(context.Context, string, Notification, map[string]string) (string, error) {
	return "", ErrUnavailable
}
