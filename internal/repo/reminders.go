package repo

import (
	"context"
	"time"

	"github.com/piercehub/reminder-service/internal/model"
)

type ReminderRepository interface {
	Create(ctx context.Context, rem *model.ScheduledReminder) error
	FindByID(ctx context.Context, id string) (*model.ScheduledReminder, error)

	// List returns a page of a studio's reminders, newest scheduledFor first,
	// optionally filtered by status, plus the total matching count.
	List(ctx context.Context, studioID string, status model.ReminderStatus, limit, offset int) ([]model.ScheduledReminder, int, error)

	// RecordAttempt bumps the attempt count and stamps lastAttempt. Called
	// unconditionally before delivery so accounting survives a failed send.
	RecordAttempt(ctx context.Context, id string, at time.Time) error

	// MarkSent transitions to sent. A non-nil note records a soft-success
	// diagnostic; nil clears any earlier error.
	MarkSent(ctx context.Context, id string, at time.Time, note *string) error

	MarkFailed(ctx context.Context, id string, errMsg string) error

	// ResetPending returns a reminder to pending with a cleared error, used
	// by the manual retry path.
	ResetPending(ctx context.Context, id string) error

	// ListPendingBefore returns pending reminders created before the cutoff,
	// oldest first, for the orphan reconciliation sweep.
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.ScheduledReminder, error)
}
