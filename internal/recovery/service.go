// Package recovery exposes the failed-job store: listing durable failure
// artifacts, replaying them through the queue, and discarding them.
package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/piercehub/reminder-service/internal/model"
	"github.com/piercehub/reminder-service/internal/queue"
	"github.com/piercehub/reminder-service/internal/repo"
)

var (
	// ErrInvalidState is returned when a failed job cannot be retried in
	// its current status, e.g. it is already resolved.
	ErrInvalidState = errors.New("failed job is not in a retryable state")

	// ErrUnsupportedJobType is returned when the stored job type has no
	// replay path.
	ErrUnsupportedJobType = errors.New("unsupported job type")
)

// Enqueuer is the slice of the queue that replay needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, id string, payload []byte, visibleAt time.Time) error
}

type Service struct {
	failed    repo.FailedJobRepository
	reminders repo.ReminderRepository
	queue     Enqueuer

	now func() time.Time
}

func NewService(failed repo.FailedJobRepository, reminders repo.ReminderRepository, q Enqueuer) *Service {
	return &Service{
		failed:    failed,
		reminders: reminders,
		queue:     q,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns failed jobs, newest first, optionally filtered by status.
func (s *Service) List(ctx context.Context, status model.FailedJobStatus, limit, offset int) ([]model.FailedJob, int, error) {
	return s.failed.List(ctx, status, limit, offset)
}

// Retry replays a failed job: the reminder record goes back to pending and
// the original payload is enqueued for immediate processing. The artifact
// moves to retrying and is resolved by the processor when delivery succeeds.
func (s *Service) Retry(ctx context.Context, id string) (*model.FailedJob, error) {
	fj, err := s.failed.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if fj.Status == model.FailedJobResolved {
		return nil, fmt.Errorf("failed job %s already resolved: %w", id, ErrInvalidState)
	}
	if fj.JobType != model.JobTypeReminder {
		return nil, fmt.Errorf("job type %q: %w", fj.JobType, ErrUnsupportedJobType)
	}

	var payload model.ReminderJob
	if err := json.Unmarshal(fj.JobData, &payload); err != nil {
		return nil, fmt.Errorf("decode stored payload: %w", err)
	}

	// The reminder must still exist; a retry of a deleted reminder is a
	// client error, not something to enqueue.
	if _, err := s.reminders.FindByID(ctx, payload.ReminderID); err != nil {
		return nil, fmt.Errorf("reminder %s: %w", payload.ReminderID, err)
	}

	if err := s.reminders.ResetPending(ctx, payload.ReminderID); err != nil {
		return nil, fmt.Errorf("reset reminder %s: %w", payload.ReminderID, err)
	}

	now := s.now()
	err = s.queue.Enqueue(ctx, payload.ReminderID, fj.JobData, now)
	if err != nil && !errors.Is(err, queue.ErrDuplicateJob) {
		return nil, fmt.Errorf("enqueue retry for %s: %w", payload.ReminderID, err)
	}
	if errors.Is(err, queue.ErrDuplicateJob) {
		slog.Warn("retry requested while a live job exists", "reminder_id", payload.ReminderID)
	}

	if err := s.failed.MarkRetrying(ctx, fj.ID, now); err != nil {
		return nil, fmt.Errorf("mark failed job retrying: %w", err)
	}

	fj.Status = model.FailedJobRetrying
	fj.RetriedAt = &now

	slog.Info("failed job queued for retry", "failed_job_id", fj.ID, "reminder_id", payload.ReminderID)
	return fj, nil
}

// Delete discards a failed job artifact.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.failed.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("failed job deleted", "failed_job_id", id)
	return nil
}
