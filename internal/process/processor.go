// Package process consumes reminder work items: it re-validates the record,
// delivers the push notification, and keeps the durable reminder and
// failed-job records in sync with the attempt's outcome.
package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/piercehub/reminder-service/internal/cache"
	"github.com/piercehub/reminder-service/internal/model"
	"github.com/piercehub/reminder-service/internal/notify"
	"github.com/piercehub/reminder-service/internal/queue"
	"github.com/piercehub/reminder-service/internal/repo"
)

const notificationTitle = "Piercing Aftercare Reminder"

type Processor struct {
	reminders repo.ReminderRepository
	customers repo.CustomerRepository
	failed    repo.FailedJobRepository
	notifier  notify.Notifier
	tokens    cache.TokenCache // may be nil

	now func() time.Time
}

func NewProcessor(
	reminders repo.ReminderRepository,
	customers repo.CustomerRepository,
	failed repo.FailedJobRepository,
	notifier notify.Notifier,
	tokens cache.TokenCache,
) *Processor {
	return &Processor{
		reminders: reminders,
		customers: customers,
		failed:    failed,
		notifier:  notifier,
		tokens:    tokens,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes one delivery attempt. It is the queue's Handler: a nil
// return completes the job, an error triggers the retry policy, and
// queue.Permanent short-circuits retries.
func (p *Processor) Handle(ctx context.Context, job queue.Job) error {
	var payload model.ReminderJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		err = fmt.Errorf("decode reminder payload: %w", err)
		p.recordFailure(ctx, job, nil, err)
		return queue.Permanent(err)
	}

	slog.Info("processing reminder", "reminder_id", payload.ReminderID, "attempt", job.Attempts+1)

	rem, err := p.reminders.FindByID(ctx, payload.ReminderID)
	if errors.Is(err, repo.ErrNotFound) {
		// The record was deleted out-of-band; retrying cannot help.
		err = fmt.Errorf("reminder %s: %w", payload.ReminderID, repo.ErrNotFound)
		p.recordFailure(ctx, job, &payload, err)
		return queue.Permanent(err)
	}
	if err != nil {
		return fmt.Errorf("load reminder %s: %w", payload.ReminderID, err)
	}

	if rem.Status == model.ReminderSent {
		// At-least-once queue semantics can re-deliver; never send twice.
		slog.Info("reminder already sent, skipping", "reminder_id", rem.ID)
		return nil
	}

	now := p.now()
	if err := p.reminders.RecordAttempt(ctx, rem.ID, now); err != nil {
		return fmt.Errorf("record attempt for %s: %w", rem.ID, err)
	}

	token, err := p.lookupToken(ctx, payload.CustomerID)
	if err != nil {
		// Failing to determine the channel is not the same as having none;
		// let the retry policy take another look.
		return fmt.Errorf("resolve device token for %s: %w", payload.CustomerID, err)
	}
	if token == "" {
		return p.markSoftSent(ctx, rem, "customer has no registered device token")
	}

	msgID, err := p.notifier.Deliver(ctx, token, notify.Notification{
		Title: notificationTitle,
		Body:  payload.Message,
	}, map[string]string{
		"reminderId": rem.ID,
		"qrCodeId":   rem.QRCodeID,
	})
	if errors.Is(err, notify.ErrUnavailable) {
		return p.markSoftSent(ctx, rem, "push provider not configured")
	}
	if err != nil {
		if merr := p.reminders.MarkFailed(ctx, rem.ID, err.Error()); merr != nil {
			slog.Error("mark reminder failed", "reminder_id", rem.ID, "error", merr)
		}

		if job.Attempts+1 >= job.MaxAttempts {
			p.recordFailure(ctx, job, &payload, err)
		}
		return fmt.Errorf("deliver reminder %s: %w", rem.ID, err)
	}

	if err := p.reminders.MarkSent(ctx, rem.ID, p.now(), nil); err != nil {
		return fmt.Errorf("mark reminder sent %s: %w", rem.ID, err)
	}
	// Close the loop on a manual retry that just succeeded.
	if err := p.failed.ResolveRetrying(ctx, rem.ID); err != nil {
		slog.Error("resolve retrying failed job", "reminder_id", rem.ID, "error", err)
	}

	slog.Info("reminder delivered", "reminder_id", rem.ID, "message_id", msgID)
	return nil
}

// markSoftSent completes a reminder that has no delivery channel. Missing
// capability or token must not block the pipeline or burn retries.
func (p *Processor) markSoftSent(ctx context.Context, rem *model.ScheduledReminder, note string) error {
	slog.Warn("reminder completed without delivery", "reminder_id", rem.ID, "reason", note)
	if err := p.reminders.MarkSent(ctx, rem.ID, p.now(), &note); err != nil {
		return fmt.Errorf("mark reminder sent %s: %w", rem.ID, err)
	}
	return nil
}

// lookupToken resolves the customer's device token, cache first. A missing
// customer or empty token returns "", nil (no channel); any other lookup
// failure is returned so the attempt can be retried.
func (p *Processor) lookupToken(ctx context.Context, customerID string) (string, error) {
	if p.tokens != nil {
		if token, ok, err := p.tokens.GetToken(ctx, customerID); err == nil && ok {
			return token, nil
		} else if err != nil {
			slog.Warn("token cache read failed", "customer_id", customerID, "error", err)
		}
	}

	customer, err := p.customers.FindByID(ctx, customerID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if customer.FCMToken == nil || *customer.FCMToken == "" {
		return "", nil
	}

	if p.tokens != nil {
		if err := p.tokens.StoreToken(ctx, customerID, *customer.FCMToken); err != nil {
			slog.Warn("token cache write failed", "customer_id", customerID, "error", err)
		}
	}
	return *customer.FCMToken, nil
}

// recordFailure persists the durable failure artifact once a job is
// terminally failed, either by exhausting retries or by a permanent error.
func (p *Processor) recordFailure(ctx context.Context, job queue.Job, payload *model.ReminderJob, cause error) {
	fj := &model.FailedJob{
		ID:         uuid.NewString(),
		JobType:    model.JobTypeReminder,
		JobData:    job.Payload,
		Error:      cause.Error(),
		StackTrace: string(debug.Stack()),
		Attempts:   job.Attempts + 1,
		FailedAt:   p.now(),
		Status:     model.FailedJobFailed,
	}
	if payload != nil {
		id := payload.ReminderID
		fj.ReminderID = &id
	}

	if err := p.failed.Create(ctx, fj); err != nil {
		slog.Error("persist failed job record", "job_id", job.ID, "error", err)
		return
	}
	slog.Error("reminder job recorded as terminally failed",
		"job_id", job.ID, "failed_job_id", fj.ID, "attempts", fj.Attempts, "error", cause)
}
