// Package dispatch turns scheduling requests into durable reminder records
// and delayed work items.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/piercehub/reminder-service/internal/model"
	"github.com/piercehub/reminder-service/internal/queue"
	"github.com/piercehub/reminder-service/internal/repo"
)

// JobQueue is the slice of the queue the dispatcher needs.
type JobQueue interface {
	Enqueue(ctx context.Context, id string, payload []byte, visibleAt time.Time) error
	HasLive(ctx context.Context, id string) (bool, error)
}

type Dispatcher struct {
	reminders repo.ReminderRepository
	customers repo.CustomerRepository
	codes     repo.CodeRepository
	queue     JobQueue

	sweepGrace time.Duration
	sweepBatch int

	now func() time.Time
}

func NewDispatcher(
	reminders repo.ReminderRepository,
	customers repo.CustomerRepository,
	codes repo.CodeRepository,
	q JobQueue,
	sweepGrace time.Duration,
	sweepBatch int,
) *Dispatcher {
	if sweepGrace <= 0 {
		sweepGrace = 5 * time.Minute
	}
	if sweepBatch <= 0 {
		sweepBatch = 100
	}
	return &Dispatcher{
		reminders:  reminders,
		customers:  customers,
		codes:      codes,
		queue:      q,
		sweepGrace: sweepGrace,
		sweepBatch: sweepBatch,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type ScheduleRequest struct {
	StudioID     string
	CustomerID   string
	QRCodeID     string
	Message      string
	ScheduledFor time.Time
}

// Schedule verifies that the customer and QR code belong to the studio,
// creates the reminder record in pending state, and enqueues the work item.
// The two writes are not atomic; a crash in between leaves a pending record
// with no work item, which Reconcile picks up later.
func (d *Dispatcher) Schedule(ctx context.Context, req ScheduleRequest) (*model.ScheduledReminder, error) {
	if _, err := d.customers.FindForStudio(ctx, req.CustomerID, req.StudioID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("customer %s: %w", req.CustomerID, repo.ErrNotFound)
		}
		return nil, fmt.Errorf("look up customer: %w", err)
	}
	if _, err := d.codes.FindForStudio(ctx, req.QRCodeID, req.StudioID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("qr code %s: %w", req.QRCodeID, repo.ErrNotFound)
		}
		return nil, fmt.Errorf("look up qr code: %w", err)
	}

	now := d.now()
	rem := &model.ScheduledReminder{
		ID:           uuid.NewString(),
		StudioID:     req.StudioID,
		CustomerID:   req.CustomerID,
		QRCodeID:     req.QRCodeID,
		Message:      req.Message,
		ScheduledFor: req.ScheduledFor.UTC(),
		Status:       model.ReminderPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := d.reminders.Create(ctx, rem); err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}

	if err := d.enqueue(ctx, rem); err != nil {
		return nil, err
	}

	slog.Info("reminder scheduled",
		"reminder_id", rem.ID,
		"studio_id", rem.StudioID,
		"customer_id", rem.CustomerID,
		"scheduled_for", rem.ScheduledFor,
	)
	return rem, nil
}

// Reconcile re-enqueues pending reminders older than the grace period that
// have no live work item, covering the crash window between create and
// enqueue. Returns how many were re-enqueued.
func (d *Dispatcher) Reconcile(ctx context.Context) (int, error) {
	cutoff := d.now().Add(-d.sweepGrace)

	orphanCandidates, err := d.reminders.ListPendingBefore(ctx, cutoff, d.sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list pending reminders: %w", err)
	}

	requeued := 0
	for i := range orphanCandidates {
		rem := &orphanCandidates[i]

		live, err := d.queue.HasLive(ctx, rem.ID)
		if err != nil {
			return requeued, fmt.Errorf("check live job %s: %w", rem.ID, err)
		}
		if live {
			continue
		}

		if err := d.enqueue(ctx, rem); err != nil {
			return requeued, err
		}
		requeued++
		slog.Warn("re-enqueued orphaned reminder", "reminder_id", rem.ID, "scheduled_for", rem.ScheduledFor)
	}
	return requeued, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, rem *model.ScheduledReminder) error {
	payload, err := json.Marshal(model.ReminderJob{
		ReminderID: rem.ID,
		CustomerID: rem.CustomerID,
		Message:    rem.Message,
	})
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}

	err = d.queue.Enqueue(ctx, rem.ID, payload, rem.ScheduledFor)
	if errors.Is(err, queue.ErrDuplicateJob) {
		// Double-scheduling the same reminder must never produce two
		// deliveries; the existing job wins.
		return nil
	}
	return err
}
