package queue

import (
	"context"
	"time"
)

// Store is the persistence layer behind the queue's job state machine.
// Implementations must be safe for concurrent use.
type Store interface {
	// Enqueue inserts a new waiting job. If a live job with the same ID
	// exists it returns ErrDuplicateJob; a terminal row with the same ID is
	// reset and re-enters the state machine with zero attempts.
	Enqueue(ctx context.Context, job Job) error

	// ClaimDue atomically moves up to limit due waiting jobs to active and
	// returns them. A job is due when its visibility time is at or before now.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error)

	// RequeueStale returns active jobs claimed before the cutoff to waiting,
	// covering workers that died mid-attempt.
	RequeueStale(ctx context.Context, cutoff time.Time) (int, error)

	MarkCompleted(ctx context.Context, id string, now time.Time) error
	MarkRetry(ctx context.Context, id string, attempts int, visibleAt time.Time, lastError string, now time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, lastError string, now time.Time) error

	// HasLive reports whether a live (waiting or active) job exists for id.
	HasLive(ctx context.Context, id string) (bool, error)

	// Counts snapshots queue depth. Waiting jobs with future visibility are
	// reported as delayed.
	Counts(ctx context.Context, now time.Time) (Counts, error)

	// Trim removes terminal rows in the given state beyond the keep count
	// (newest first) or finished before now-maxAge. A zero maxAge disables
	// the age bound; keep <= 0 disables the count bound.
	Trim(ctx context.Context, state State, keep int, maxAge time.Duration, now time.Time) (int, error)
}
