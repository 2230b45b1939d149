package queue

import (
	"errors"
	"time"
)

type State string

const (
	// StateWaiting covers both queued-and-due and delayed jobs; whether a
	// waiting job counts as "delayed" depends on its visibility time.
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// ErrDuplicateJob reports that a live job with the same identity already
// exists. Callers treat it as an idempotent no-op, not a hard failure.
var ErrDuplicateJob = errors.New("queue: duplicate job id")

// Job is a unit of delayed work. Its ID doubles as the job identity: at most
// one live job per ID exists at any time.
type Job struct {
	ID          string
	Payload     []byte
	State       State
	VisibleAt   time.Time
	Attempts    int // attempts completed before the current one
	MaxAttempts int
	LastError   string
	EnqueuedAt  time.Time
	ClaimedAt   *time.Time
	FinishedAt  *time.Time
	UpdatedAt   time.Time
}

// terminal reports whether the job has left the live part of the state
// machine. Terminal rows may be resurrected by a fresh enqueue (manual retry).
func (j Job) terminal() bool {
	return j.State == StateCompleted || j.State == StateFailed
}

// Counts is a point-in-time snapshot of queue depth per state.
type Counts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the queue fails the job immediately instead of
// scheduling further retries.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
