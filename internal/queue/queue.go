// Package queue implements a durable delayed work queue: jobs keyed by a
// unique identity become visible at a target time, are executed by a bounded
// worker pool under a global rate cap, and are retried with exponential
// backoff until the policy is exhausted.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Handler executes one attempt of a job. Returning nil completes the job; an
// error schedules a retry per policy unless wrapped with Permanent.
type Handler func(ctx context.Context, job Job) error

type Options struct {
	Concurrency    int
	RatePerSecond  int
	PollInterval   time.Duration
	AttemptTimeout time.Duration
	StaleActive    time.Duration
	Policy         RetryPolicy

	CompletedKeep   int
	CompletedMaxAge time.Duration
	FailedKeep      int
}

func defaultOptions() Options {
	return Options{
		Concurrency:     5,
		RatePerSecond:   10,
		PollInterval:    time.Second,
		AttemptTimeout:  30 * time.Second,
		StaleActive:     5 * time.Minute,
		Policy:          DefaultRetryPolicy(),
		CompletedKeep:   100,
		CompletedMaxAge: time.Hour,
		FailedKeep:      1000,
	}
}

type Queue struct {
	store   Store
	handler Handler
	opts    Options
	limiter *rate.Limiter
	now     func() time.Time

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(store Store, handler Handler, opts Options) (*Queue, error) {
	if store == nil {
		return nil, errors.New("store must not be nil")
	}
	if handler == nil {
		return nil, errors.New("handler must not be nil")
	}

	def := defaultOptions()
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = def.RatePerSecond
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = def.AttemptTimeout
	}
	if opts.StaleActive <= 0 {
		opts.StaleActive = def.StaleActive
	}
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = def.Policy
	}
	if opts.CompletedKeep == 0 {
		opts.CompletedKeep = def.CompletedKeep
	}
	if opts.CompletedMaxAge == 0 {
		opts.CompletedMaxAge = def.CompletedMaxAge
	}
	if opts.FailedKeep == 0 {
		opts.FailedKeep = def.FailedKeep
	}

	return &Queue{
		store:   store,
		handler: handler,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.RatePerSecond),
		now:     func() time.Time { return time.Now().UTC() },
		done:    make(chan struct{}),
	}, nil
}

// Enqueue schedules a job for execution at visibleAt. A visibility time in
// the past is valid (manual retries land here); the job just becomes eligible
// immediately. Enqueueing an identity that is already live returns
// ErrDuplicateJob.
func (q *Queue) Enqueue(ctx context.Context, id string, payload []byte, visibleAt time.Time) error {
	if id == "" {
		return errors.New("job id must not be empty")
	}

	now := q.now()
	if visibleAt.Before(now) {
		slog.Warn("job visibility in the past, eligible immediately", "job_id", id, "visible_at", visibleAt)
	}

	err := q.store.Enqueue(ctx, Job{
		ID:          id,
		Payload:     payload,
		VisibleAt:   visibleAt.UTC(),
		MaxAttempts: q.opts.Policy.MaxAttempts,
		EnqueuedAt:  now,
	})
	if errors.Is(err, ErrDuplicateJob) {
		slog.Info("job already scheduled, ignoring", "job_id", id)
		return ErrDuplicateJob
	}
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", id, err)
	}

	slog.Info("job scheduled", "job_id", id, "visible_at", visibleAt.UTC())
	return nil
}

// HasLive reports whether a live work item exists for the identity. Used by
// the reconciliation sweep.
func (q *Queue) HasLive(ctx context.Context, id string) (bool, error) {
	return q.store.HasLive(ctx, id)
}

// Counts returns a point-in-time snapshot of queue depth.
func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	return q.store.Counts(ctx, q.now())
}

// Trim applies the retention policy: completed jobs are bounded by count and
// age, failed jobs by count only, mirroring the longer diagnostic window.
func (q *Queue) Trim(ctx context.Context) error {
	now := q.now()
	if _, err := q.store.Trim(ctx, StateCompleted, q.opts.CompletedKeep, q.opts.CompletedMaxAge, now); err != nil {
		return fmt.Errorf("trim completed: %w", err)
	}
	if _, err := q.store.Trim(ctx, StateFailed, q.opts.FailedKeep, 0, now); err != nil {
		return fmt.Errorf("trim failed: %w", err)
	}
	return nil
}

// Start launches the poller and worker pool. Returns false if already running.
func (q *Queue) Start() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.done = make(chan struct{})
	q.running.Store(true)

	jobs := make(chan Job)

	go func() {
		defer close(q.done)

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			defer close(jobs)
			q.pollLoop(gctx, jobs)
			return nil
		})

		for i := 0; i < q.opts.Concurrency; i++ {
			g.Go(func() error {
				q.workerLoop(gctx, jobs)
				return nil
			})
		}

		slog.Info("queue started",
			"concurrency", q.opts.Concurrency,
			"rate_per_second", q.opts.RatePerSecond,
			"max_attempts", q.opts.Policy.MaxAttempts,
			"base_delay", q.opts.Policy.BaseDelay.String(),
		)

		_ = g.Wait()
		slog.Info("queue stopped")
	}()

	return true
}

// Stop cancels the poller and waits for in-flight attempts to conclude.
// Returns false if not running.
func (q *Queue) Stop() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running.Load() {
		return false
	}

	q.cancel()
	<-q.done
	q.running.Store(false)
	return true
}

func (q *Queue) IsRunning() bool {
	return q.running.Load()
}

func (q *Queue) pollLoop(ctx context.Context, jobs chan<- Job) {
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		q.pollOnce(ctx, jobs)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (q *Queue) pollOnce(ctx context.Context, jobs chan<- Job) {
	now := q.now()

	if n, err := q.store.RequeueStale(ctx, now.Add(-q.opts.StaleActive)); err != nil {
		slog.Error("requeue stale jobs", "error", err)
	} else if n > 0 {
		slog.Warn("requeued stale active jobs", "count", n)
	}

	claimed, err := q.store.ClaimDue(ctx, now, q.opts.Concurrency)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("claim due jobs", "error", err)
		}
		return
	}

	for _, job := range claimed {
		select {
		case <-ctx.Done():
			return
		case jobs <- job:
		}
	}
}

func (q *Queue) workerLoop(ctx context.Context, jobs <-chan Job) {
	for job := range jobs {
		if err := q.limiter.Wait(ctx); err != nil {
			return
		}
		q.execute(ctx, job)
	}
}

func (q *Queue) execute(ctx context.Context, job Job) {
	attemptCtx, cancel := context.WithTimeout(ctx, q.opts.AttemptTimeout)
	err := q.runHandler(attemptCtx, job)
	cancel()

	// Persist the outcome even when shutdown is in progress.
	storeCtx, cancelStore := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStore()

	now := q.now()
	attempts := job.Attempts + 1

	switch {
	case err == nil:
		if serr := q.store.MarkCompleted(storeCtx, job.ID, now); serr != nil {
			slog.Error("mark job completed", "job_id", job.ID, "error", serr)
		}
		slog.Info("job completed", "job_id", job.ID, "attempts", attempts)

	case isPermanent(err) || attempts >= job.MaxAttempts:
		if serr := q.store.MarkFailed(storeCtx, job.ID, attempts, err.Error(), now); serr != nil {
			slog.Error("mark job failed", "job_id", job.ID, "error", serr)
		}
		slog.Error("job failed terminally", "job_id", job.ID, "attempts", attempts, "error", err)

	default:
		delay := q.opts.Policy.NextDelay(attempts)
		if serr := q.store.MarkRetry(storeCtx, job.ID, attempts, now.Add(delay), err.Error(), now); serr != nil {
			slog.Error("mark job for retry", "job_id", job.ID, "error", serr)
		}
		slog.Warn("job attempt failed, retry scheduled",
			"job_id", job.ID, "attempts", attempts, "delay", delay.String(), "error", err)
	}
}

func (q *Queue) runHandler(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return q.handler(ctx, job)
}
