package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in tests and single-node
// development runs. State transitions match the Postgres store exactly.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Enqueue(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[job.ID]; ok {
		if !existing.terminal() {
			return ErrDuplicateJob
		}
		// Resurrect the terminal row: manual retry re-enters the machine.
	}

	job.State = StateWaiting
	job.Attempts = 0
	job.LastError = ""
	job.ClaimedAt = nil
	job.FinishedAt = nil
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	job.UpdatedAt = job.EnqueuedAt

	stored := job
	s.jobs[job.ID] = &stored
	return nil
}

func (s *MemoryStore) ClaimDue(_ context.Context, now time.Time, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Job
	for _, j := range s.jobs {
		if j.State == StateWaiting && !j.VisibleAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].VisibleAt.Before(due[k].VisibleAt) })

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]Job, 0, len(due))
	for _, j := range due {
		j.State = StateActive
		at := now
		j.ClaimedAt = &at
		j.UpdatedAt = now
		claimed = append(claimed, *j)
	}
	return claimed, nil
}

func (s *MemoryStore) RequeueStale(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, j := range s.jobs {
		if j.State == StateActive && j.ClaimedAt != nil && j.ClaimedAt.Before(cutoff) {
			j.State = StateWaiting
			j.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) MarkCompleted(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	j.State = StateCompleted
	j.Attempts++
	at := now
	j.FinishedAt = &at
	j.UpdatedAt = now
	return nil
}

func (s *MemoryStore) MarkRetry(_ context.Context, id string, attempts int, visibleAt time.Time, lastError string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	j.State = StateWaiting
	j.Attempts = attempts
	j.VisibleAt = visibleAt
	j.LastError = lastError
	j.ClaimedAt = nil
	j.UpdatedAt = now
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, id string, attempts int, lastError string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	j.State = StateFailed
	j.Attempts = attempts
	j.LastError = lastError
	at := now
	j.FinishedAt = &at
	j.UpdatedAt = now
	return nil
}

func (s *MemoryStore) HasLive(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	return ok && !j.terminal(), nil
}

func (s *MemoryStore) Counts(_ context.Context, now time.Time) (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c Counts
	for _, j := range s.jobs {
		switch j.State {
		case StateWaiting:
			if j.VisibleAt.After(now) {
				c.Delayed++
			} else {
				c.Waiting++
			}
		case StateActive:
			c.Active++
		case StateCompleted:
			c.Completed++
		case StateFailed:
			c.Failed++
		}
	}
	return c, nil
}

func (s *MemoryStore) Trim(_ context.Context, state State, keep int, maxAge time.Duration, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var terminal []*Job
	for _, j := range s.jobs {
		if j.State == state {
			terminal = append(terminal, j)
		}
	}
	// Newest finish first; trim from the tail.
	sort.Slice(terminal, func(i, k int) bool {
		return finishedAt(terminal[i]).After(finishedAt(terminal[k]))
	})

	removed := 0
	for i, j := range terminal {
		tooMany := keep > 0 && i >= keep
		tooOld := maxAge > 0 && finishedAt(j).Before(now.Add(-maxAge))
		if tooMany || tooOld {
			delete(s.jobs, j.ID)
			removed++
		}
	}
	return removed, nil
}

// Get returns a copy of the stored job, for tests.
func (s *MemoryStore) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

func finishedAt(j *Job) time.Time {
	if j.FinishedAt != nil {
		return *j.FinishedAt
	}
	return j.UpdatedAt
}
