package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore persists work items in the work_items table. Claiming uses
// FOR UPDATE SKIP LOCKED so multiple service instances can share one queue
// without double-claiming.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Enqueue(ctx context.Context, job Job) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var state string
	err = tx.QueryRowContext(ctx, `
		SELECT state FROM work_items WHERE id = $1 FOR UPDATE
	`, job.ID).Scan(&state)

	now := time.Now().UTC()

	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO work_items (id, payload, state, visible_at, attempts, max_attempts, enqueued_at, updated_at)
			VALUES ($1, $2, 'waiting', $3, 0, $4, $5, $5)
		`, job.ID, job.Payload, job.VisibleAt, job.MaxAttempts, now); err != nil {
			return err
		}
	case err != nil:
		return err
	case State(state) == StateCompleted || State(state) == StateFailed:
		// Resurrect the terminal row for a fresh run (manual retry).
		if _, err := tx.ExecContext(ctx, `
			UPDATE work_items
			SET payload = $2, state = 'waiting', visible_at = $3, attempts = 0,
			    max_attempts = $4, last_error = NULL, claimed_at = NULL,
			    finished_at = NULL, enqueued_at = $5, updated_at = $5
			WHERE id = $1
		`, job.ID, job.Payload, job.VisibleAt, job.MaxAttempts, now); err != nil {
			return err
		}
	default:
		return ErrDuplicateJob
	}

	return tx.Commit()
}

func (s *PostgresStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		WITH due AS (
			SELECT id FROM work_items
			WHERE state = 'waiting' AND visible_at <= $1
			ORDER BY visible_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		)
		UPDATE work_items w
		SET state = 'active', claimed_at = $1, updated_at = $1
		FROM due
		WHERE w.id = due.id
		RETURNING w.id, w.payload, w.visible_at, w.attempts, w.max_attempts,
		          COALESCE(w.last_error, ''), w.enqueued_at
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j := Job{State: StateActive}
		if err := rows.Scan(&j.ID, &j.Payload, &j.VisibleAt, &j.Attempts,
			&j.MaxAttempts, &j.LastError, &j.EnqueuedAt); err != nil {
			return nil, err
		}
		at := now
		j.ClaimedAt = &at
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) RequeueStale(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE work_items
		SET state = 'waiting', claimed_at = NULL, updated_at = now()
		WHERE state = 'active' AND claimed_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE work_items
		SET state = 'completed', attempts = attempts + 1, finished_at = $2, updated_at = $2
		WHERE id = $1
	`, id, now)
	return err
}

func (s *PostgresStore) MarkRetry(ctx context.Context, id string, attempts int, visibleAt time.Time, lastError string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE work_items
		SET state = 'waiting', attempts = $2, visible_at = $3, last_error = $4,
		    claimed_at = NULL, updated_at = $5
		WHERE id = $1
	`, id, attempts, visibleAt, lastError, now)
	return err
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id string, attempts int, lastError string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE work_items
		SET state = 'failed', attempts = $2, last_error = $3, finished_at = $4, updated_at = $4
		WHERE id = $1
	`, id, attempts, lastError, now)
	return err
}

func (s *PostgresStore) HasLive(ctx context.Context, id string) (bool, error) {
	var live bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM work_items
			WHERE id = $1 AND state IN ('waiting', 'active')
		)
	`, id).Scan(&live)
	return live, err
}

func (s *PostgresStore) Counts(ctx context.Context, now time.Time) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			count(*) FILTER (WHERE state = 'waiting' AND visible_at <= $1),
			count(*) FILTER (WHERE state = 'waiting' AND visible_at > $1),
			count(*) FILTER (WHERE state = 'active'),
			count(*) FILTER (WHERE state = 'completed'),
			count(*) FILTER (WHERE state = 'failed')
		FROM work_items
	`, now).Scan(&c.Waiting, &c.Delayed, &c.Active, &c.Completed, &c.Failed)
	if err != nil {
		return Counts{}, fmt.Errorf("queue counts: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Trim(ctx context.Context, state State, keep int, maxAge time.Duration, now time.Time) (int, error) {
	removed := 0

	if keep > 0 {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM work_items
			WHERE id IN (
				SELECT id FROM work_items
				WHERE state = $1
				ORDER BY finished_at DESC NULLS LAST
				OFFSET $2
			)
		`, string(state), keep)
		if err != nil {
			return removed, err
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}

	if maxAge > 0 {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM work_items
			WHERE state = $1 AND finished_at < $2
		`, string(state), now.Add(-maxAge))
		if err != nil {
			return removed, err
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}

	return removed, nil
}
