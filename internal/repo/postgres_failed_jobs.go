package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/piercehub/reminder-service/internal/model"
)

type PostgresFailedJobRepo struct {
	db *sql.DB
}

func NewPostgresFailedJobRepo(db *sql.DB) *PostgresFailedJobRepo {
	return &PostgresFailedJobRepo{db: db}
}

var _ FailedJobRepository = (*PostgresFailedJobRepo)(nil)

const failedJobColumns = `id, job_type, job_data, reminder_id, error, stack_trace,
	attempts, failed_at, status, retried_at`

func (r *PostgresFailedJobRepo) Create(ctx context.Context, fj *model.FailedJob) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO failed_jobs
			(id, job_type, job_data, reminder_id, error, stack_trace, attempts, failed_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, fj.ID, fj.JobType, fj.JobData, fj.ReminderID, fj.Error, fj.StackTrace,
		fj.Attempts, fj.FailedAt, string(fj.Status))
	return err
}

func (r *PostgresFailedJobRepo) FindByID(ctx context.Context, id string) (*model.FailedJob, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+failedJobColumns+`
		FROM failed_jobs
		WHERE id = $1
	`, id)

	fj, err := scanFailedJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fj, nil
}

func (r *PostgresFailedJobRepo) List(ctx context.Context, status model.FailedJobStatus, limit, offset int) ([]model.FailedJob, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	args := []any{}
	if status != "" {
		where = `WHERE status = $1`
		args = append(args, string(status))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM failed_jobs `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	n := len(args)
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT `+failedJobColumns+`
		FROM failed_jobs %s
		ORDER BY failed_at DESC
		LIMIT $%d OFFSET $%d`, where, n-1, n),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.FailedJob
	for rows.Next() {
		fj, err := scanFailedJob(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *fj)
	}
	return out, total, rows.Err()
}

func (r *PostgresFailedJobRepo) MarkRetrying(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE failed_jobs
		SET status = 'retrying', retried_at = $2
		WHERE id = $1
	`, id, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresFailedJobRepo) ResolveRetrying(ctx context.Context, reminderID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE failed_jobs
		SET status = 'resolved'
		WHERE reminder_id = $1 AND status = 'retrying'
	`, reminderID)
	return err
}

func (r *PostgresFailedJobRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM failed_jobs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanFailedJob(row rowScanner) (*model.FailedJob, error) {
	var fj model.FailedJob
	var status string
	var reminderID sql.NullString
	var retriedAt sql.NullTime

	if err := row.Scan(
		&fj.ID,
		&fj.JobType,
		&fj.JobData,
		&reminderID,
		&fj.Error,
		&fj.StackTrace,
		&fj.Attempts,
		&fj.FailedAt,
		&status,
		&retriedAt,
	); err != nil {
		return nil, err
	}

	fj.Status = model.FailedJobStatus(status)
	if reminderID.Valid {
		s := reminderID.String
		fj.ReminderID = &s
	}
	if retriedAt.Valid {
		t := retriedAt.Time
		fj.RetriedAt = &t
	}
	return &fj, nil
}
