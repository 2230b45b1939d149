package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/piercehub/reminder-service/internal/model"
)

type PostgresReminderRepo struct {
	db *sql.DB
}

func NewPostgresReminderRepo(db *sql.DB) *PostgresReminderRepo {
	return &PostgresReminderRepo{db: db}
}

var _ ReminderRepository = (*PostgresReminderRepo)(nil)

const reminderColumns = `id, studio_id, customer_id, qr_code_id, message, scheduled_for,
	status, attempts, last_attempt, sent_at, error, created_at, updated_at`

func (r *PostgresReminderRepo) Create(ctx context.Context, rem *model.ScheduledReminder) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scheduled_reminders
			(id, studio_id, customer_id, qr_code_id, message, scheduled_for, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $8)
	`, rem.ID, rem.StudioID, rem.CustomerID, rem.QRCodeID, rem.Message,
		rem.ScheduledFor, string(rem.Status), rem.CreatedAt)
	return err
}

func (r *PostgresReminderRepo) FindByID(ctx context.Context, id string) (*model.ScheduledReminder, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+reminderColumns+`
		FROM scheduled_reminders
		WHERE id = $1
	`, id)

	rem, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rem, nil
}

func (r *PostgresReminderRepo) List(ctx context.Context, studioID string, status model.ReminderStatus, limit, offset int) ([]model.ScheduledReminder, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	where := `WHERE studio_id = $1`
	args := []any{studioID}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, string(status))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM scheduled_reminders `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	n := len(args)
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT `+reminderColumns+`
		FROM scheduled_reminders %s
		ORDER BY scheduled_for DESC
		LIMIT $%d OFFSET $%d`, where, n-1, n),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.ScheduledReminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *rem)
	}
	return out, total, rows.Err()
}

func (r *PostgresReminderRepo) RecordAttempt(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_reminders
		SET attempts = attempts + 1, last_attempt = $2, updated_at = $2
		WHERE id = $1
	`, id, at)
	return err
}

func (r *PostgresReminderRepo) MarkSent(ctx context.Context, id string, at time.Time, note *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_reminders
		SET status = 'sent', sent_at = $2, error = $3, updated_at = $2
		WHERE id = $1
	`, id, at, note)
	return err
}

func (r *PostgresReminderRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_reminders
		SET status = 'failed', error = $2, updated_at = now()
		WHERE id = $1
	`, id, errMsg)
	return err
}

func (r *PostgresReminderRepo) ResetPending(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_reminders
		SET status = 'pending', error = NULL, updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresReminderRepo) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.ScheduledReminder, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+reminderColumns+`
		FROM scheduled_reminders
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ScheduledReminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rem)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*model.ScheduledReminder, error) {
	var rem model.ScheduledReminder
	var status string
	var lastAttempt, sentAt sql.NullTime
	var errText sql.NullString

	if err := row.Scan(
		&rem.ID,
		&rem.StudioID,
		&rem.CustomerID,
		&rem.QRCodeID,
		&rem.Message,
		&rem.ScheduledFor,
		&status,
		&rem.Attempts,
		&lastAttempt,
		&sentAt,
		&errText,
		&rem.CreatedAt,
		&rem.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rem.Status = model.ReminderStatus(status)
	if lastAttempt.Valid {
		t := lastAttempt.Time
		rem.LastAttempt = &t
	}
	if sentAt.Valid {
		t := sentAt.Time
		rem.SentAt = &t
	}
	if errText.Valid {
		s := errText.String
		rem.Error = &s
	}
	return &rem, nil
}
