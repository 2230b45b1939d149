// Package db builds the shared *sql.DB over the pgx stdlib driver and
// bootstraps the schema the pipeline needs.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(ctx context.Context, postgresURL string) (*sql.DB, error) {
	conn, err := sql.Open("pgx", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return conn, nil
}

// EnsureSchema creates the pipeline tables if they do not exist. Studio,
// customer and QR-code tables are owned by the wider application; they are
// included here so the service can run standalone in development.
func EnsureSchema(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS studios (
		id         text PRIMARY KEY,
		name       text NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id         text PRIMARY KEY,
		studio_id  text NOT NULL REFERENCES studios(id),
		name       text NOT NULL,
		email      text NOT NULL DEFAULT '',
		fcm_token  text,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS qr_codes (
		id            text PRIMARY KEY,
		studio_id     text NOT NULL REFERENCES studios(id),
		code          text NOT NULL,
		piercing_type text NOT NULL DEFAULT '',
		created_at    timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS scheduled_reminders (
		id            text PRIMARY KEY,
		studio_id     text NOT NULL,
		customer_id   text NOT NULL,
		qr_code_id    text NOT NULL,
		message       text NOT NULL,
		scheduled_for timestamptz NOT NULL,
		status        text NOT NULL DEFAULT 'pending',
		attempts      int NOT NULL DEFAULT 0,
		last_attempt  timestamptz,
		sent_at       timestamptz,
		error         text,
		created_at    timestamptz NOT NULL DEFAULT now(),
		updated_at    timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reminders_studio_scheduled
		ON scheduled_reminders (studio_id, scheduled_for DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_reminders_status_created
		ON scheduled_reminders (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS work_items (
		id           text PRIMARY KEY,
		payload      jsonb NOT NULL,
		state        text NOT NULL DEFAULT 'waiting',
		visible_at   timestamptz NOT NULL,
		attempts     int NOT NULL DEFAULT 0,
		max_attempts int NOT NULL DEFAULT 3,
		last_error   text,
		enqueued_at  timestamptz NOT NULL DEFAULT now(),
		claimed_at   timestamptz,
		finished_at  timestamptz,
		updated_at   timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_work_items_state_visible
		ON work_items (state, visible_at)`,
	`CREATE TABLE IF NOT EXISTS failed_jobs (
		id          text PRIMARY KEY,
		job_type    text NOT NULL,
		job_data    jsonb NOT NULL,
		reminder_id text,
		error       text NOT NULL,
		stack_trace text NOT NULL DEFAULT '',
		attempts    int NOT NULL DEFAULT 0,
		failed_at   timestamptz NOT NULL DEFAULT now(),
		status      text NOT NULL DEFAULT 'failed',
		retried_at  timestamptz
	)`,
	`CREATE INDEX IF NOT EXISTS idx_failed_jobs_status_failed_at
		ON failed_jobs (status, failed_at DESC)`,
}
