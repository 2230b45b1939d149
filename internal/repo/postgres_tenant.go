package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/piercehub/reminder-service/internal/model"
)

type PostgresCustomerRepo struct {
	db *sql.DB
}

func NewPostgresCustomerRepo(db *sql.DB) *PostgresCustomerRepo {
	return &PostgresCustomerRepo{db: db}
}

var _ CustomerRepository = (*PostgresCustomerRepo)(nil)

func (r *PostgresCustomerRepo) FindForStudio(ctx context.Context, id, studioID string) (*model.Customer, error) {
	return r.find(ctx, `
		SELECT id, studio_id, name, email, fcm_token, created_at
		FROM customers
		WHERE id = $1 AND studio_id = $2
	`, id, studioID)
}

func (r *PostgresCustomerRepo) FindByID(ctx context.Context, id string) (*model.Customer, error) {
	return r.find(ctx, `
		SELECT id, studio_id, name, email, fcm_token, created_at
		FROM customers
		WHERE id = $1
	`, id)
}

func (r *PostgresCustomerRepo) find(ctx context.Context, query string, args ...any) (*model.Customer, error) {
	var c model.Customer
	var token sql.NullString

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&c.ID, &c.StudioID, &c.Name, &c.Email, &token, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if token.Valid {
		s := token.String
		c.FCMToken = &s
	}
	return &c, nil
}

type PostgresCodeRepo struct {
	db *sql.DB
}

func NewPostgresCodeRepo(db *sql.DB) *PostgresCodeRepo {
	return &PostgresCodeRepo{db: db}
}

var _ CodeRepository = (*PostgresCodeRepo)(nil)

func (r *PostgresCodeRepo) FindForStudio(ctx context.Context, id, studioID string) (*model.QRCode, error) {
	var qc model.QRCode
	err := r.db.QueryRowContext(ctx, `
		SELECT id, studio_id, code, piercing_type, created_at
		FROM qr_codes
		WHERE id = $1 AND studio_id = $2
	`, id, studioID).Scan(&qc.ID, &qc.StudioID, &qc.Code, &qc.PiercingType, &qc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &qc, nil
}
