package repo

import (
	"context"

	"github.com/piercehub/reminder-service/internal/model"
)

type CustomerRepository interface {
	// FindForStudio enforces tenant isolation: a customer belonging to a
	// different studio is reported as ErrNotFound.
	FindForStudio(ctx context.Context, id, studioID string) (*model.Customer, error)

	// FindByID is the processor-side lookup; by the time a job executes the
	// tenant check has already happened at scheduling.
	FindByID(ctx context.Context, id string) (*model.Customer, error)
}

type CodeRepository interface {
	FindForStudio(ctx context.Context, id, studioID string) (*model.QRCode, error)
}
