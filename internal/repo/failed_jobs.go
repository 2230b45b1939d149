package repo

import (
	"context"
	"time"

	"github.com/piercehub/reminder-service/internal/model"
)

type FailedJobRepository interface {
	Create(ctx context.Context, fj *model.FailedJob) error
	FindByID(ctx context.Context, id string) (*model.FailedJob, error)

	// List returns a page of failed jobs, newest failure first, optionally
	// filtered by status, plus the total matching count.
	List(ctx context.Context, status model.FailedJobStatus, limit, offset int) ([]model.FailedJob, int, error)

	MarkRetrying(ctx context.Context, id string, at time.Time) error

	// ResolveRetrying marks any retrying record for the reminder as resolved.
	// A miss is not an error; most deliveries have no failed-job history.
	ResolveRetrying(ctx context.Context, reminderID string) error

	Delete(ctx context.Context, id string) error
}
