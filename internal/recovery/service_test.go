package recovery

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/piercehub/reminder-service/internal/model"
	"github.com/piercehub/reminder-service/internal/queue"
	"github.com/piercehub/reminder-service/internal/repo"
)

type fakeFailedRepo struct {
	jobs     map[string]*model.FailedJob
	retrying []string
	deleted  []string
}

var _ repo.FailedJobRepository = (*fakeFailedRepo)(nil)

func (f *fakeFailedRepo) Create(_ context.Context, fj *model.FailedJob) error {
	f.jobs[fj.ID] = fj
	return nil
}

func (f *fakeFailedRepo) FindByID(_ context.Context, id string) (*model.FailedJob, error) {
	fj, ok := f.jobs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *fj
	return &cp, nil
}

func (f *fakeFailedRepo) List(_ context.Context, status model.FailedJobStatus, limit, offset int) ([]model.FailedJob, int, error) {
	var out []model.FailedJob
	for _, fj := range f.jobs {
		if status != "" && fj.Status != status {
			continue
		}
		out = append(out, *fj)
	}
	return out, len(out), nil
}

func (f *fakeFailedRepo) MarkRetrying(_ context.Context, id string, at time.Time) error {
	fj, ok := f.jobs[id]
	if !ok {
		return repo.ErrNotFound
	}
	fj.Status = model.FailedJobRetrying
	t := at
	fj.RetriedAt = &t
	f.retrying = append(f.retrying, id)
	return nil
}

func (f *fakeFailedRepo) ResolveRetrying(context.Context, string) error { return nil }

func (f *fakeFailedRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.jobs[id]; !ok {
		return repo.ErrNotFound
	}
	delete(f.jobs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeReminderRepo struct {
	byID  map[string]*model.ScheduledReminder
	reset []string
}

var _ repo.ReminderRepository = (*fakeReminderRepo)(nil)

func (f *fakeReminderRepo) Create(_ context.Context, rem *model.ScheduledReminder) error {
	f.byID[rem.ID] = rem
	return nil
}

func (f *fakeReminderRepo) FindByID(_ context.Context, id string) (*model.ScheduledReminder, error) {
	rem, ok := f.byID[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return rem, nil
}

func (f *fakeReminderRepo) List(context.Context, string, model.ReminderStatus, int, int) ([]model.ScheduledReminder, int, error) {
	return nil, 0, nil
}

func (f *fakeReminderRepo) RecordAttempt(context.Context, string, time.Time) error { return nil }

func (f *fakeReminderRepo) MarkSent(context.Context, string, time.Time, *string) error { return nil }

func (f *fakeReminderRepo) MarkFailed(context.Context, string, string) error { return nil }

func (f *fakeReminderRepo) ResetPending(_ context.Context, id string) error {
	rem, ok := f.byID[id]
	if !ok {
		return repo.ErrNotFound
	}
	rem.Status = model.ReminderPending
	rem.Error = nil
	f.reset = append(f.reset, id)
	return nil
}

func (f *fakeReminderRepo) ListPendingBefore(context.Context, time.Time, int) ([]model.ScheduledReminder, error) {
	return nil, nil
}

type fakeEnqueuer struct {
	ids []string
	err error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, id string, _ []byte, _ time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, id)
	return nil
}

func failedReminderJob(t *testing.T, id, reminderID string, status model.FailedJobStatus) *model.FailedJob {
	t.Helper()

	data, err := json.Marshal(model.ReminderJob{ReminderID: reminderID, CustomerID: "cust-1", Message: "m"})
	require.NoError(t, err)

	return &model.FailedJob{
		ID:       id,
		JobType:  model.JobTypeReminder,
		JobData:  data,
		Error:    "provider down",
		Attempts: 3,
		FailedAt: time.Now().UTC(),
		Status:   status,
	}
}

func newFixture(t *testing.T) (*fakeFailedRepo, *fakeReminderRepo, *fakeEnqueuer, *Service) {
	t.Helper()

	failed := &fakeFailedRepo{jobs: map[string]*model.FailedJob{}}
	reminders := &fakeReminderRepo{byID: map[string]*model.ScheduledReminder{
		"rem-1": {ID: "rem-1", Status: model.ReminderFailed},
	}}
	q := &fakeEnqueuer{}
	return failed, reminders, q, NewService(failed, reminders, q)
}

func TestService_Retry_ReplaysJob(t *testing.T) {
	t.Parallel()

	failed, reminders, q, svc := newFixture(t)
	failed.jobs["fj-1"] = failedReminderJob(t, "fj-1", "rem-1", model.FailedJobFailed)

	fj, err := svc.Retry(context.Background(), "fj-1")
	require.NoError(t, err)
	require.Equal(t, model.FailedJobRetrying, fj.Status)
	require.NotNil(t, fj.RetriedAt)

	require.Equal(t, []string{"rem-1"}, reminders.reset, "reminder must go back to pending")
	require.Equal(t, []string{"rem-1"}, q.ids, "replay must enqueue under the reminder id")
	require.Equal(t, []string{"fj-1"}, failed.retrying)
	require.Equal(t, model.ReminderPending, reminders.byID["rem-1"].Status)
}

func TestService_Retry_NotFound(t *testing.T) {
	t.Parallel()

	_, _, _, svc := newFixture(t)

	_, err := svc.Retry(context.Background(), "fj-missing")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestService_Retry_ResolvedIsInvalid(t *testing.T) {
	t.Parallel()

	failed, _, q, svc := newFixture(t)
	failed.jobs["fj-1"] = failedReminderJob(t, "fj-1", "rem-1", model.FailedJobResolved)

	_, err := svc.Retry(context.Background(), "fj-1")
	require.ErrorIs(t, err, ErrInvalidState)
	require.Empty(t, q.ids)
}

func TestService_Retry_RetryingIsAllowed(t *testing.T) {
	t.Parallel()

	failed, _, q, svc := newFixture(t)
	failed.jobs["fj-1"] = failedReminderJob(t, "fj-1", "rem-1", model.FailedJobRetrying)

	_, err := svc.Retry(context.Background(), "fj-1")
	require.NoError(t, err, "a stuck retrying job may be retried again")
	require.Len(t, q.ids, 1)
}

func TestService_Retry_UnsupportedJobType(t *testing.T) {
	t.Parallel()

	failed, _, q, svc := newFixture(t)
	fj := failedReminderJob(t, "fj-1", "rem-1", model.FailedJobFailed)
	fj.JobType = "email"
	failed.jobs["fj-1"] = fj

	_, err := svc.Retry(context.Background(), "fj-1")
	require.ErrorIs(t, err, ErrUnsupportedJobType)
	require.Empty(t, q.ids)
}

func TestService_Retry_MissingReminder(t *testing.T) {
	t.Parallel()

	failed, _, q, svc := newFixture(t)
	failed.jobs["fj-1"] = failedReminderJob(t, "fj-1", "rem-gone", model.FailedJobFailed)

	_, err := svc.Retry(context.Background(), "fj-1")
	require.ErrorIs(t, err, repo.ErrNotFound)
	require.Empty(t, q.ids)
}

func TestService_Retry_DuplicateLiveJobTolerated(t *testing.T) {
	t.Parallel()

	failed, _, q, svc := newFixture(t)
	failed.jobs["fj-1"] = failedReminderJob(t, "fj-1", "rem-1", model.FailedJobFailed)
	q.err = queue.ErrDuplicateJob

	fj, err := svc.Retry(context.Background(), "fj-1")
	require.NoError(t, err, "an already-live job must not fail the retry request")
	require.Equal(t, model.FailedJobRetrying, fj.Status)
}

func TestService_Delete(t *testing.T) {
	t.Parallel()

	failed, _, _, svc := newFixture(t)
	failed.jobs["fj-1"] = failedReminderJob(t, "fj-1", "rem-1", model.FailedJobFailed)

	require.NoError(t, svc.Delete(context.Background(), "fj-1"))
	require.Equal(t, []string{"fj-1"}, failed.deleted)

	require.ErrorIs(t, svc.Delete(context.Background(), "fj-1"), repo.ErrNotFound)
}
