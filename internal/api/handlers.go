package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/piercehub/reminder-service/internal/dispatch"
	"github.com/piercehub/reminder-service/internal/model"
	"github.com/piercehub/reminder-service/internal/queue"
	"github.com/piercehub/reminder-service/internal/recovery"
	"github.com/piercehub/reminder-service/internal/repo"
)

const studioHeader = "X-Studio-ID"

// Scheduler accepts new reminder requests.
type Scheduler interface {
	Schedule(ctx context.Context, req dispatch.ScheduleRequest) (*model.ScheduledReminder, error)
}

// ReminderReader lists durable reminder records for a studio.
type ReminderReader interface {
	List(ctx context.Context, studioID string, status model.ReminderStatus, limit, offset int) ([]model.ScheduledReminder, int, error)
}

// QueueInspector reports live queue state.
type QueueInspector interface {
	Counts(ctx context.Context) (queue.Counts, error)
}

// FailedJobs is the recovery surface the admin endpoints call.
type FailedJobs interface {
	List(ctx context.Context, status model.FailedJobStatus, limit, offset int) ([]model.FailedJob, int, error)
	Retry(ctx context.Context, id string) (*model.FailedJob, error)
	Delete(ctx context.Context, id string) error
}

type Handler struct {
	scheduler Scheduler
	reminders ReminderReader
	metrics   QueueInspector
	failed    FailedJobs
	validate  *validator.Validate
}

func NewHandler(scheduler Scheduler, reminders ReminderReader, metrics QueueInspector, failed FailedJobs) *Handler {
	return &Handler{
		scheduler: scheduler,
		reminders: reminders,
		metrics:   metrics,
		failed:    failed,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type scheduleReminderRequest struct {
	CustomerID   string    `json:"customerId" validate:"required"`
	QRCodeID     string    `json:"qrCodeId" validate:"required"`
	Message      string    `json:"message" validate:"required,max=1000"`
	ScheduledFor time.Time `json:"scheduledFor" validate:"required"`
}

func (h *Handler) ScheduleReminder(w http.ResponseWriter, r *http.Request) {
	studioID := r.Header.Get(studioHeader)
	if studioID == "" {
		writeError(w, http.StatusUnauthorized, "missing "+studioHeader+" header")
		return
	}

	var req scheduleReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rem, err := h.scheduler.Schedule(r.Context(), dispatch.ScheduleRequest{
		StudioID:     studioID,
		CustomerID:   req.CustomerID,
		QRCodeID:     req.QRCodeID,
		Message:      req.Message,
		ScheduledFor: req.ScheduledFor,
	})
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, rem)
}

func (h *Handler) ListReminders(w http.ResponseWriter, r *http.Request) {
	studioID := r.Header.Get(studioHeader)
	if studioID == "" {
		writeError(w, http.StatusUnauthorized, "missing "+studioHeader+" header")
		return
	}

	status := model.ReminderStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.ReminderPending, model.ReminderSent, model.ReminderFailed:
	default:
		writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(string(status)))
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, total, err := h.reminders.List(r.Context(), studioID, status, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []model.ScheduledReminder{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"pagination": map[string]any{
			"total":  total,
			"limit":  limit,
			"offset": offset,
		},
	})
}

func (h *Handler) QueueMetrics(w http.ResponseWriter, r *http.Request) {
	counts, err := h.metrics.Counts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *Handler) ListFailedJobs(w http.ResponseWriter, r *http.Request) {
	status := model.FailedJobStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.FailedJobFailed, model.FailedJobRetrying, model.FailedJobResolved:
	default:
		writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(string(status)))
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, total, err := h.failed.List(r.Context(), status, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []model.FailedJob{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"pagination": map[string]any{
			"total":  total,
			"limit":  limit,
			"offset": offset,
		},
	})
}

func (h *Handler) RetryFailedJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	fj, err := h.failed.Retry(r.Context(), id)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, recovery.ErrInvalidState), errors.Is(err, recovery.ErrUnsupportedJobType):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, fj)
	}
}

func (h *Handler) DeleteFailedJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.failed.Delete(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
