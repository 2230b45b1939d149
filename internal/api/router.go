package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/v1/health", h.Health)

	r.Route("/v1/reminders", func(r chi.Router) {
		r.Post("/", h.ScheduleReminder)
		r.Get("/", h.ListReminders)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Get("/queue-metrics", h.QueueMetrics)
		r.Get("/failed-jobs", h.ListFailedJobs)
		r.Post("/failed-jobs/{id}/retry", h.RetryFailedJob)
		r.Delete("/failed-jobs/{id}", h.DeleteFailedJob)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
