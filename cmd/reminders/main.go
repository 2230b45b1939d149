package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/piercehub/reminder-service/internal/api"
	"github.com/piercehub/reminder-service/internal/cache"
	"github.com/piercehub/reminder-service/internal/config"
	"github.com/piercehub/reminder-service/internal/db"
	"github.com/piercehub/reminder-service/internal/dispatch"
	"github.com/piercehub/reminder-service/internal/notify"
	"github.com/piercehub/reminder-service/internal/process"
	"github.com/piercehub/reminder-service/internal/queue"
	"github.com/piercehub/reminder-service/internal/recovery"
	"github.com/piercehub/reminder-service/internal/repo"
	"github.com/piercehub/reminder-service/internal/scheduler"
)

func main() {
	_ = godotenv.Load()

	if err := run(); err != nil {
		slog.Error("service exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadAll()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	slog.Info("reminder service starting",
		"addr", cfg.Server.Address,
		"queue_concurrency", cfg.Queue.Concurrency,
		"redis", cfg.Redis.Enabled(),
		"push_configured", cfg.Notifier.Configured(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.Database.PostgresURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.EnsureSchema(ctx, conn); err != nil {
		return err
	}

	reminders := repo.NewPostgresReminderRepo(conn)
	customers := repo.NewPostgresCustomerRepo(conn)
	codes := repo.NewPostgresCodeRepo(conn)
	failedJobs := repo.NewPostgresFailedJobRepo(conn)

	var tokens cache.TokenCache
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		tokens = cache.NewRedisTokenCache(rdb, cfg.Redis.TTL)
	}

	notifier := notify.Disabled()
	if cfg.Notifier.Configured() {
		notifier = notify.NewFCMClient(cfg.Notifier.Endpoint, cfg.Notifier.ServerKey, cfg.Notifier.Timeout)
	}

	processor := process.NewProcessor(reminders, customers, failedJobs, notifier, tokens)

	store := queue.NewPostgresStore(conn)
	q, err := queue.New(store, processor.Handle, queue.Options{
		Concurrency:    cfg.Queue.Concurrency,
		RatePerSecond:  cfg.Queue.RatePerSecond,
		PollInterval:   cfg.Queue.PollInterval,
		AttemptTimeout: cfg.Queue.AttemptTimeout,
		StaleActive:    cfg.Queue.StaleActive,
		Policy: queue.RetryPolicy{
			MaxAttempts: cfg.Queue.MaxAttempts,
			BaseDelay:   cfg.Queue.BaseDelay,
			MaxDelay:    cfg.Queue.MaxDelay,
			Kind:        queue.BackoffExponential,
		},
		CompletedKeep:   cfg.Queue.CompletedKeep,
		CompletedMaxAge: cfg.Queue.CompletedMaxAge,
		FailedKeep:      cfg.Queue.FailedKeep,
	})
	if err != nil {
		return err
	}

	dispatcher := dispatch.NewDispatcher(reminders, customers, codes, q, cfg.Sweep.Grace, cfg.Sweep.Batch)
	recoverySvc := recovery.NewService(failedJobs, reminders, q)

	sweeper, err := scheduler.New("sweep", cfg.Sweep.Interval, func(ctx context.Context) {
		if _, err := dispatcher.Reconcile(ctx); err != nil {
			slog.Error("reconcile pass failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	retention, err := scheduler.New("retention", cfg.Queue.RetentionInterval, func(ctx context.Context) {
		if err := q.Trim(ctx); err != nil {
			slog.Error("retention pass failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	q.Start()
	sweeper.Start()
	retention.Start()
	defer func() {
		retention.Stop()
		sweeper.Stop()
		q.Stop()
	}()

	handler := api.NewHandler(dispatcher, reminders, q, recoverySvc)
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.Router(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("reminder service stopped")
	return nil
}
