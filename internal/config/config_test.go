package config

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

var envMu sync.Mutex

func TestLoadAll_Defaults_NoRedis(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/db?sslmode=disable")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Database.PostgresURL != "postgres://u:p@localhost:5432/db?sslmode=disable" {
		t.Fatalf("unexpected PostgresURL: %q", cfg.Database.PostgresURL)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected Server.Address default: %q", cfg.Server.Address)
	}
	if cfg.Redis.Enabled() {
		t.Fatalf("expected Redis disabled when REDIS_ADDR not set")
	}
	if cfg.Notifier.Configured() {
		t.Fatalf("expected notifier unconfigured when FCM_SERVER_KEY not set")
	}

	if cfg.Queue.Concurrency != 5 {
		t.Fatalf("unexpected Concurrency default: %d", cfg.Queue.Concurrency)
	}
	if cfg.Queue.RatePerSecond != 10 {
		t.Fatalf("unexpected RatePerSecond default: %d", cfg.Queue.RatePerSecond)
	}
	if cfg.Queue.MaxAttempts != 3 {
		t.Fatalf("unexpected MaxAttempts default: %d", cfg.Queue.MaxAttempts)
	}
	if cfg.Queue.BaseDelay != 2*time.Second {
		t.Fatalf("unexpected BaseDelay default: %v", cfg.Queue.BaseDelay)
	}
	if cfg.Queue.AttemptTimeout != 30*time.Second {
		t.Fatalf("unexpected AttemptTimeout default: %v", cfg.Queue.AttemptTimeout)
	}
	if cfg.Queue.CompletedKeep != 100 || cfg.Queue.FailedKeep != 1000 {
		t.Fatalf("unexpected retention defaults: %d/%d", cfg.Queue.CompletedKeep, cfg.Queue.FailedKeep)
	}
	if cfg.Sweep.Grace != 5*time.Minute {
		t.Fatalf("unexpected Sweep.Grace default: %v", cfg.Sweep.Grace)
	}
}

func TestLoadAll_WithRedisAndNotifier(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/db")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_TTL", "1h")
	t.Setenv("FCM_SERVER_KEY", "key-123")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if !cfg.Redis.Enabled() {
		t.Fatalf("expected Redis enabled")
	}
	if cfg.Redis.TTL != time.Hour {
		t.Fatalf("unexpected Redis.TTL: %v", cfg.Redis.TTL)
	}
	if !cfg.Notifier.Configured() {
		t.Fatalf("expected notifier configured")
	}
	if cfg.Notifier.Endpoint != "https://fcm.googleapis.com/fcm/send" {
		t.Fatalf("unexpected FCM endpoint default: %q", cfg.Notifier.Endpoint)
	}
}

func TestLoadAll_MissingPostgresURL(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	if _, err := LoadAll(); err == nil {
		t.Fatalf("expected error when POSTGRES_URL missing")
	}
}

func TestLoadAll_RejectsInvalidQueueSettings(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/db")
	t.Setenv("QUEUE_MAX_ATTEMPTS", "0")

	if _, err := LoadAll(); err == nil {
		t.Fatalf("expected error for QUEUE_MAX_ATTEMPTS=0")
	}
}

func clearTestEnv(t *testing.T) {
	t.Helper()

	for _, kv := range os.Environ() {
		key := strings.SplitN(kv, "=", 2)[0]
		switch {
		case strings.HasPrefix(key, "QUEUE_"),
			strings.HasPrefix(key, "REDIS_"),
			strings.HasPrefix(key, "FCM_"),
			strings.HasPrefix(key, "SWEEP_"),
			key == "POSTGRES_URL",
			key == "SERVER_ADDRESS":
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}
