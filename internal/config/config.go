package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Notifier NotifierConfig
	Sweep    SweepConfig
}

type ServerConfig struct {
	Address string `envconfig:"SERVER_ADDRESS" default:":8080"`
}

type DatabaseConfig struct {
	PostgresURL string `envconfig:"POSTGRES_URL" required:"true"`
}

// RedisConfig is optional; an empty REDIS_ADDR disables the token cache.
type RedisConfig struct {
	Address  string        `envconfig:"REDIS_ADDR"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	TTL      time.Duration `envconfig:"REDIS_TTL" default:"24h"`
}

func (c RedisConfig) Enabled() bool { return c.Address != "" }

type QueueConfig struct {
	Concurrency    int           `envconfig:"QUEUE_CONCURRENCY" default:"5"`
	RatePerSecond  int           `envconfig:"QUEUE_RATE_PER_SECOND" default:"10"`
	MaxAttempts    int           `envconfig:"QUEUE_MAX_ATTEMPTS" default:"3"`
	BaseDelay      time.Duration `envconfig:"QUEUE_BASE_DELAY" default:"2s"`
	MaxDelay       time.Duration `envconfig:"QUEUE_MAX_DELAY" default:"10m"`
	PollInterval   time.Duration `envconfig:"QUEUE_POLL_INTERVAL" default:"1s"`
	AttemptTimeout time.Duration `envconfig:"QUEUE_ATTEMPT_TIMEOUT" default:"30s"`
	StaleActive    time.Duration `envconfig:"QUEUE_STALE_ACTIVE" default:"5m"`

	CompletedMaxAge   time.Duration `envconfig:"QUEUE_COMPLETED_MAX_AGE" default:"1h"`
	CompletedKeep     int           `envconfig:"QUEUE_COMPLETED_KEEP" default:"100"`
	FailedKeep        int           `envconfig:"QUEUE_FAILED_KEEP" default:"1000"`
	RetentionInterval time.Duration `envconfig:"QUEUE_RETENTION_INTERVAL" default:"10m"`
}

// NotifierConfig configures the FCM push capability. An empty server key
// leaves the capability unconfigured, which the processor treats as
// soft-success rather than failure.
type NotifierConfig struct {
	Endpoint  string        `envconfig:"FCM_ENDPOINT" default:"https://fcm.googleapis.com/fcm/send"`
	ServerKey string        `envconfig:"FCM_SERVER_KEY"`
	Timeout   time.Duration `envconfig:"FCM_TIMEOUT" default:"10s"`
}

func (c NotifierConfig) Configured() bool { return c.ServerKey != "" }

// SweepConfig drives the orphan reconciliation pass that re-enqueues pending
// reminders whose work item was lost between create and enqueue.
type SweepConfig struct {
	Interval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	Grace    time.Duration `envconfig:"SWEEP_GRACE" default:"5m"`
	Batch    int           `envconfig:"SWEEP_BATCH" default:"100"`
}

func LoadAll() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Queue.Concurrency <= 0 {
		return fmt.Errorf("QUEUE_CONCURRENCY must be > 0")
	}
	if cfg.Queue.RatePerSecond <= 0 {
		return fmt.Errorf("QUEUE_RATE_PER_SECOND must be > 0")
	}
	if cfg.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be > 0")
	}
	if cfg.Queue.BaseDelay <= 0 {
		return fmt.Errorf("QUEUE_BASE_DELAY must be > 0")
	}
	if cfg.Queue.PollInterval <= 0 {
		return fmt.Errorf("QUEUE_POLL_INTERVAL must be > 0")
	}
	if cfg.Sweep.Batch <= 0 {
		return fmt.Errorf("SWEEP_BATCH must be > 0")
	}
	return nil
}
