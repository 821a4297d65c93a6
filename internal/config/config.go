package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the circulation engine.
type Config struct {
	Port     string
	LogLevel slog.Level

	Firebase FirebaseConfig
	Redis    RedisConfig
	Outbox   OutboxConfig
	Ledger   LedgerConfig
	Workers  WorkersConfig

	Observability ObservabilityConfig
}

// FirebaseConfig selects the credentials used to reach Firestore.
type FirebaseConfig struct {
	CredentialsPath string
	CredentialsJSON string
	ProjectID       string
	EmulatorHost    string
}

// RedisConfig configures the fast-store client.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	PoolTimeout  time.Duration
}

// OutboxConfig configures retries, polling and cleanup of outbox tasks.
type OutboxConfig struct {
	MaxRetries        int
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
	CleanupCron       string
	PollInterval      time.Duration
	StuckAfter        time.Duration
	StuckRetryDelay   time.Duration
	Retention         time.Duration
}

// LedgerConfig holds the reservation and loan rules.
type LedgerConfig struct {
	ReservationTTL        time.Duration
	LoanTTL               time.Duration
	MaxActiveReservations int
}

// WorkersConfig configures sweepers and stream relays.
type WorkersConfig struct {
	SweepInterval     time.Duration
	SweepBatch        int
	RelayBatchSize    int
	RelayPollInterval time.Duration
	RelayReclaimIdle  time.Duration
}

// ObservabilityConfig configures metric export. An empty endpoint disables export.
type ObservabilityConfig struct {
	ServiceName     string
	OTLPEndpoint    string
	MetricsInterval time.Duration
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: p.level("LOG_LEVEL", slog.LevelInfo),
		Firebase: FirebaseConfig{
			CredentialsPath: os.Getenv("FIREBASE_CREDENTIALS_PATH"),
			CredentialsJSON: os.Getenv("FIREBASE_CREDENTIALS_JSON"),
			ProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
			EmulatorHost:    os.Getenv("FIRESTORE_EMULATOR_HOST"),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     os.Getenv("REDIS_PASSWORD"),
			DB:           p.integer("REDIS_DB", 0),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 2*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 2*time.Second),
			PoolSize:     p.integer("REDIS_POOL_SIZE", 20),
			PoolTimeout:  p.duration("REDIS_POOL_TIMEOUT", 3*time.Second),
		},
		Outbox: OutboxConfig{
			MaxRetries:        p.integer("OUTBOX_MAX_RETRIES", 5),
			InitialRetryDelay: p.seconds("OUTBOX_INITIAL_RETRY_DELAY", 1),
			MaxRetryDelay:     p.seconds("OUTBOX_MAX_RETRY_DELAY", 3600),
			CleanupCron:       getEnv("OUTBOX_CLEANUP_CRON", "0 0 * * * *"),
			PollInterval:      p.duration("OUTBOX_POLL_INTERVAL", 5*time.Second),
			StuckAfter:        p.duration("OUTBOX_STUCK_AFTER", 5*time.Minute),
			StuckRetryDelay:   p.duration("OUTBOX_STUCK_RETRY_DELAY", time.Minute),
			Retention:         p.duration("OUTBOX_RETENTION", 7*24*time.Hour),
		},
		Ledger: LedgerConfig{
			ReservationTTL:        p.duration("RESERVATION_TTL", 3*24*time.Hour),
			LoanTTL:               p.duration("LOAN_TTL", 30*24*time.Hour),
			MaxActiveReservations: p.integer("MAX_ACTIVE_RESERVATIONS", 5),
		},
		Workers: WorkersConfig{
			SweepInterval:     p.duration("SWEEP_INTERVAL", 5*time.Second),
			SweepBatch:        p.integer("SWEEP_BATCH", 100),
			RelayBatchSize:    p.integer("RELAY_BATCH_SIZE", 10),
			RelayPollInterval: p.duration("RELAY_POLL_INTERVAL", 5*time.Second),
			RelayReclaimIdle:  p.duration("RELAY_RECLAIM_IDLE", time.Minute),
		},
		Observability: ObservabilityConfig{
			ServiceName:     getEnv("OTEL_SERVICE_NAME", "library-circulation"),
			OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			MetricsInterval: p.duration("OTEL_METRIC_EXPORT_INTERVAL", 30*time.Second),
		},
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Outbox.MaxRetries < 1:
		return fmt.Errorf("OUTBOX_MAX_RETRIES must be at least 1")
	case c.Outbox.InitialRetryDelay <= 0:
		return fmt.Errorf("OUTBOX_INITIAL_RETRY_DELAY must be positive")
	case c.Outbox.MaxRetryDelay < c.Outbox.InitialRetryDelay:
		return fmt.Errorf("OUTBOX_MAX_RETRY_DELAY must not be below the initial delay")
	case c.Ledger.MaxActiveReservations < 1:
		return fmt.Errorf("MAX_ACTIVE_RESERVATIONS must be at least 1")
	case c.Redis.PoolSize < 1:
		return fmt.Errorf("REDIS_POOL_SIZE must be at least 1")
	case c.Outbox.PollInterval <= 0, c.Workers.SweepInterval <= 0, c.Workers.RelayPollInterval <= 0:
		return fmt.Errorf("OUTBOX_POLL_INTERVAL, SWEEP_INTERVAL and RELAY_POLL_INTERVAL must be positive")
	case c.Workers.SweepBatch < 1 || c.Workers.RelayBatchSize < 1:
		return fmt.Errorf("SWEEP_BATCH and RELAY_BATCH_SIZE must be at least 1")
	case c.Observability.MetricsInterval <= 0:
		return fmt.Errorf("OTEL_METRIC_EXPORT_INTERVAL must be positive")
	}
	return nil
}

// getEnv returns the variable or fallback when it is unset or empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parser keeps the first conversion error so Load can report it once.
type parser struct {
	err error
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, raw, err)
	}
}

func (p *parser) integer(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) seconds(key string, fallback int) time.Duration {
	return time.Duration(p.integer(key, fallback)) * time.Second
}

func (p *parser) level(key string, fallback slog.Level) slog.Level {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(raw))); err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return lvl
}
