package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type Config struct {
	HTTPAddr     string
	PostgresDSN  string
	RedisAddr    string   // empty: process-local cache
	KafkaBrokers []string // empty: events are dropped
	ServiceName  string

	LedgerBackend   string
	LockTimeout     time.Duration
	ConsumerGroup   string
	ConsumerWorkers int
	OtelEndpoint    string // empty: tracing stays a no-op
	OtelInsecure    bool
	LogEnv          string // "production" or "development"
}

// Load reads the environment. Malformed numbers and durations are reported
// rather than silently replaced by defaults.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":8081"),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		KafkaBrokers:  splitCSV(os.Getenv("KAFKA_BROKERS")),
		ServiceName:   getenv("SERVICE_NAME", "stockledger"),
		LedgerBackend: strings.ToLower(getenv("LEDGER_BACKEND", BackendMemory)),
		ConsumerGroup: getenv("CONSUMER_GROUP", "stockledger-restock"),
		OtelEndpoint:  os.Getenv("OTEL_ENDPOINT"),
		OtelInsecure:  os.Getenv("OTEL_INSECURE") == "true",
		LogEnv:        getenv("LOG_ENV", "production"),
	}

	d, err := time.ParseDuration(getenv("LOCK_TIMEOUT", "2s"))
	if err != nil {
		errs = append(errs, fmt.Errorf("LOCK_TIMEOUT: %w", err))
	}
	cfg.LockTimeout = d

	n, err := strconv.Atoi(getenv("CONSUMER_WORKERS", "8"))
	if err != nil {
		errs = append(errs, fmt.Errorf("CONSUMER_WORKERS: %w", err))
	}
	cfg.ConsumerWorkers = n

	return cfg, errors.Join(errs...)
}

// Validate rejects combinations the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.LedgerBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("LEDGER_BACKEND=postgres requires POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("LEDGER_BACKEND %q: want memory or postgres", c.LedgerBackend))
	}
	if c.LockTimeout <= 0 {
		errs = append(errs, fmt.Errorf("LOCK_TIMEOUT must be positive, got %s", c.LockTimeout))
	}
	if c.ConsumerWorkers <= 0 {
		errs = append(errs, fmt.Errorf("CONSUMER_WORKERS must be positive, got %d", c.ConsumerWorkers))
	}
	return errors.Join(errs...)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
