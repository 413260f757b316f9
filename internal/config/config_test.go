package config

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "POSTGRES_DSN", "REDIS_ADDR", "KAFKA_BROKERS", "LEDGER_BACKEND", "LOCK_TIMEOUT", "CONSUMER_WORKERS"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, BackendMemory, cfg.LedgerBackend)
	assert.Equal(t, 2*time.Second, cfg.LockTimeout)
	assert.Equal(t, 8, cfg.ConsumerWorkers)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("LEDGER_BACKEND", "Postgres")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/stock")
	t.Setenv("LOCK_TIMEOUT", "750ms")
	t.Setenv("CONSUMER_WORKERS", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, BackendPostgres, cfg.LedgerBackend)
	assert.Equal(t, 750*time.Millisecond, cfg.LockTimeout)
	assert.Equal(t, 3, cfg.ConsumerWorkers)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Malformed(t *testing.T) {
	t.Setenv("LOCK_TIMEOUT", "soon")
	t.Setenv("CONSUMER_WORKERS", "many")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOCK_TIMEOUT")
	assert.Contains(t, err.Error(), "CONSUMER_WORKERS")
}

func TestValidate(t *testing.T) {
	base := Config{LedgerBackend: BackendMemory, LockTimeout: time.Second, ConsumerWorkers: 1}
	require.NoError(t, base.Validate())

	cases := map[string]func(*Config){
		"postgres without dsn": func(c *Config) { c.LedgerBackend = BackendPostgres },
		"unknown backend":      func(c *Config) { c.LedgerBackend = "sqlite" },
		"zero timeout":         func(c *Config) { c.LockTimeout = 0 },
		"negative timeout":     func(c *Config) { c.LockTimeout = -time.Second },
		"no workers":           func(c *Config) { c.ConsumerWorkers = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
