package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	c, err := load(env(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, StorePostgres, c.Store)
	assert.Equal(t, LockLocal, c.LockBackend)
	assert.False(t, c.Migrate)
	assert.Equal(t, slog.LevelInfo, c.LogLevel)
	assert.Equal(t, 10*time.Second, c.ShutdownTimeout)
	assert.False(t, c.DeadlockDetect)
	assert.Equal(t, 30*time.Second, c.DeadlockTimeout)
	assert.GreaterOrEqual(t, c.MaxConns, 4)
	assert.LessOrEqual(t, c.MaxConns, 50)
}

func TestLoadOverrides(t *testing.T) {
	c, err := load(env(map[string]string{
		"LEDGER_HTTP_ADDR":         "127.0.0.1:9000",
		"LEDGER_STORE":             "Memory",
		"LEDGER_DB_MIGRATE":        "1",
		"LEDGER_DB_MAX_CONNS":      "7",
		"LEDGER_LOCK_BACKEND":      "redis",
		"LEDGER_REDIS_ADDR":        "redis:6379",
		"LEDGER_HTTP_MAX_INFLIGHT": "3",
		"LEDGER_LOG_LEVEL":         "debug",
		"LEDGER_SHUTDOWN_TIMEOUT":  "2",
		"LEDGER_DEADLOCK_DETECT":   "1",
		"LEDGER_DEADLOCK_TIMEOUT":  "5",
	}))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", c.HTTPAddr)
	assert.Equal(t, StoreMemory, c.Store)
	assert.True(t, c.Migrate)
	assert.Equal(t, 7, c.MaxConns)
	assert.Equal(t, LockRedis, c.LockBackend)
	assert.Equal(t, "redis:6379", c.RedisAddr)
	assert.Equal(t, 3, c.MaxInFlight)
	assert.Equal(t, slog.LevelDebug, c.LogLevel)
	assert.Equal(t, 2*time.Second, c.ShutdownTimeout)
	assert.True(t, c.DeadlockDetect)
	assert.Equal(t, 5*time.Second, c.DeadlockTimeout)
}

func TestLoadBadNumbersFallBack(t *testing.T) {
	c, err := load(env(map[string]string{
		"LEDGER_HTTP_MAX_INFLIGHT": "lots",
		"LEDGER_DB_MAX_CONNS":      "-2",
	}))
	require.NoError(t, err)
	assert.Equal(t, 256, c.MaxInFlight)
	assert.GreaterOrEqual(t, c.MaxConns, 4)
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	_, err := load(env(map[string]string{"LEDGER_STORE": "sqlite"}))
	assert.ErrorContains(t, err, "LEDGER_STORE")

	_, err = load(env(map[string]string{"LEDGER_LOCK_BACKEND": "zookeeper"}))
	assert.ErrorContains(t, err, "LEDGER_LOCK_BACKEND")

	_, err = load(env(map[string]string{"LEDGER_LOG_LEVEL": "loud"}))
	assert.ErrorContains(t, err, "LEDGER_LOG_LEVEL")
}
