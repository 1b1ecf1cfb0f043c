package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaultsWhenFileAbsent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 100, cfg.RateLimit.RPS)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.CacheTTL())
	assert.Equal(t, 5*time.Second, cfg.Lock.TTL())
	assert.Equal(t, 3, cfg.Lock.RetryCount)
	assert.Equal(t, 50*time.Millisecond, cfg.Lock.RetryDelay())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("REDIS_URL", "redis://env:6379/1")
	t.Setenv("IDEMPOTENCY_CACHE_TTL_SECONDS", "60")
	t.Setenv("DISTRIBUTED_LOCK_TTL_MS", "2500")
	t.Setenv("DISTRIBUTED_LOCK_RETRY_COUNT", "7")
	t.Setenv("DISTRIBUTED_LOCK_RETRY_DELAY_MS", "10")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "postgres://env/db", cfg.Postgres.DSN)
	assert.Equal(t, "redis://env:6379/1", cfg.Redis.URL)
	assert.Equal(t, time.Minute, cfg.Idempotency.CacheTTL())
	assert.Equal(t, 2500*time.Millisecond, cfg.Lock.TTL())
	assert.Equal(t, 7, cfg.Lock.RetryCount)
	assert.Equal(t, 10*time.Millisecond, cfg.Lock.RetryDelay())
}

func TestLoadMalformedEnvIgnored(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}
