package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	RateLimit   RateLimitConfig   `yaml:"ratelimit"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	Lock        LockConfig        `yaml:"lock"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

type IdempotencyConfig struct {
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

type LockConfig struct {
	TTLMS        int `yaml:"ttl_ms"`
	RetryCount   int `yaml:"retry_count"`
	RetryDelayMS int `yaml:"retry_delay_ms"`
}

// CacheTTL returns the idempotency cache TTL as a duration.
func (c IdempotencyConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// TTL returns the per-attempt lock TTL as a duration.
func (c LockConfig) TTL() time.Duration {
	return time.Duration(c.TTLMS) * time.Millisecond
}

// RetryDelay returns the base backoff as a duration.
func (c LockConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

// Load reads the yaml file if present, then applies defaults and
// environment overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.RateLimit.RPS == 0 {
		cfg.RateLimit.RPS = 100
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 200
	}
	if cfg.Idempotency.CacheTTLSeconds == 0 {
		cfg.Idempotency.CacheTTLSeconds = 86400
	}
	if cfg.Lock.TTLMS == 0 {
		cfg.Lock.TTLMS = 5000
	}
	if cfg.Lock.RetryCount == 0 {
		cfg.Lock.RetryCount = 3
	}
	if cfg.Lock.RetryDelayMS == 0 {
		cfg.Lock.RetryDelayMS = 50
	}

	if port, ok := envInt("PORT"); ok {
		cfg.Server.Port = port
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Postgres.DSN = dsn
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if ttl, ok := envInt("IDEMPOTENCY_CACHE_TTL_SECONDS"); ok {
		cfg.Idempotency.CacheTTLSeconds = ttl
	}
	if ttl, ok := envInt("DISTRIBUTED_LOCK_TTL_MS"); ok {
		cfg.Lock.TTLMS = ttl
	}
	if n, ok := envInt("DISTRIBUTED_LOCK_RETRY_COUNT"); ok {
		cfg.Lock.RetryCount = n
	}
	if d, ok := envInt("DISTRIBUTED_LOCK_RETRY_DELAY_MS"); ok {
		cfg.Lock.RetryDelayMS = d
	}
	return &cfg, nil
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
