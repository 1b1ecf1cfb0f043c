package idemcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const keyPrefix = "idem:response:"

// Payload is the cached outcome of a mutation keyed by idempotency key.
type Payload struct {
	Fingerprint string          `json:"fingerprint"`
	StatusCode  int             `json:"statusCode"`
	Body        json.RawMessage `json:"body"`
}

// Cache is a best-effort write-through store in front of the
// authoritative transactions table. Errors are logged and swallowed; a
// miss always falls through to the database.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.SugaredLogger
}

func New(rdb *redis.Client, ttl time.Duration, log *zap.SugaredLogger) *Cache {
	return &Cache{rdb: rdb, ttl: ttl, log: log}
}

// Get returns the cached payload for key, or nil on miss or error.
func (c *Cache) Get(ctx context.Context, key string) *Payload {
	raw, err := c.rdb.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warnf("idempotency cache get %s: %v", key, err)
		}
		return nil
	}
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		c.log.Warnf("idempotency cache decode %s: %v", key, err)
		return nil
	}
	return &p
}

// Set stores the payload under key with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, p Payload) {
	raw, err := json.Marshal(p)
	if err != nil {
		c.log.Warnf("idempotency cache encode %s: %v", key, err)
		return
	}
	if err := c.rdb.Set(ctx, keyPrefix+key, raw, c.ttl).Err(); err != nil {
		c.log.Warnf("idempotency cache set %s: %v", key, err)
	}
}
