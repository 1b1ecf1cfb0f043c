package lock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/playcoin/wallet-service/internal/apperr"
	"github.com/playcoin/wallet-service/internal/lockorder"
)

// releaseScript deletes a key only while it still holds this attempt's
// token, so a lock that expired and was reacquired elsewhere is left
// alone.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Client is the subset of redis.Client the locker needs. Tests plug in
// an in-memory implementation of SET NX PX and the conditional delete.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Locker acquires named mutual-exclusion tokens across service
// instances in the canonical sorted key order.
type Locker struct {
	client     Client
	ttl        time.Duration
	retryCount int
	retryDelay time.Duration
	log        *zap.SugaredLogger
}

func NewLocker(client Client, ttl time.Duration, retryCount int, retryDelay time.Duration, log *zap.SugaredLogger) *Locker {
	return &Locker{client: client, ttl: ttl, retryCount: retryCount, retryDelay: retryDelay, log: log}
}

// Handle releases the keys acquired by one successful acquisition.
type Handle struct {
	locker *Locker
	keys   []string
	token  string
}

// AcquireWallets locks the given wallet set. Callers must release the
// returned handle on every exit path.
func (l *Locker) AcquireWallets(ctx context.Context, walletIDs []string) (*Handle, error) {
	keys := lockorder.WalletLockKeys(walletIDs)
	if len(keys) == 0 {
		return nil, apperr.LockKeysMissing()
	}

	for attempt := 1; attempt <= l.retryCount; attempt++ {
		token := uuid.NewString()
		acquired, err := l.tryAcquire(ctx, keys, token)
		if err != nil {
			return nil, err
		}
		if acquired {
			return &Handle{locker: l, keys: keys, token: token}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryDelay * time.Duration(attempt)):
		}
	}
	return nil, apperr.LockNotAcquired()
}

func (l *Locker) tryAcquire(ctx context.Context, keys []string, token string) (bool, error) {
	held := make([]string, 0, len(keys))
	for _, key := range keys {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			l.releaseKeys(ctx, held, token)
			return false, err
		}
		if !ok {
			l.releaseKeys(ctx, held, token)
			return false, nil
		}
		held = append(held, key)
	}
	return true, nil
}

func (l *Locker) releaseKeys(ctx context.Context, keys []string, token string) {
	for _, key := range keys {
		if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
			l.log.Warnf("release lock %s: %v", key, err)
		}
	}
}

// Release frees every held key by token. Errors are logged, never
// propagated.
func (h *Handle) Release(ctx context.Context) {
	h.locker.releaseKeys(ctx, h.keys, h.token)
}
