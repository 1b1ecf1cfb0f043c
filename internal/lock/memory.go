package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// MemoryClient is an in-process Client for tests and local development.
// It implements only what the locker uses: SET NX PX and the
// token-conditional delete script.
type MemoryClient struct {
	mu    sync.Mutex
	items map[string]memoryItem
}

type memoryItem struct {
	value     string
	expiresAt time.Time
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{items: make(map[string]memoryItem)}
}

func (m *MemoryClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.items[key]; ok && time.Now().Before(it.expiresAt) {
		return redis.NewBoolResult(false, nil)
	}
	m.items[key] = memoryItem{value: fmt.Sprint(value), expiresAt: time.Now().Add(expiration)}
	return redis.NewBoolResult(true, nil)
}

func (m *MemoryClient) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := keys[0]
	token := fmt.Sprint(args[0])
	if it, ok := m.items[key]; ok && it.value == token {
		delete(m.items, key)
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

// Held reports whether a key currently holds an unexpired token.
func (m *MemoryClient) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[key]
	return ok && time.Now().Before(it.expiresAt)
}
