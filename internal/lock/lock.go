// Package lock provides the per-stream publishing lock. Only one channel
// may hold a stream's lock while it commits a publish, which keeps
// concurrent publishes on the same stream serialized.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned by TryLock when the lock is already held
var ErrLocked = errors.New("lock is already held")

// Locker hands out short-lived exclusive locks by key
type Locker interface {
	// TryLock acquires the lock or returns ErrLocked. On success the
	// returned unlock function MUST be called to release it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// Memory is an in-process Locker for single-instance deployments and tests
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemory creates an in-process Locker
func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

// TryLock acquires the lock or returns ErrLocked
func (m *Memory) TryLock(_ context.Context, key string, _ time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[key]; ok {
		return nil, ErrLocked
	}
	m.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.held, key)
		})
	}, nil
}

// Redis is a Locker backed by the Redis SET NX EX pattern
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed Locker
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// unlockScript deletes the key only if the token still matches
const unlockScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`

// TryLock acquires the lock or returns ErrLocked
func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	// Random token ensures only the holder can release the lock
	token := randomToken()

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return func() {
		// Background context so unlock works even if the caller's context is cancelled
		_ = r.client.Eval(context.Background(), unlockScript, []string{key}, token).Err() // nolint:errcheck
	}, nil
}

func randomToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
