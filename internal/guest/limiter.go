// Package guest enforces the free-completion limit for unauthenticated
// callers server-side. The browser mirrors its own counter for the sign-in
// prompt, but the server no longer trusts it.
package guest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const counterTTL = 24 * time.Hour

// Limiter reports whether the caller identified by key may run another
// free completion.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter counts guest completions per key with a 24h expiry.
type RedisLimiter struct {
	client *redis.Client
	limit  int
}

func NewRedisLimiter(addr string, limit int) *RedisLimiter {
	return &RedisLimiter{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		limit:  limit,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := "guest_quota:" + key
	n, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment guest counter: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, redisKey, counterTTL).Err(); err != nil {
			return false, fmt.Errorf("failed to set guest counter expiry: %w", err)
		}
	}
	return n <= int64(l.limit), nil
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

// MemoryLimiter is the single-process fallback used when no Redis address
// is configured.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	count   int
	expires time.Time
}

func NewMemoryLimiter(limit int) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || now.After(e.expires) {
		e = memoryEntry{expires: now.Add(counterTTL)}
	}
	e.count++
	l.entries[key] = e
	return e.count <= l.limit, nil
}
