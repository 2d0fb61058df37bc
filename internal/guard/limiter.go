package guard

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"esther-voice/pkg/utils"
)

// Limiter caps the number of calls live at once. A limit <= 0 disables the cap.
type Limiter interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LocalLimiter counts slots in process.
type LocalLimiter struct {
	mu    sync.Mutex
	limit int
	used  int
}

func NewLocalLimiter(limit int) *LocalLimiter { return &LocalLimiter{limit: limit} }

func (l *LocalLimiter) Acquire(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit > 0 && l.used >= l.limit {
		return false, nil
	}
	l.used++
	return true, nil
}

func (l *LocalLimiter) Release(context.Context) error {
	l.mu.Lock()
	if l.used > 0 {
		l.used--
	}
	l.mu.Unlock()
	return nil
}

func (l *LocalLimiter) InUse() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used
}

// RedisLimiter shares the cap across instances.
type RedisLimiter struct {
	rdb   redis.Scripter
	key   string
	limit int
	ttl   time.Duration
}

// NewRedisLimiter holds each slot for at most ttl, which should exceed the longest allowed call.
func NewRedisLimiter(rdb redis.Scripter, limit int, ttl time.Duration) *RedisLimiter {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisLimiter{rdb: rdb, key: "esther:calls:active", limit: limit, ttl: ttl}
}

func (l *RedisLimiter) Acquire(ctx context.Context) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	return utils.AcquireConcurrencyCap(ctx, l.rdb, l.key, l.limit, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context) error {
	if l.limit <= 0 {
		return nil
	}
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, l.key)
}
