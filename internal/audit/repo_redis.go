package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisRetention = 24 * time.Hour
	defaultRedisMaxEvents = 500
)

// RedisRepo stores each call's events in a capped list under esther:audit:<call_id>.
type RedisRepo struct {
	rdb       redis.Cmdable
	retention time.Duration
	maxEvents int64
}

func NewRedisRepo(rdb redis.Cmdable, retention time.Duration) *RedisRepo {
	if retention <= 0 {
		retention = defaultRedisRetention
	}
	return &RedisRepo{rdb: rdb, retention: retention, maxEvents: defaultRedisMaxEvents}
}

func redisKey(callID string) string { return "esther:audit:" + callID }

func (r *RedisRepo) Append(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: encode event: %w", err)
	}
	key := redisKey(e.CallID)
	pipe := r.rdb.TxPipeline()
	pipe.RPush(ctx, key, b)
	pipe.LTrim(ctx, key, -r.maxEvents, -1)
	pipe.Expire(ctx, key, r.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

func (r *RedisRepo) List(ctx context.Context, callID string) ([]Event, error) {
	raw, err := r.rdb.LRange(ctx, redisKey(callID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	out := make([]Event, 0, len(raw))
	for _, s := range raw {
		var e Event
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
