package guard

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Record is one dialed call remembered against a phone key.
type Record struct {
	CallID string    `json:"callId"`
	At     time.Time `json:"at"`
}

// Store remembers when numbers were dialed.
type Store interface {
	// Add records a call and may drop records older than keep.
	Add(ctx context.Context, key string, rec Record, keep time.Duration) error
	// Since returns the records at or after from, oldest first.
	Since(ctx context.Context, key string, from time.Time) ([]Record, error)
}

// RedisStore keeps one sorted set per phone key, scored by unix milliseconds.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "esther:calls:recent:"}
}

func (s *RedisStore) Add(ctx context.Context, key string, rec Record, keep time.Duration) error {
	k := s.prefix + key
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(rec.At.UnixMilli()), Member: rec.CallID})
	if keep > 0 {
		cutoff := rec.At.Add(-keep).UnixMilli()
		pipe.ZRemRangeByScore(ctx, k, "-inf", "("+strconv.FormatInt(cutoff, 10))
		pipe.Expire(ctx, k, keep)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("guard: record call: %w", err)
	}
	return nil
}

func (s *RedisStore) Since(ctx context.Context, key string, from time.Time) ([]Record, error) {
	zs, err := s.rdb.ZRangeByScoreWithScores(ctx, s.prefix+key, &redis.ZRangeBy{
		Min: strconv.FormatInt(from.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("guard: recent calls: %w", err)
	}
	out := make([]Record, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		out = append(out, Record{CallID: id, At: time.UnixMilli(int64(z.Score)).UTC()})
	}
	return out, nil
}

// MemoryStore is the single-process Store.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string][]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string][]Record)}
}

func (s *MemoryStore) Add(ctx context.Context, key string, rec Record, keep time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append(s.recs[key], rec)
	sort.SliceStable(list, func(i, j int) bool { return list[i].At.Before(list[j].At) })
	if keep > 0 {
		cutoff := rec.At.Add(-keep)
		i := 0
		for i < len(list) && list[i].At.Before(cutoff) {
			i++
		}
		list = list[i:]
	}
	s.recs[key] = list
	return nil
}

func (s *MemoryStore) Since(ctx context.Context, key string, from time.Time) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.recs[key] {
		if !r.At.Before(from) {
			out = append(out, r)
		}
	}
	return out, nil
}
