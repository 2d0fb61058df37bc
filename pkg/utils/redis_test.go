package utils

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestRedisConfig_Defaults(t *testing.T) {
	cfg := RedisConfig{Addr: "localhost:6379", MinIdleConns: -1}.withDefaults()
	if cfg.PoolSize != 10 || cfg.MinIdleConns != 0 || cfg.PingTimeout != 2*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestRedisConfig_OptionsFromURL(t *testing.T) {
	opts, err := RedisConfig{Addr: "redis://:secret@cache:6380/3"}.withDefaults().options()
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 3 || opts.Password != "secret" {
		t.Fatalf("unexpected options: addr=%s db=%d", opts.Addr, opts.DB)
	}
	if opts.PoolSize != 10 {
		t.Fatalf("expected pool defaults applied, got %d", opts.PoolSize)
	}
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

func TestAcquireConcurrencyCap_ValidatesArgs(t *testing.T) {
	ctx := context.Background()
	if _, err := AcquireConcurrencyCap(ctx, nil, "k", 1, time.Second); err == nil {
		t.Fatalf("expected nil client error")
	}
	if err := ReleaseConcurrencyCap(ctx, nil, "k"); err == nil {
		t.Fatalf("expected nil client error")
	}
}

func TestConcurrencyCap_AgainstRedis(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := OpenRedis(ctx, RedisConfig{Addr: addr})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	defer rdb.Close()

	key := "esther:test:cap"
	rdb.Del(ctx, key)
	defer rdb.Del(ctx, key)

	for i := 0; i < 2; i++ {
		ok, err := AcquireConcurrencyCap(ctx, rdb, key, 2, time.Minute)
		if err != nil || !ok {
			t.Fatalf("acquire %d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := AcquireConcurrencyCap(ctx, rdb, key, 2, time.Minute); ok {
		t.Fatalf("expected cap reached")
	}
	if err := ReleaseConcurrencyCap(ctx, rdb, key); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := AcquireConcurrencyCap(ctx, rdb, key, 2, time.Minute); !ok {
		t.Fatalf("expected slot after release")
	}
}
