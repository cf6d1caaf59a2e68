package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryProviderRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryProvider()

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("unexpected get result %q, %v", got, err)
	}
	got[0] = 'x'
	again, _ := c.Get(ctx, "k")
	if string(again) != "v" {
		t.Fatalf("stored value must not alias returned slice")
	}
	if err := c.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete")
	}
}

func TestMemoryProviderExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryProvider()
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "k", []byte("v"), time.Second)
	if ok, _ := c.SetNX(ctx, "k", []byte("w"), time.Second); ok {
		t.Fatalf("SetNX should not overwrite a live key")
	}
	now = now.Add(2 * time.Second)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired key to miss")
	}
	if ok, _ := c.SetNX(ctx, "k", []byte("w"), 0); !ok {
		t.Fatalf("SetNX should claim an expired key")
	}
}

func TestNoopProvider(t *testing.T) {
	var p Provider = NoopProvider{}
	if _, err := p.Get(context.Background(), "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("noop cache should always miss")
	}
}

func TestNewRedisProviderRequiresAddr(t *testing.T) {
	if _, err := NewRedisProvider(RedisConfig{}); err == nil {
		t.Fatalf("expected error without addr")
	}
}

func TestNewRedisProviderFailsFast(t *testing.T) {
	_, err := NewRedisProvider(RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: 0})
	if err == nil {
		t.Fatalf("expected ping failure against closed port")
	}
}

func TestNormaliseDurations(t *testing.T) {
	cfg := RedisConfig{MaxRetries: -3}
	normaliseDurations(&cfg)
	if cfg.DialTimeout <= 0 || cfg.ReadTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.MaxRetries != 0 {
		t.Fatalf("unexpected normalised config %+v", cfg)
	}
	if hostForTLS("cache.internal:6380") != "cache.internal" {
		t.Fatalf("unexpected tls host")
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryProvider()
	key := Key("settings", "tenant", "shop")
	if key != "mirador-perf:settings:tenant:shop" {
		t.Fatalf("unexpected key %q", key)
	}

	if err := SetJSON(ctx, c, key, map[string]any{"tx_top_k": 3}, time.Minute); err != nil {
		t.Fatalf("set json: %v", err)
	}
	var got map[string]any
	if err := GetJSON(ctx, c, key, &got); err != nil {
		t.Fatalf("get json: %v", err)
	}
	if got["tx_top_k"] != 3.0 {
		t.Fatalf("unexpected value %v", got)
	}

	if err := c.Set(ctx, key, []byte("{not json"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := GetJSON(ctx, c, key, &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected undecodable entry to read as a miss, got %v", err)
	}
	if _, err := c.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("undecodable entry should have been deleted")
	}
}
