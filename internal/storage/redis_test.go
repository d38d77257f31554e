package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pauljones0/linkedin-posts-bot/internal/models"
)

func newTestRedisCounter(t *testing.T) (*RedisCounter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisCounter(rdb, "test:rate-limit"), mr
}

func TestRedisCounter_EmptyIsZero(t *testing.T) {
	r, _ := newTestRedisCounter(t)

	c, err := r.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if c != (models.RateLimitCounter{}) {
		t.Errorf("Expected zero counter, got %+v", c)
	}
}

func TestRedisCounter_SaveLoad(t *testing.T) {
	r, mr := newTestRedisCounter(t)
	ctx := context.Background()

	want := models.RateLimitCounter{Date: "2025-03-14", Count: 12}
	if err := r.Save(ctx, want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := r.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
	if v := mr.HGet("test:rate-limit", "count"); v != "12" {
		t.Errorf("Expected stored count 12, got %q", v)
	}
}

func TestRedisCounter_Increment(t *testing.T) {
	r, _ := newTestRedisCounter(t)
	ctx := context.Background()

	if err := r.Save(ctx, models.RateLimitCounter{Date: "2025-03-13", Count: 40}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	n, err := r.Increment(ctx, "2025-03-14", 3)
	if err != nil {
		t.Fatalf("Increment() error: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected reset then 3, got %d", n)
	}

	n, err = r.Increment(ctx, "2025-03-14", 2)
	if err != nil {
		t.Fatalf("Increment() error: %v", err)
	}
	if n != 5 {
		t.Errorf("Expected 5, got %d", n)
	}
}

func TestRedisCounter_LoadError(t *testing.T) {
	r, mr := newTestRedisCounter(t)
	mr.Close()

	if _, err := r.Load(context.Background()); err == nil {
		t.Error("Expected error when redis is unavailable")
	}
}
