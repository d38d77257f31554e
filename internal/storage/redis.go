package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pauljones0/linkedin-posts-bot/internal/models"
)

const (
	defaultRedisKey   = "linkedin-posts:rate-limit"
	maxIncrementTries = 5
)

// RedisCounter keeps the quota record in a Redis hash and increments it
// with optimistic locking, so several workers can share one quota.
type RedisCounter struct {
	rdb *redis.Client
	key string
}

// NewRedisCounter uses key, or a default key when empty.
func NewRedisCounter(rdb *redis.Client, key string) *RedisCounter {
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisCounter{rdb: rdb, key: key}
}

func (r *RedisCounter) Load(ctx context.Context) (models.RateLimitCounter, error) {
	var c models.RateLimitCounter
	if err := r.rdb.HGetAll(ctx, r.key).Scan(&c); err != nil {
		return models.RateLimitCounter{}, fmt.Errorf("failed to read %s: %w", r.key, err)
	}
	return c, nil
}

func (r *RedisCounter) Save(ctx context.Context, c models.RateLimitCounter) error {
	if err := r.rdb.HSet(ctx, r.key, "date", c.Date, "count", c.Count).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", r.key, err)
	}
	return nil
}

// Increment adds amount to the counter for day, resetting it first when the
// stored date differs.
func (r *RedisCounter) Increment(ctx context.Context, day string, amount int) (int, error) {
	var result int
	txf := func(tx *redis.Tx) error {
		var c models.RateLimitCounter
		if err := tx.HGetAll(ctx, r.key).Scan(&c); err != nil {
			return err
		}
		if c.Date != day {
			c = models.RateLimitCounter{Date: day}
		}
		c.Count += amount

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.key, "date", c.Date, "count", c.Count)
			return nil
		})
		if err == nil {
			result = c.Count
		}
		return err
	}

	for i := 0; i < maxIncrementTries; i++ {
		err := r.rdb.Watch(ctx, txf, r.key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return 0, fmt.Errorf("failed to increment %s: %w", r.key, err)
	}
	return 0, fmt.Errorf("failed to increment %s: too much contention", r.key)
}
