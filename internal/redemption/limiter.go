package redemption

import (
	"context"
	"fmt"
	"time"
)

// Counter is the slice of the cache the limiter needs: atomic increments and
// a TTL on the window key.
type Counter interface {
	Increment(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
}

// RedisRateLimiter is a fixed-window limiter keyed per user, backed by a
// shared counter so the limit holds across instances. Every attempt counts
// toward the window, successful or not.
type RedisRateLimiter struct {
	counter Counter
	limit   int
	window  time.Duration
}

func NewRedisRateLimiter(counter Counter, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		counter: counter,
		limit:   limit,
		window:  window,
	}
}

func (rl *RedisRateLimiter) Allow(ctx context.Context, userID int64) (bool, error) {
	if rl.limit <= 0 || rl.window <= 0 {
		return true, nil
	}

	key := fmt.Sprintf("redeem_rl:%d", userID)

	count, err := rl.counter.Increment(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		if err := rl.counter.Expire(ctx, key, rl.window); err != nil {
			return false, err
		}
	}

	return count <= int64(rl.limit), nil
}
