package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisFixedWindow implements RateLimiter with a fixed window counter stored in Redis,
// so the limit holds across several API instances.
type RedisFixedWindow struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisFixedWindow creates a new RedisFixedWindow. Keys are stored as
// "<prefix><key>:<window index>" and expire with their window.
func NewRedisFixedWindow(client *redis.Client, limit int, window time.Duration, prefix string) *RedisFixedWindow {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisFixedWindow{client: client, limit: limit, window: window, prefix: prefix, now: time.Now}
}

// Allow increments the counter for the current window and compares it with the limit.
func (r *RedisFixedWindow) Allow(ctx context.Context, key string) (bool, error) {
	slot := r.now().UnixNano() / int64(r.window)
	redisKey := fmt.Sprintf("%s%s:%d", r.prefix, key, slot)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, r.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis rate limiter: %w", err)
	}
	return incr.Val() <= int64(r.limit), nil
}
