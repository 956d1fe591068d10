package ratelimiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket implements RateLimiter with one token bucket per key.
// It allows bursts of requests up to the bucket's capacity.
type TokenBucket struct {
	keys *keyed[*rate.Limiter]
	now  func() time.Time
}

// NewTokenBucket creates a new TokenBucket.
// perSecond: the number of tokens generated per second.
// capacity: the maximum number of tokens (burst size).
func NewTokenBucket(perSecond float64, capacity int) *TokenBucket {
	return newTokenBucket(perSecond, capacity, time.Now)
}

func newTokenBucket(perSecond float64, capacity int, now func() time.Time) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	return &TokenBucket{
		now: now,
		keys: newKeyed(func() *rate.Limiter {
			return rate.NewLimiter(rate.Limit(perSecond), capacity)
		}, maxKeys, now),
	}
}

// Allow consumes one token from the key's bucket if available.
func (tb *TokenBucket) Allow(_ context.Context, key string) (bool, error) {
	tb.keys.mutex.Lock()
	limiter := tb.keys.get(key)
	tb.keys.mutex.Unlock()
	return limiter.AllowN(tb.now(), 1), nil
}
