package ratelimiter

import (
	"context"
	"time"
)

// FixedWindowCounter implements RateLimiter using a fixed window counter per key.
// It allows limit requests per key in each window.
type FixedWindowCounter struct {
	limit  int           // Maximum number of requests allowed in the window.
	window time.Duration // The duration of the time window.
	keys   *keyed[*windowState]
	now    func() time.Time
}

type windowState struct {
	count       int
	windowStart time.Time
}

// NewFixedWindowCounter creates a new FixedWindowCounter.
// limit: the maximum number of requests allowed per key in the window.
// window: the duration of the time window.
func NewFixedWindowCounter(limit int, window time.Duration) *FixedWindowCounter {
	return newFixedWindowCounter(limit, window, time.Now)
}

func newFixedWindowCounter(limit int, window time.Duration, now func() time.Time) *FixedWindowCounter {
	return &FixedWindowCounter{
		limit:  limit,
		window: window,
		now:    now,
		keys: newKeyed(func() *windowState {
			return &windowState{windowStart: now()}
		}, maxKeys, now),
	}
}

// Allow resets the key's counter if its window has passed and
// increments it if the request is within the limit.
func (fwc *FixedWindowCounter) Allow(_ context.Context, key string) (bool, error) {
	fwc.keys.mutex.Lock()
	defer fwc.keys.mutex.Unlock()

	state := fwc.keys.get(key)
	now := fwc.now()
	if !now.Before(state.windowStart.Add(fwc.window)) {
		state.windowStart = now
		state.count = 0
	}

	if state.count < fwc.limit {
		state.count++
		return true, nil
	}
	return false, nil
}
