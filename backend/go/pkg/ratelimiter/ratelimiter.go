package ratelimiter

import (
	"context"
	"sync"
	"time"

	"gemini_agent_api/backend/go/pkg/util"
)

// RateLimiter is the interface for per-key rate limiting.
// Allow reports whether one more request for key is allowed right now.
// An error means the limiter could not decide (e.g. the backing store is down).
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

const (
	// idleTTL is how long an in-memory per-key entry may stay unused before it expires.
	idleTTL = 10 * time.Minute
	// maxKeys bounds the number of clients tracked in memory; the least recently seen are dropped first.
	maxKeys = 100_000
)

// keyed holds one value per key in a bounded LRU.
type keyed[T any] struct {
	mutex    sync.Mutex // serializes read-modify-write of a single value
	entries  *util.LRUCache[string, T]
	newValue func() T
}

func newKeyed[T any](newValue func() T, capacity int, now func() time.Time) *keyed[T] {
	entries, err := util.NewLRU[string, T](util.CacheConfig{Capacity: capacity, TTL: idleTTL, Now: now})
	if err != nil {
		// capacity is always a positive constant here
		panic(err)
	}
	return &keyed[T]{entries: entries, newValue: newValue}
}

// get returns the value for key, creating it if needed. The caller must hold k.mutex.
func (k *keyed[T]) get(key string) T {
	return k.entries.GetOrCreate(key, k.newValue)
}

func (k *keyed[T]) len() int {
	return k.entries.Len()
}
