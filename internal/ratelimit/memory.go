package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// MemoryLimiter is the single-process fallback used when Redis is not
// configured. It keeps one fixed-window limiter per (window, max) pair.
type MemoryLimiter struct {
	store    limiter.Store
	mu       sync.Mutex
	limiters map[string]*limiter.Limiter
}

// NewMemoryLimiter builds a MemoryLimiter with an in-process store.
func NewMemoryLimiter(prefix string) *MemoryLimiter {
	return &MemoryLimiter{
		store: memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          prefix,
			CleanUpInterval: time.Minute,
		}),
		limiters: map[string]*limiter.Limiter{},
	}
}

func (m *MemoryLimiter) limiterFor(window time.Duration, max int) *limiter.Limiter {
	id := fmt.Sprintf("%s/%d", window, max)
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.limiters[id]; ok {
		return l
	}
	l := limiter.New(m.store, limiter.Rate{Period: window, Limit: int64(max)})
	m.limiters[id] = l
	return l
}

// Allow implements Allower.
func (m *MemoryLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	lctx, err := m.limiterFor(window, max).Get(ctx, fmt.Sprintf("%d:%s", window.Milliseconds(), key))
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !lctx.Reached, int(lctx.Remaining), time.Unix(lctx.Reset, 0), nil
}
