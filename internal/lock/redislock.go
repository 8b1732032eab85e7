// Package lock serializes work on one key across API replicas.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotConfigured = errors.New("lock: redis client not configured")

const (
	defaultTTL     = 30 * time.Second
	defaultBackoff = 50 * time.Millisecond
	maxBackoff     = time.Second
)

// unlock deletes the key only while it still holds our token, so a holder
// whose lease expired cannot release someone else's lock.
var unlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client is the part of go-redis the locker uses.
type Client interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Locker is a lease-based mutex on Redis. Waiters poll with exponential
// backoff starting at RetryBackoff and capped at one second.
type Locker struct {
	R            Client
	Prefix       string
	RetryBackoff time.Duration
}

// WithLock runs fn while holding key. The lease is released when fn returns
// and lapses after ttl if this process dies first.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return ErrNotConfigured
	}
	release, err := l.acquire(ctx, l.key(key), ttl)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

func (l Locker) key(key string) string {
	if l.Prefix == "" {
		return key
	}
	return l.Prefix + ":" + key
}

func (l Locker) acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	wait := l.RetryBackoff
	if wait <= 0 {
		wait = defaultBackoff
	}
	token := uuid.NewString()
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait = min(2*wait, maxBackoff)
	}
}

// release uses its own deadline so a cancelled request still frees the key.
func (l Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = unlock.Run(ctx, l.R, []string{key}, token).Err()
}
