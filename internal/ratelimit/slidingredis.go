package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims expired attempts, admits the new one only while under
// the limit, and reports the oldest admitted attempt so callers can compute
// when a slot frees up. Scores are unix microseconds.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, math.ceil(window / 1000))
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {allowed, count, oldest[2] or tostring(now)}
`)

// RedisLimiter is a sliding-window limiter on Redis sorted sets, shared by
// every API replica. Rejected attempts are not recorded, so a client that
// keeps retrying is let back in as soon as its oldest attempt ages out.
type RedisLimiter struct {
	Client redis.Scripter
	Prefix string
}

func (l RedisLimiter) Allow(ctx context.Context, key string, window time.Duration, limit int) (bool, int, time.Time, error) {
	now := time.Now()
	if l.Client == nil || limit <= 0 || window <= 0 {
		return true, limit, now.Add(window), nil
	}
	res, err := slidingWindow.Run(ctx, l.Client, []string{l.Prefix + key},
		now.UnixMicro(), window.Microseconds(), limit, uuid.NewString()).Slice()
	if err != nil {
		return false, 0, now.Add(window), fmt.Errorf("ratelimit: %w", err)
	}
	if len(res) != 3 {
		return false, 0, now.Add(window), fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	allowed, _ := res[0].(int64)
	count, _ := res[1].(int64)
	reset := now.Add(window)
	if s, ok := res[2].(string); ok {
		if oldest, err := strconv.ParseFloat(s, 64); err == nil {
			reset = time.UnixMicro(int64(oldest)).Add(window)
		}
	}
	return allowed == 1, max(limit-int(count), 0), reset, nil
}
