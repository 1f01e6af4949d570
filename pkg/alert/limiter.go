package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitPolicy is a fixed-window/token-bucket configuration for one
// (channel, tenant) pair, spec.md §4.H step 2.
type RateLimitPolicy struct {
	MaxAlerts int
	WindowMs  int64
}

// RateLimiter gates alert sends per (channel, tenant). Grounded on the
// teacher's pkg/kernel.LimiterStore contract.
type RateLimiter interface {
	Allow(ctx context.Context, channel ChannelType, tenantID string, policy RateLimitPolicy) (bool, error)
}

type windowCounter struct {
	count      int
	windowEnds time.Time
}

// InMemoryRateLimiter is a fixed-window limiter keyed by (channel, tenant).
type InMemoryRateLimiter struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
}

func NewInMemoryRateLimiter() *InMemoryRateLimiter {
	return &InMemoryRateLimiter{counters: make(map[string]*windowCounter)}
}

func (l *InMemoryRateLimiter) Allow(_ context.Context, channel ChannelType, tenantID string, policy RateLimitPolicy) (bool, error) {
	key := string(channel) + "|" + tenantID
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[key]
	if !ok || now.After(c.windowEnds) {
		c = &windowCounter{windowEnds: now.Add(time.Duration(policy.WindowMs) * time.Millisecond)}
		l.counters[key] = c
	}
	if c.count >= policy.MaxAlerts {
		return false, nil
	}
	c.count++
	return true, nil
}

// redisFixedWindowScript atomically increments a per-window counter
// and expires it at the window boundary, mirroring the teacher's
// redisTokenBucketScript HMGET/HMSET/EXPIRE pattern.
var redisFixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local max = tonumber(ARGV[1])
local window_seconds = tonumber(ARGV[2])

local count = redis.call("INCR", key)
if count == 1 then
    redis.call("EXPIRE", key, window_seconds)
end

if count > max then
    return 0
end
return 1
`)

// RedisRateLimiter is a Redis-backed fixed-window limiter, for
// multi-instance alert dispatchers sharing rate-limit state.
type RedisRateLimiter struct {
	client *redis.Client
}

func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, channel ChannelType, tenantID string, policy RateLimitPolicy) (bool, error) {
	key := fmt.Sprintf("alert-limiter:%s:%s", channel, tenantID)
	windowSeconds := policy.WindowMs / 1000
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	res, err := redisFixedWindowScript.Run(ctx, l.client, []string{key}, policy.MaxAlerts, windowSeconds).Result()
	if err != nil {
		return false, fmt.Errorf("alert: redis rate limiter: %w", err)
	}
	allowed, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("alert: unexpected redis script result %T", res)
	}
	return allowed == 1, nil
}
