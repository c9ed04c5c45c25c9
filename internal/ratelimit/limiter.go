package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "quieter:"

// LimitResult is the outcome of a rate limit check.
type LimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RateLimiter checks a bucket against a request limit per window.
type RateLimiter interface {
	Check(ctx context.Context, key string, limit int64, window time.Duration) (LimitResult, error)
}

// Limiter is a sliding-window log shared by every gateway instance through
// Redis. Each admitted request is a member of a sorted set scored by its
// arrival time in microseconds.
type Limiter struct {
	rdb *redis.Client
}

// NewLimiter returns a limiter on rdb. A nil client admits everything.
func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb}
}

// admitScript trims the log to the window, admits the request if there is
// room, and reports the oldest surviving score so the caller can tell when
// a slot frees up.
//
//	KEYS[1] log key
//	ARGV[1] window start, ARGV[2] now, ARGV[3] limit, ARGV[4] ttl seconds
//	returns {count, admitted, oldest}
var admitScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
local admitted = 0
if count < tonumber(ARGV[3]) then
    redis.call('ZADD', KEYS[1], ARGV[2], ARGV[2] .. '-' .. redis.call('INCR', KEYS[1] .. ':seq'))
    redis.call('EXPIRE', KEYS[1] .. ':seq', ARGV[4])
    count = count + 1
    admitted = 1
end
redis.call('EXPIRE', KEYS[1], ARGV[4])
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local first = 0
if oldest[2] then first = tonumber(oldest[2]) end
return {count, admitted, first}
`)

// Check admits or rejects one request for key. Redis errors fail open.
func (l *Limiter) Check(ctx context.Context, key string, limit int64, window time.Duration) (LimitResult, error) {
	now := time.Now()
	if l.rdb == nil {
		return LimitResult{Allowed: true, Remaining: limit - 1, ResetAt: now.Add(window)}, nil
	}

	ttl := int64(window/time.Second) + 1
	out, err := admitScript.Run(ctx, l.rdb, []string{keyPrefix + "rl:" + key},
		now.Add(-window).UnixMicro(), now.UnixMicro(), limit, ttl,
	).Int64Slice()
	if err != nil || len(out) != 3 {
		return LimitResult{Allowed: true, Remaining: limit, ResetAt: now.Add(window)}, nil
	}

	return windowResult(now, window, limit, out[0], out[1] == 1, out[2]), nil
}

// windowResult derives the headers' view of a window from the script output.
// oldestMicro is the arrival time of the oldest request still in the window.
func windowResult(now time.Time, window time.Duration, limit, count int64, admitted bool, oldestMicro int64) LimitResult {
	res := LimitResult{
		Allowed:   admitted,
		Remaining: max(limit-count, 0),
		ResetAt:   now.Add(window),
	}
	if oldestMicro > 0 {
		res.ResetAt = time.UnixMicro(oldestMicro).Add(window)
	}
	if !admitted {
		res.RetryAfter = res.ResetAt.Sub(now)
		if res.RetryAfter < time.Second {
			res.RetryAfter = time.Second
		}
	}
	return res
}
