package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter is an in-process token bucket per key, used when the gateway
// runs without Redis. Limits are per instance.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
}

type localBucket struct {
	lim   *rate.Limiter
	limit int64
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{buckets: make(map[string]*localBucket)}
}

func (l *LocalLimiter) Check(_ context.Context, key string, limit int64, window time.Duration) (LimitResult, error) {
	now := time.Now()
	if limit <= 0 {
		return LimitResult{Allowed: false, ResetAt: now.Add(window), RetryAfter: window}, nil
	}

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok || b.limit != limit {
		b = &localBucket{
			lim:   rate.NewLimiter(rate.Every(window/time.Duration(limit)), int(limit)),
			limit: limit,
		}
		l.buckets[key] = b
	}
	l.mu.Unlock()

	allowed := b.lim.AllowN(now, 1)
	remaining := int64(b.lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}

	res := LimitResult{
		Allowed:   allowed,
		Remaining: remaining,
		ResetAt:   now.Add(window),
	}
	if !allowed {
		res.RetryAfter = window / time.Duration(limit)
		if res.RetryAfter < time.Second {
			res.RetryAfter = time.Second
		}
	}
	return res, nil
}
