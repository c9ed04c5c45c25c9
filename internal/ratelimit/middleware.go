package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/af-corp/quieter-gateway/internal/auth"
	"github.com/af-corp/quieter-gateway/internal/httputil"
	"github.com/af-corp/quieter-gateway/internal/telemetry"
)

const (
	defaultRPM = 60

	headerRateLimitRequests          = "X-RateLimit-Limit-Requests"
	headerRateLimitRemainingRequests = "X-RateLimit-Remaining-Requests"
	headerRateLimitReset             = "X-RateLimit-Reset-Requests"
	headerRetryAfter                 = "Retry-After"
)

// SpendChecker reports whether a tenant is still under its daily spend limit.
type SpendChecker interface {
	CheckDailySpend(ctx context.Context, tenantID string, limitCents int64) (BudgetResult, error)
}

type guard struct {
	limiter RateLimiter
	budget  SpendChecker
	metrics *telemetry.Metrics
}

// Middleware enforces the tenant's requests-per-minute limit and, when the
// tenant has one and budget is non-nil, its daily spend limit. Requests
// without an authenticated tenant pass through untouched.
func Middleware(limiter RateLimiter, budget SpendChecker, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	g := &guard{limiter: limiter, budget: budget, metrics: metrics}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := auth.AuthFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			reqID := w.Header().Get("X-Request-ID")
			if !g.admitRate(w, r, reqID, info) || !g.admitSpend(w, r, reqID, info) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *guard) admitRate(w http.ResponseWriter, r *http.Request, reqID string, info *auth.AuthInfo) bool {
	rpm := info.RequestsPerMinute(defaultRPM)
	res, _ := g.limiter.Check(r.Context(), "rpm:"+info.TenantID, int64(rpm), time.Minute)

	h := w.Header()
	h.Set(headerRateLimitRequests, strconv.Itoa(rpm))
	h.Set(headerRateLimitRemainingRequests, strconv.FormatInt(res.Remaining, 10))
	h.Set(headerRateLimitReset, res.ResetAt.UTC().Format(time.RFC3339))
	if res.Allowed {
		return true
	}

	slog.Warn("rate limit exceeded",
		"request_id", reqID,
		"tenant_id", info.TenantID,
		"limit_rpm", rpm,
	)
	g.hit("rpm", info.Plan)
	h.Set(headerRetryAfter, strconv.Itoa(int(res.RetryAfter.Round(time.Second)/time.Second)))
	httputil.Write(w, reqID, httputil.ErrRateLimit,
		fmt.Sprintf("Rate limit exceeded: %d requests per minute. Retry after %s", rpm, res.ResetAt.UTC().Format(time.RFC3339)))
	return false
}

func (g *guard) admitSpend(w http.ResponseWriter, r *http.Request, reqID string, info *auth.AuthInfo) bool {
	limit, ok := info.SpendLimit()
	if !ok || g.budget == nil {
		return true
	}
	res, _ := g.budget.CheckDailySpend(r.Context(), info.TenantID, limit)
	if res.Allowed {
		return true
	}

	slog.Warn("daily spend limit reached",
		"request_id", reqID,
		"tenant_id", info.TenantID,
		"spent_cents", res.SpentCents,
		"limit_cents", res.LimitCents,
	)
	g.hit("budget", info.Plan)
	httputil.Write(w, reqID, httputil.ErrBudget,
		fmt.Sprintf("Daily budget exceeded: spent %d of %d cents", res.SpentCents, res.LimitCents))
	return false
}

func (g *guard) hit(dimension, plan string) {
	if g.metrics != nil {
		g.metrics.RecordRateLimitHit(dimension, plan)
	}
}
