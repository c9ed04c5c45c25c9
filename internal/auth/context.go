package auth

import "context"

type ctxKey struct{}

// AuthInfo is the tenant a request was authenticated as. The limit fields are
// nil when the tenant has no override.
type AuthInfo struct {
	TenantID             string
	TenantName           string
	Plan                 string
	KeyPrefix            string
	RPMLimit             *int
	DailySpendLimitCents *int
}

// RequestsPerMinute returns the tenant's RPM limit, or def when unset.
func (a *AuthInfo) RequestsPerMinute(def int) int {
	if a.RPMLimit == nil {
		return def
	}
	return *a.RPMLimit
}

// SpendLimit returns the daily spend limit in cents and whether one is set.
func (a *AuthInfo) SpendLimit() (int64, bool) {
	if a.DailySpendLimitCents == nil {
		return 0, false
	}
	return int64(*a.DailySpendLimitCents), true
}

func ContextWithAuth(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

func AuthFromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(ctxKey{}).(*AuthInfo)
	return info, ok && info != nil
}
