package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// BudgetResult is the outcome of a budget check.
type BudgetResult struct {
	Allowed    bool
	SpentCents int64
	LimitCents int64
}

// BudgetTracker keeps a running total of billed cost per tenant per UTC day.
// The ledger stays authoritative; this counter only gates admission.
type BudgetTracker struct {
	rdb *redis.Client
	now func() time.Time
}

// NewBudgetTracker returns a tracker on rdb. A nil client admits everything.
func NewBudgetTracker(rdb *redis.Client) *BudgetTracker {
	return &BudgetTracker{rdb: rdb, now: time.Now}
}

func spendKey(tenantID string, at time.Time) string {
	return keyPrefix + "spend:" + tenantID + ":" + at.UTC().Format(time.DateOnly)
}

// spendExpiry keeps a day's counter an hour past UTC midnight so late
// settlements still land in the right bucket.
func spendExpiry(at time.Time) time.Time {
	y, m, d := at.UTC().Date()
	return time.Date(y, m, d+1, 1, 0, 0, 0, time.UTC)
}

// CheckDailySpend reports whether the tenant's spend today is under limitCents.
// Redis errors fail open.
func (b *BudgetTracker) CheckDailySpend(ctx context.Context, tenantID string, limitCents int64) (BudgetResult, error) {
	res := BudgetResult{Allowed: true, LimitCents: limitCents}
	if b.rdb == nil {
		return res, nil
	}

	spent, err := b.rdb.Get(ctx, spendKey(tenantID, b.now())).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		spent = 0
	case err != nil:
		return res, nil
	}

	res.SpentCents = spent
	res.Allowed = spent < limitCents
	return res, nil
}

// RecordSpend adds a settled charge to today's counter.
func (b *BudgetTracker) RecordSpend(ctx context.Context, tenantID string, costCents int64) error {
	if b.rdb == nil || costCents <= 0 {
		return nil
	}
	now := b.now()
	key := spendKey(tenantID, now)
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.IncrBy(ctx, key, costCents)
		pipe.ExpireAt(ctx, key, spendExpiry(now))
		return nil
	})
	return err
}
