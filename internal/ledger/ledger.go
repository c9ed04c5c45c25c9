// Package ledger records per-request usage and meters tenant balances.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	// ErrDuplicateRequest means a usage row already exists for the request id.
	// Nothing was written and no balance was charged.
	ErrDuplicateRequest = errors.New("usage already recorded for request")
	ErrBalanceNotFound  = errors.New("balance not found")
	ErrInvalidRecord    = errors.New("invalid usage record")
)

// UsageRecord is one row of the append-only usage log.
type UsageRecord struct {
	ID                string    `json:"id"`
	RequestID         string    `json:"request_id"`
	TenantID          string    `json:"tenant_id"`
	ModelID           *string   `json:"model_id"`
	LatencyMs         *int64    `json:"latency_ms"`
	InputTokens       int64     `json:"input_tokens"`
	OutputTokens      int64     `json:"output_tokens"`
	TotalTokens       int64     `json:"total_tokens"`
	Redactions        int       `json:"redactions"`
	ProviderCostCents *int64    `json:"provider_cost_cents"`
	BilledCents       *int64    `json:"billed_cents"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

// Balance is a tenant's prepaid credit. Credits may go negative.
type Balance struct {
	TenantID     string    `json:"tenant_id"`
	CreditsCents int64     `json:"credits_cents"`
	Plan         string    `json:"plan"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is the persistence behind the ledger. InsertUsage and SettleUsage
// report false when the request id was already recorded; SettleUsage must
// insert the row and subtract BilledCents from the balance atomically.
type Store interface {
	InsertUsage(ctx context.Context, rec UsageRecord) (bool, error)
	SettleUsage(ctx context.Context, rec UsageRecord) (bool, error)
	DecrementBalance(ctx context.Context, tenantID string, cents int64) error
	CreditBalance(ctx context.Context, tenantID, plan string, cents int64) error
	GetBalance(ctx context.Context, tenantID string) (Balance, error)
	ListUsage(ctx context.Context, tenantID string, limit int) ([]UsageRecord, error)
	Ping(ctx context.Context) error
}

// Success describes a completed upstream call to be settled.
type Success struct {
	RequestID    string
	TenantID     string
	ModelID      string
	LatencyMs    int64
	InputTokens  int64
	OutputTokens int64
	Redactions   int
	ProviderCost int64
	BilledCost   int64
}

// Failure describes an upstream call that did not complete.
type Failure struct {
	RequestID  string
	TenantID   string
	Redactions int
}

type Ledger struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// Record appends rec as is, filling ID, CreatedAt and TotalTokens when unset.
// It never touches the balance.
func (l *Ledger) Record(ctx context.Context, rec UsageRecord) (string, error) {
	rec, err := l.prepare(rec)
	if err != nil {
		return "", err
	}
	ok, err := l.store.InsertUsage(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("insert usage: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicateRequest, rec.RequestID)
	}
	return rec.ID, nil
}

// DecrementBalance subtracts cents from the tenant's credits with no floor.
// A missing balance row is created at -cents.
func (l *Ledger) DecrementBalance(ctx context.Context, tenantID string, cents int64) error {
	if tenantID == "" {
		return fmt.Errorf("%w: empty tenant id", ErrInvalidRecord)
	}
	if err := l.store.DecrementBalance(ctx, tenantID, cents); err != nil {
		return fmt.Errorf("decrement balance: %w", err)
	}
	return nil
}

// Settle records a successful call and charges its billed cost in one
// transaction. A repeated request id returns ErrDuplicateRequest and charges
// nothing.
func (l *Ledger) Settle(ctx context.Context, s Success) (string, error) {
	model := s.ModelID
	latency := s.LatencyMs
	provider := s.ProviderCost
	billed := s.BilledCost
	rec, err := l.prepare(UsageRecord{
		RequestID:         s.RequestID,
		TenantID:          s.TenantID,
		ModelID:           &model,
		LatencyMs:         &latency,
		InputTokens:       s.InputTokens,
		OutputTokens:      s.OutputTokens,
		Redactions:        s.Redactions,
		ProviderCostCents: &provider,
		BilledCents:       &billed,
		Status:            StatusSuccess,
	})
	if err != nil {
		return "", err
	}

	ok, err := l.store.SettleUsage(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("settle usage: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicateRequest, rec.RequestID)
	}
	return rec.ID, nil
}

// RecordFailure writes an error row with no model, latency or cost.
func (l *Ledger) RecordFailure(ctx context.Context, f Failure) (string, error) {
	return l.Record(ctx, UsageRecord{
		RequestID:  f.RequestID,
		TenantID:   f.TenantID,
		Redactions: f.Redactions,
		Status:     StatusError,
	})
}

// Credit adds cents to a tenant's balance, creating the row with plan if needed.
func (l *Ledger) Credit(ctx context.Context, tenantID, plan string, cents int64) error {
	if err := l.store.CreditBalance(ctx, tenantID, plan, cents); err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}

func (l *Ledger) Balance(ctx context.Context, tenantID string) (Balance, error) {
	return l.store.GetBalance(ctx, tenantID)
}

func (l *Ledger) Usage(ctx context.Context, tenantID string, limit int) ([]UsageRecord, error) {
	switch {
	case limit <= 0:
		limit = 50
	case limit > 500:
		limit = 500
	}
	return l.store.ListUsage(ctx, tenantID, limit)
}

func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

func (l *Ledger) prepare(rec UsageRecord) (UsageRecord, error) {
	if rec.RequestID == "" || rec.TenantID == "" {
		return rec, fmt.Errorf("%w: request id and tenant id are required", ErrInvalidRecord)
	}
	if rec.Status != StatusSuccess && rec.Status != StatusError {
		return rec, fmt.Errorf("%w: status %q", ErrInvalidRecord, rec.Status)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.now().UTC()
	}
	if rec.InputTokens < 0 {
		rec.InputTokens = 0
	}
	if rec.OutputTokens < 0 {
		rec.OutputTokens = 0
	}
	if rec.TotalTokens == 0 {
		rec.TotalTokens = rec.InputTokens + rec.OutputTokens
	}
	if rec.Redactions < 0 {
		rec.Redactions = 0
	}
	return rec, nil
}
