package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgInsertUsage = `
	INSERT INTO usage_logs (id, request_id, tenant_id, model_id, latency_ms, input_tokens,
	                        output_tokens, total_tokens, redactions, provider_cost_cents,
	                        billed_cents, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (request_id) DO NOTHING`

const pgDecrementBalance = `
	INSERT INTO balances (tenant_id, credits_cents, updated_at)
	VALUES ($1, -$2::bigint, NOW())
	ON CONFLICT (tenant_id) DO UPDATE
	SET credits_cents = balances.credits_cents - $2::bigint, updated_at = NOW()`

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func insertArgs(rec UsageRecord) []any {
	return []any{
		rec.ID, rec.RequestID, rec.TenantID, rec.ModelID, rec.LatencyMs, rec.InputTokens,
		rec.OutputTokens, rec.TotalTokens, rec.Redactions, rec.ProviderCostCents,
		rec.BilledCents, rec.Status, rec.CreatedAt,
	}
}

func (s *PostgresStore) InsertUsage(ctx context.Context, rec UsageRecord) (bool, error) {
	tag, err := s.db.Exec(ctx, pgInsertUsage, insertArgs(rec)...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) SettleUsage(ctx context.Context, rec UsageRecord) (bool, error) {
	var billed int64
	if rec.BilledCents != nil {
		billed = *rec.BilledCents
	}

	inserted := false
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, pgInsertUsage, insertArgs(rec)...)
		if err != nil {
			return fmt.Errorf("insert usage: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, pgDecrementBalance, rec.TenantID, billed); err != nil {
			return fmt.Errorf("decrement balance: %w", err)
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (s *PostgresStore) DecrementBalance(ctx context.Context, tenantID string, cents int64) error {
	_, err := s.db.Exec(ctx, pgDecrementBalance, tenantID, cents)
	return err
}

func (s *PostgresStore) CreditBalance(ctx context.Context, tenantID, plan string, cents int64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO balances (tenant_id, credits_cents, plan, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant_id) DO UPDATE
		SET credits_cents = balances.credits_cents + EXCLUDED.credits_cents, updated_at = NOW()
	`, tenantID, cents, plan)
	return err
}

func (s *PostgresStore) GetBalance(ctx context.Context, tenantID string) (Balance, error) {
	b := Balance{TenantID: tenantID}
	err := s.db.QueryRow(ctx, `
		SELECT credits_cents, plan, updated_at FROM balances WHERE tenant_id = $1
	`, tenantID).Scan(&b.CreditsCents, &b.Plan, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrBalanceNotFound
		}
		return Balance{}, fmt.Errorf("query balance: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) ListUsage(ctx context.Context, tenantID string, limit int) ([]UsageRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, request_id, tenant_id::text, model_id, latency_ms, input_tokens,
		       output_tokens, total_tokens, redactions, provider_cost_cents, billed_cents,
		       status, created_at
		FROM usage_logs
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	out := make([]UsageRecord, 0)
	for rows.Next() {
		var r UsageRecord
		if err := rows.Scan(&r.ID, &r.RequestID, &r.TenantID, &r.ModelID, &r.LatencyMs,
			&r.InputTokens, &r.OutputTokens, &r.TotalTokens, &r.Redactions,
			&r.ProviderCostCents, &r.BilledCents, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
