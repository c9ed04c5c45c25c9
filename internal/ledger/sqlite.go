package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/af-corp/quieter-gateway/internal/sqlitedb"
)

const sqliteInsertUsage = `
	INSERT INTO usage_logs (id, request_id, tenant_id, model_id, latency_ms, input_tokens,
	                        output_tokens, total_tokens, redactions, provider_cost_cents,
	                        billed_cents, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (request_id) DO NOTHING`

const sqliteDecrementBalance = `
	INSERT INTO balances (tenant_id, credits_cents, updated_at)
	VALUES (?, -?, ?)
	ON CONFLICT (tenant_id) DO UPDATE
	SET credits_cents = credits_cents - ?, updated_at = excluded.updated_at`

// SQLStore implements Store on the single-node SQLite database.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) stamp() string {
	return s.now().UTC().Format(sqlitedb.TimeFormat)
}

func (s *SQLStore) insert(ctx context.Context, db sqlExecer, rec UsageRecord) (bool, error) {
	res, err := db.ExecContext(ctx, sqliteInsertUsage,
		rec.ID, rec.RequestID, rec.TenantID, nullString(rec.ModelID), nullInt64(rec.LatencyMs),
		rec.InputTokens, rec.OutputTokens, rec.TotalTokens, rec.Redactions,
		nullInt64(rec.ProviderCostCents), nullInt64(rec.BilledCents), rec.Status,
		rec.CreatedAt.UTC().Format(sqlitedb.TimeFormat))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLStore) decrement(ctx context.Context, db sqlExecer, tenantID string, cents int64) error {
	_, err := db.ExecContext(ctx, sqliteDecrementBalance, tenantID, cents, s.stamp(), cents)
	return err
}

func (s *SQLStore) InsertUsage(ctx context.Context, rec UsageRecord) (bool, error) {
	return s.insert(ctx, s.db, rec)
}

func (s *SQLStore) SettleUsage(ctx context.Context, rec UsageRecord) (bool, error) {
	var billed int64
	if rec.BilledCents != nil {
		billed = *rec.BilledCents
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	inserted, err := s.insert(ctx, tx, rec)
	if err != nil {
		return false, fmt.Errorf("insert usage: %w", err)
	}
	if !inserted {
		return false, nil
	}
	if err := s.decrement(ctx, tx, rec.TenantID, billed); err != nil {
		return false, fmt.Errorf("decrement balance: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

func (s *SQLStore) DecrementBalance(ctx context.Context, tenantID string, cents int64) error {
	return s.decrement(ctx, s.db, tenantID, cents)
}

func (s *SQLStore) CreditBalance(ctx context.Context, tenantID, plan string, cents int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO balances (tenant_id, credits_cents, plan, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id) DO UPDATE
		SET credits_cents = credits_cents + excluded.credits_cents, updated_at = excluded.updated_at
	`, tenantID, cents, plan, s.stamp())
	return err
}

func (s *SQLStore) GetBalance(ctx context.Context, tenantID string) (Balance, error) {
	var (
		b       = Balance{TenantID: tenantID}
		updated string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT credits_cents, plan, updated_at FROM balances WHERE tenant_id = ?
	`, tenantID).Scan(&b.CreditsCents, &b.Plan, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{}, ErrBalanceNotFound
		}
		return Balance{}, fmt.Errorf("query balance: %w", err)
	}
	if b.UpdatedAt, err = time.Parse(sqlitedb.TimeFormat, updated); err != nil {
		return Balance{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return b, nil
}

func (s *SQLStore) ListUsage(ctx context.Context, tenantID string, limit int) ([]UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, tenant_id, model_id, latency_ms, input_tokens, output_tokens,
		       total_tokens, redactions, provider_cost_cents, billed_cents, status, created_at
		FROM usage_logs
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	out := make([]UsageRecord, 0)
	for rows.Next() {
		var (
			r        UsageRecord
			model    sql.NullString
			latency  sql.NullInt64
			provider sql.NullInt64
			billed   sql.NullInt64
			created  string
		)
		if err := rows.Scan(&r.ID, &r.RequestID, &r.TenantID, &model, &latency,
			&r.InputTokens, &r.OutputTokens, &r.TotalTokens, &r.Redactions,
			&provider, &billed, &r.Status, &created); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		if model.Valid {
			r.ModelID = &model.String
		}
		if latency.Valid {
			r.LatencyMs = &latency.Int64
		}
		if provider.Valid {
			r.ProviderCostCents = &provider.Int64
		}
		if billed.Valid {
			r.BilledCents = &billed.Int64
		}
		if r.CreatedAt, err = time.Parse(sqlitedb.TimeFormat, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
