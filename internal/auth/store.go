package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/quieter-gateway/internal/sqlitedb"
)

const redisCacheTTL = 5 * time.Minute
const redisKeyPrefix = "quieter:key:"

// TenantStore looks up the tenant that owns an API key hash. A nil tenant
// with a nil error means the key is unknown.
type TenantStore interface {
	Lookup(ctx context.Context, keyHash string) (*Tenant, error)
}

// CachedTenantStore implements TenantStore with PostgreSQL + Redis cache.
type CachedTenantStore struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewCachedTenantStore(db *pgxpool.Pool, rdb *redis.Client) *CachedTenantStore {
	return &CachedTenantStore{db: db, redis: rdb}
}

func (s *CachedTenantStore) Lookup(ctx context.Context, keyHash string) (*Tenant, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, redisKeyPrefix+keyHash).Bytes()
		if err == nil {
			var t Tenant
			if err := json.Unmarshal(cached, &t); err == nil {
				return &t, nil
			}
		}
	}

	t, err := s.lookupDB(ctx, keyHash)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, nil
	}

	if s.redis != nil {
		data, err := json.Marshal(t)
		if err == nil {
			s.redis.Set(ctx, redisKeyPrefix+keyHash, data, redisCacheTTL)
		}
	}

	return t, nil
}

func (s *CachedTenantStore) lookupDB(ctx context.Context, keyHash string) (*Tenant, error) {
	var t Tenant
	err := s.db.QueryRow(ctx, `
		SELECT id::text, name, plan, rpm_limit, daily_spend_limit_cents
		FROM tenants
		WHERE api_key_hash = $1
	`, keyHash).Scan(&t.ID, &t.Name, &t.Plan, &t.RPMLimit, &t.DailySpendLimitCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	return &t, nil
}

// Create inserts a tenant row for keyHash. An empty t.ID lets the database
// assign one.
func (s *CachedTenantStore) Create(ctx context.Context, t Tenant, keyHash string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO tenants (id, name, api_key_hash, plan, rpm_limit, daily_spend_limit_cents)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6)
		RETURNING id::text
	`, t.ID, t.Name, keyHash, t.Plan, t.RPMLimit, t.DailySpendLimitCents).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert tenant: %w", err)
	}
	return id, nil
}

// SQLTenantStore implements TenantStore on the SQLite backend. Lookups are
// local, so there is no cache.
type SQLTenantStore struct {
	db *sql.DB
}

func NewSQLTenantStore(db *sql.DB) *SQLTenantStore {
	return &SQLTenantStore{db: db}
}

func (s *SQLTenantStore) Lookup(ctx context.Context, keyHash string) (*Tenant, error) {
	var (
		t     Tenant
		rpm   sql.NullInt64
		spend sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, plan, rpm_limit, daily_spend_limit_cents
		FROM tenants
		WHERE api_key_hash = ?
	`, keyHash).Scan(&t.ID, &t.Name, &t.Plan, &rpm, &spend)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	if rpm.Valid {
		v := int(rpm.Int64)
		t.RPMLimit = &v
	}
	if spend.Valid {
		v := int(spend.Int64)
		t.DailySpendLimitCents = &v
	}
	return &t, nil
}

func (s *SQLTenantStore) Create(ctx context.Context, t Tenant, keyHash string) (string, error) {
	if t.ID == "" {
		return "", fmt.Errorf("insert tenant: id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, api_key_hash, plan, rpm_limit, daily_spend_limit_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Name, keyHash, t.Plan, nullInt(t.RPMLimit), nullInt(t.DailySpendLimitCents),
		time.Now().UTC().Format(sqlitedb.TimeFormat))
	if err != nil {
		return "", fmt.Errorf("insert tenant: %w", err)
	}
	return t.ID, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
