// Package sqlitedb opens the single-node SQLite store and creates its schema.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// TimeFormat is how timestamps are stored. The fixed width keeps text
// ordering equal to time ordering.
const TimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// DB wraps the SQL connection pool.
type DB struct {
	*sql.DB
	path string
}

// Open creates the database file (and its directory) if needed, applies
// pragmas and creates the schema.
func Open(ctx context.Context, path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes writers; pragmas below are per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path}
	if err := db.configure(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if err := db.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

func (db *DB) Path() string {
	return db.path
}

func (db *DB) configure(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (db *DB) createSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			api_key_hash TEXT NOT NULL UNIQUE,
			plan TEXT NOT NULL DEFAULT 'dev',
			rpm_limit INTEGER,
			daily_spend_limit_cents INTEGER,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS models (
			id TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			upstream_model TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			price_input_per_1k REAL NOT NULL DEFAULT 0,
			price_output_per_1k REAL NOT NULL DEFAULT 0,
			quality_score REAL,
			tier TEXT NOT NULL DEFAULT 'standard'
		)`,
		`CREATE TABLE IF NOT EXISTS usage_logs (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL UNIQUE,
			tenant_id TEXT NOT NULL,
			model_id TEXT,
			latency_ms INTEGER,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			redactions INTEGER NOT NULL DEFAULT 0,
			provider_cost_cents INTEGER,
			billed_cents INTEGER,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_logs_tenant ON usage_logs(tenant_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS balances (
			tenant_id TEXT PRIMARY KEY,
			credits_cents INTEGER NOT NULL DEFAULT 0,
			plan TEXT NOT NULL DEFAULT 'dev',
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
