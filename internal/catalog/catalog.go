package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/af-corp/quieter-gateway/internal/config"
)

// Catalog lists enabled models. Implementations read their source on every
// call so edits apply without a restart.
type Catalog interface {
	EnabledModels(ctx context.Context) ([]ModelConfig, error)
}

// StaticCatalog serves models.yaml, re-read from the loader on each call.
type StaticCatalog struct {
	models func() *config.ModelsConfig
}

func NewStaticCatalog(models func() *config.ModelsConfig) *StaticCatalog {
	return &StaticCatalog{models: models}
}

func (c *StaticCatalog) EnabledModels(_ context.Context) ([]ModelConfig, error) {
	mc := c.models()
	if mc == nil {
		return nil, nil
	}
	var out []ModelConfig
	for _, e := range mc.Models {
		if !e.Enabled {
			continue
		}
		out = append(out, FromEntry(e))
	}
	return out, nil
}

const selectEnabledModels = `
	SELECT id, provider, upstream_model, enabled, price_input_per_1k,
	       price_output_per_1k, quality_score, tier
	FROM models
	WHERE enabled`

// PostgresCatalog reads the models table.
type PostgresCatalog struct {
	db *pgxpool.Pool
}

func NewPostgresCatalog(db *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) EnabledModels(ctx context.Context) ([]ModelConfig, error) {
	rows, err := c.db.Query(ctx, selectEnabledModels)
	if err != nil {
		return nil, fmt.Errorf("query models: %w", err)
	}
	defer rows.Close()

	var out []ModelConfig
	for rows.Next() {
		var m ModelConfig
		if err := rows.Scan(&m.ID, &m.Provider, &m.UpstreamModel, &m.Enabled,
			&m.PriceInputPer1K, &m.PriceOutputPer1K, &m.QualityScore, &m.Tier); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate models: %w", err)
	}
	return out, nil
}

// Seed inserts entries missing from the models table. Existing rows are left
// untouched so operator edits survive restarts.
func (c *PostgresCatalog) Seed(ctx context.Context, entries []config.ModelEntry) (int, error) {
	inserted := 0
	for _, e := range entries {
		m := FromEntry(e)
		tag, err := c.db.Exec(ctx, `
			INSERT INTO models (id, provider, upstream_model, enabled, price_input_per_1k,
			                    price_output_per_1k, quality_score, tier)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
		`, m.ID, m.Provider, m.UpstreamModel, m.Enabled, m.PriceInputPer1K,
			m.PriceOutputPer1K, m.QualityScore, m.Tier)
		if err != nil {
			return inserted, fmt.Errorf("seed model %s: %w", m.ID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// SQLCatalog reads the models table through database/sql (SQLite backend).
type SQLCatalog struct {
	db *sql.DB
}

func NewSQLCatalog(db *sql.DB) *SQLCatalog {
	return &SQLCatalog{db: db}
}

func (c *SQLCatalog) EnabledModels(ctx context.Context) ([]ModelConfig, error) {
	rows, err := c.db.QueryContext(ctx, selectEnabledModels)
	if err != nil {
		return nil, fmt.Errorf("query models: %w", err)
	}
	defer rows.Close()

	var out []ModelConfig
	for rows.Next() {
		var (
			m       ModelConfig
			quality sql.NullFloat64
		)
		if err := rows.Scan(&m.ID, &m.Provider, &m.UpstreamModel, &m.Enabled,
			&m.PriceInputPer1K, &m.PriceOutputPer1K, &quality, &m.Tier); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		if quality.Valid {
			q := quality.Float64
			m.QualityScore = &q
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate models: %w", err)
	}
	return out, nil
}

func (c *SQLCatalog) Seed(ctx context.Context, entries []config.ModelEntry) (int, error) {
	inserted := 0
	for _, e := range entries {
		m := FromEntry(e)
		var quality sql.NullFloat64
		if m.QualityScore != nil {
			quality = sql.NullFloat64{Float64: *m.QualityScore, Valid: true}
		}
		res, err := c.db.ExecContext(ctx, `
			INSERT INTO models (id, provider, upstream_model, enabled, price_input_per_1k,
			                    price_output_per_1k, quality_score, tier)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING
		`, m.ID, m.Provider, m.UpstreamModel, m.Enabled, m.PriceInputPer1K,
			m.PriceOutputPer1K, quality, m.Tier)
		if err != nil {
			return inserted, fmt.Errorf("seed model %s: %w", m.ID, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	return inserted, nil
}
