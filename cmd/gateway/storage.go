package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/quieter-gateway/internal/auth"
	"github.com/af-corp/quieter-gateway/internal/catalog"
	"github.com/af-corp/quieter-gateway/internal/config"
	"github.com/af-corp/quieter-gateway/internal/ledger"
	"github.com/af-corp/quieter-gateway/internal/sqlitedb"
)

// seedCatalog is a database-backed catalog that can be seeded from models.yaml.
type seedCatalog interface {
	catalog.Catalog
	Seed(ctx context.Context, entries []config.ModelEntry) (int, error)
}

// storage bundles the backend-specific stores behind one database handle.
type storage struct {
	ledger  ledger.Store
	tenants auth.TenantStore
	catalog seedCatalog
	close   func()
}

func openStorage(ctx context.Context, cfg config.DatabaseConfig, rdb *redis.Client, logger *slog.Logger) (*storage, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlitedb.Open(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("database opened", "driver", "sqlite", "path", db.Path())
		return &storage{
			ledger:  ledger.NewSQLStore(db.DB),
			tenants: auth.NewSQLTenantStore(db.DB),
			catalog: catalog.NewSQLCatalog(db.DB),
			close:   func() { _ = db.Close() },
		}, nil

	case "postgres", "":
		poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("parse database url: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			logger.Warn("database not reachable (gateway will start but auth will fail)", "error", err)
		} else {
			logger.Info("database connected", "driver", "postgres")
		}
		return &storage{
			ledger:  ledger.NewPostgresStore(pool),
			tenants: auth.NewCachedTenantStore(pool, rdb),
			catalog: catalog.NewPostgresCatalog(pool),
			close:   pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func authMiddleware(s *storage) func(http.Handler) http.Handler {
	return auth.Middleware(s.tenants)
}
