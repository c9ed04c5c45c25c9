package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"

	"github.com/af-corp/quieter-gateway/internal/config"
)

// migrate applies migrations/*.sql to Postgres. The SQLite backend creates
// its schema on open and does not use this tool.
func main() {
	var (
		down      = flag.Bool("down", false, "roll back instead of applying")
		steps     = flag.Int("steps", 0, "number of steps (0 = all)")
		dbURL     = flag.String("db-url", "", "database URL (overrides config and env)")
		configDir = flag.String("config", "configs", "config directory holding gateway.yaml")
		dir       = flag.String("path", "migrations", "migrations directory")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("could not read .env", "error", err)
	}

	dsn, err := resolveDSN(*dbURL, *configDir)
	if err != nil {
		logger.Error("resolve database url", "error", err)
		os.Exit(1)
	}

	m, err := migrate.New("file://"+filepath.ToSlash(*dir), dsn)
	if err != nil {
		logger.Error("open migrator", "error", err)
		os.Exit(1)
	}
	defer m.Close()

	if err := run(m, *down, *steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.Warn("read schema version", "error", err)
	}
	logger.Info("migration complete", "down", *down, "version", version, "dirty", dirty)
}

func run(m *migrate.Migrate, down bool, steps int) error {
	switch {
	case steps > 0 && down:
		return m.Steps(-steps)
	case steps > 0:
		return m.Steps(steps)
	case down:
		return m.Down()
	default:
		return m.Up()
	}
}

// resolveDSN prefers the flag, then DATABASE_URL, then the database block of
// gateway.yaml (with ${VAR} expansion), then the built-in defaults.
func resolveDSN(flagURL, configDir string) (string, error) {
	if flagURL != "" {
		return flagURL, nil
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v, nil
	}
	cfg := config.DefaultConfig()
	path := filepath.Join(configDir, "gateway.yaml")
	if _, err := os.Stat(path); err == nil {
		if err := config.LoadFile(path, cfg); err != nil {
			return "", err
		}
	}
	if cfg.Database.Driver != "postgres" {
		return "", errors.New("migrations only apply to the postgres driver")
	}
	return cfg.Database.DSN(), nil
}
