package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/af-corp/quieter-gateway/internal/auth"
	"github.com/af-corp/quieter-gateway/internal/catalog"
	"github.com/af-corp/quieter-gateway/internal/config"
	"github.com/af-corp/quieter-gateway/internal/ledger"
	"github.com/af-corp/quieter-gateway/internal/sqlitedb"
)

type tenantCreator interface {
	Create(ctx context.Context, t auth.Tenant, keyHash string) (string, error)
}

type modelSeeder interface {
	Seed(ctx context.Context, entries []config.ModelEntry) (int, error)
}

func main() {
	name := flag.String("name", "", "tenant name (required)")
	plan := flag.String("plan", "dev", "tenant plan")
	credits := flag.Int64("credits", 0, "initial credits in cents")
	rpm := flag.Int("rpm", 0, "requests per minute limit (0 = gateway default)")
	dailyLimit := flag.Int("daily-limit", 0, "daily spend limit in cents (0 = none)")
	seedModels := flag.Bool("seed-models", false, "insert models.yaml entries missing from the models table")
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	if *name == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nerror: -name is required")
		os.Exit(1)
	}

	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	loader := config.NewLoader(*configDir, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	if err := loader.Load(); err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	dbCfg := loader.Config().Database

	rawKey, err := auth.GenerateKey()
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		tenants tenantCreator
		store   ledger.Store
		seeder  modelSeeder
	)
	switch dbCfg.Driver {
	case "sqlite":
		db, err := sqlitedb.Open(ctx, dbCfg.Path)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		tenants = auth.NewSQLTenantStore(db.DB)
		store = ledger.NewSQLStore(db.DB)
		seeder = catalog.NewSQLCatalog(db.DB)
	default:
		pool, err := pgxpool.New(ctx, dbCfg.DSN())
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer pool.Close()
		tenants = auth.NewCachedTenantStore(pool, nil)
		store = ledger.NewPostgresStore(pool)
		seeder = catalog.NewPostgresCatalog(pool)
	}

	t := auth.Tenant{ID: uuid.NewString(), Name: *name, Plan: *plan}
	if *rpm > 0 {
		t.RPMLimit = rpm
	}
	if *dailyLimit > 0 {
		t.DailySpendLimitCents = dailyLimit
	}

	tenantID, err := tenants.Create(ctx, t, auth.HashKey(rawKey))
	if err != nil {
		log.Fatalf("failed to create tenant: %v", err)
	}

	// The balance row exists even at zero credits so /v1/balance answers.
	if err := ledger.New(store).Credit(ctx, tenantID, *plan, *credits); err != nil {
		log.Fatalf("failed to create balance: %v", err)
	}

	if *seedModels {
		models := loader.Models()
		n, err := seeder.Seed(ctx, models.Models)
		if err != nil {
			log.Fatalf("failed to seed models: %v", err)
		}
		fmt.Printf("seeded %d model(s)\n", n)
	}

	fmt.Println("=== Quieter API Key Generated ===")
	fmt.Println()
	fmt.Printf("  Tenant ID:   %s\n", tenantID)
	fmt.Printf("  Name:        %s\n", *name)
	fmt.Printf("  Plan:        %s\n", *plan)
	fmt.Printf("  Key Prefix:  %s\n", auth.KeyPrefix(rawKey))
	fmt.Printf("  Credits:     %d cents\n", *credits)
	if t.RPMLimit != nil {
		fmt.Printf("  RPM Limit:   %d\n", *t.RPMLimit)
	}
	if t.DailySpendLimitCents != nil {
		fmt.Printf("  Daily Limit: %d cents\n", *t.DailySpendLimitCents)
	}
	fmt.Println()
	fmt.Println("  API Key (save this, it will NOT be shown again):")
	fmt.Printf("  %s\n", rawKey)
	fmt.Println()
	fmt.Println("=================================")
}
