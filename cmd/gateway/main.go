package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/quieter-gateway/internal/catalog"
	"github.com/af-corp/quieter-gateway/internal/config"
	"github.com/af-corp/quieter-gateway/internal/filter"
	"github.com/af-corp/quieter-gateway/internal/filter/injection"
	"github.com/af-corp/quieter-gateway/internal/filter/secrets"
	"github.com/af-corp/quieter-gateway/internal/gateway"
	"github.com/af-corp/quieter-gateway/internal/health"
	"github.com/af-corp/quieter-gateway/internal/httputil"
	"github.com/af-corp/quieter-gateway/internal/ledger"
	"github.com/af-corp/quieter-gateway/internal/policy"
	"github.com/af-corp/quieter-gateway/internal/ratelimit"
	"github.com/af-corp/quieter-gateway/internal/router"
	"github.com/af-corp/quieter-gateway/internal/scrub"
	"github.com/af-corp/quieter-gateway/internal/telemetry"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the configuration")
	flag.Parse()

	if _, err := os.Stat(*envFile); err == nil {
		_ = godotenv.Load(*envFile)
	}

	// Bootstrap logger until the configured one is known.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	logger = newLogger(cfg.Telemetry.LogLevel, cfg.Telemetry.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := loader.Watch(ctx); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	rdb := connectRedis(ctx, cfg.Redis, logger)
	if rdb != nil {
		defer rdb.Close()
	}

	store, err := openStorage(ctx, cfg.Database, rdb, logger)
	if err != nil {
		logger.Error("failed to open storage", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer store.close()

	// Model catalog
	var cat catalog.Catalog = store.catalog
	if cfg.Catalog.Source == "config" {
		cat = catalog.NewStaticCatalog(loader.Models)
		logger.Info("model catalog from models.yaml")
	} else if models := loader.Models(); models != nil && len(models.Models) > 0 {
		n, err := store.catalog.Seed(ctx, models.Models)
		if err != nil {
			logger.Warn("model seed failed", "error", err)
		} else if n > 0 {
			logger.Info("seeded models table", "inserted", n)
		}
	}
	routingCfg := func() config.RoutingConfig { return loader.Config().Routing }
	resolver := catalog.NewResolver(cat, routingCfg)

	// Upstream providers
	registry := router.BuildFromConfig(loader.Providers())
	loader.OnReload(func() {
		registry.Load(loader.Providers())
		logger.Info("provider registry reloaded", "providers", registry.Names())
	})
	tracker := router.NewHealthTracker(func() config.CircuitBreakerConfig { return routingCfg().CircuitBreaker })
	upstream := router.NewRouter(registry, tracker, routingCfg)

	// Filters and policy
	filterCfg := func() config.FilterConfig { return loader.Config().Filter }
	filters := filter.NewChain(
		secrets.NewScanner(func() config.SecretsFilterConfig { return filterCfg().Secrets }),
		injection.NewScanner(func() config.InjectionFilterConfig { return filterCfg().Injection }),
	)
	evaluator := policy.NewEvaluator(func() config.PolicyFilterConfig { return filterCfg().Policy })
	if evaluator.Enabled() {
		if err := evaluator.Load(ctx); err != nil {
			logger.Error("failed to load policies", "error", err)
			os.Exit(1)
		}
	}
	loader.OnReload(func() {
		if !evaluator.Enabled() {
			return
		}
		if err := evaluator.Load(context.Background()); err != nil {
			logger.Error("policy reload failed, keeping previous policies", "error", err)
		}
	})

	metrics := telemetry.NewMetrics()
	tracker.OnTransition(func(provider string, from, to router.CircuitState) {
		logger.Warn("provider circuit changed", "provider", provider, "from", from.String(), "to", to.String())
		metrics.RecordCircuitTransition(provider, to.String())
	})
	scrubber := scrub.NewScrubber(func() config.ScrubConfig { return loader.Config().Scrub })

	reporter := telemetry.NewInstanceReporter(
		func() config.InstanceTelemetryConfig { return loader.Config().Telemetry.Instance },
		scrubber.Categories,
		version,
	)
	if err := reporter.Start(ctx); err != nil {
		logger.Warn("instance telemetry not started", "error", err)
	}
	defer reporter.Stop()

	deps := gateway.Deps{
		Scrubber: scrubber,
		Filters:  filters,
		Resolver: resolver,
		Catalog:  cat,
		Policy:   evaluator,
		Upstream: upstream,
		Ledger:   ledger.New(store.ledger),
		Metrics:  metrics,
		Counter:  reporter,
		Config:   func() config.LedgerConfig { return loader.Config().Ledger },
	}

	// Daily spend tracking needs the shared counter in Redis; without it the
	// budget check is off and rpm limits are per process.
	var (
		limiter ratelimit.RateLimiter
		budget  ratelimit.SpendChecker
	)
	if rdb != nil {
		spend := ratelimit.NewBudgetTracker(rdb)
		limiter = ratelimit.NewLimiter(rdb)
		budget = spend
		deps.Spend = spend
	} else {
		limiter = ratelimit.NewLocalLimiter()
		logger.Warn("redis unavailable: using in-process rate limits, daily spend limits disabled")
	}

	svc := gateway.NewService(deps)
	handler := gateway.NewHandler(svc, version, tracker)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(gateway.RequestID)
	r.Use(gateway.CORS(cfg.Server.CORSOrigin))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.Write(w, w.Header().Get("X-Request-ID"), httputil.ErrNotFound, "Route not found")
	})
	handler.Routes(r, authMiddleware(store), ratelimit.Middleware(limiter, budget, metrics))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	metricsSrv := newMetricsServer(cfg.Server.Host, cfg.Telemetry.MetricsPort, reporter)

	var grpcHealth *health.Server
	if cfg.Server.GRPCHealthPort > 0 {
		grpcHealth = health.NewServer(svc)
		lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCHealthPort))
		if err != nil {
			logger.Error("failed to listen for grpc health", "port", cfg.Server.GRPCHealthPort, "error", err)
			os.Exit(1)
		}
		go grpcHealth.Run(ctx, 10*time.Second)
		go func() {
			logger.Info("grpc health starting", "addr", lis.Addr().String())
			if err := grpcHealth.Serve(lis); err != nil {
				logger.Error("grpc health server error", "error", err)
			}
		}()
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gateway starting", "addr", addr, "version", version, "database", cfg.Database.Driver)
		errCh <- srv.ListenAndServe()
	}()
	if metricsSrv != nil {
		go func() {
			logger.Info("metrics server starting", "addr", metricsSrv.Addr)
			errCh <- metricsSrv.ListenAndServe()
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if grpcHealth != nil {
		grpcHealth.Stop()
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) *redis.Client {
	if len(cfg.Addresses) == 0 || cfg.Addresses[0] == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addresses[0],
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable (auth cache and shared limits disabled)", "error", err)
		_ = rdb.Close()
		return nil
	}
	logger.Info("redis connected")
	return rdb
}

// newMetricsServer exposes Prometheus metrics and the instance telemetry
// snapshot. A zero port disables it.
func newMetricsServer(host string, port int, reporter *telemetry.InstanceReporter) *http.Server {
	if port <= 0 {
		return nil
	}
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/debug/telemetry", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, "", http.StatusOK, reporter.Snapshot())
	})
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
