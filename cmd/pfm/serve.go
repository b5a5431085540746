package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/boddenberg/pfm-staging-go/internal/config"
	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/handler"
	"github.com/boddenberg/pfm-staging-go/internal/infra/cache"
	"github.com/boddenberg/pfm-staging-go/internal/infra/client"
	"github.com/boddenberg/pfm-staging-go/internal/infra/observability"
	"github.com/boddenberg/pfm-staging-go/internal/infra/resilience"
	"github.com/boddenberg/pfm-staging-go/internal/infra/sqlstore"
	"github.com/boddenberg/pfm-staging-go/internal/port"
	"github.com/boddenberg/pfm-staging-go/internal/service"
	"github.com/boddenberg/pfm-staging-go/internal/webhook"
)

type serveCmd struct {
	migrate bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the HTTP API" }
func (*serveCmd) Usage() string {
	return `pfm serve [-migrate=false]

  Starts the staging, webhook and recurring-check API. Configuration comes
  from the environment (and an optional .env file).
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.migrate, "migrate", true, "apply database migrations before serving")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := serve(ctx, cfg, c.migrate, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func serve(ctx context.Context, cfg *config.Config, migrate bool, logger *zap.Logger) error {
	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("database_driver", cfg.DatabaseDriver),
		zap.Bool("redis_cache", cfg.RedisURL != ""),
		zap.Bool("bank_feed", cfg.BankFeedURL != ""),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Int("bulk_concurrency", cfg.BulkConcurrency),
	)

	matcherCfg, err := matcherConfig(cfg)
	if err != nil {
		return err
	}

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(ctx, "pfm-staging", cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Storage ---
	store, err := sqlstore.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if migrate {
		if err := store.Migrate(); err != nil {
			return err
		}
		logger.Info("database migrated", zap.String("driver", cfg.DatabaseDriver))
	}

	// --- Cache ---
	var (
		accountsCache   port.Cache[[]domain.Account]
		categoriesCache port.Cache[[]domain.Category]
	)
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		accountsCache = cache.NewRedis[[]domain.Account](rdb, "pfm:accounts:", cfg.CacheTTL, logger)
		categoriesCache = cache.NewRedis[[]domain.Category](rdb, "pfm:categories:", cfg.CacheTTL, logger)
		logger.Info("using redis directory cache")
	} else {
		accounts := cache.New[[]domain.Account](cfg.CacheTTL)
		categories := cache.New[[]domain.Category](cfg.CacheTTL)
		defer accounts.Close()
		defer categories.Close()
		accountsCache, categoriesCache = accounts, categories
	}
	dir := service.NewCachedDirectory(store, accountsCache, categoriesCache, metrics)

	// --- Bank feed client ---
	var fetcher port.BankFeedFetcher
	if cfg.BankFeedURL != "" {
		httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
		resilienceCfg := resilience.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxConcurrency: cfg.MaxConcurrency,
		}
		fetcher = client.NewBankFeedClient(httpClient, cfg.BankFeedURL, cfg.BankFeedAPIKey,
			resilience.NewCircuitBreaker("bank-feed"), resilienceCfg)
	} else {
		logger.Warn("bank feed: BANKFEED_URL not set, sync unavailable")
	}

	// --- Services ---
	staging := service.NewStagingService(dir, store, metrics, logger, cfg.BulkConcurrency)
	ledger := service.NewLedgerService(dir, store, logger)

	router := handler.NewRouter(handler.Deps{
		Directory: dir,
		Staging:   staging,
		Approval:  service.NewApprovalService(dir, store, store, metrics, logger, cfg.BulkConcurrency),
		Recurring: service.NewRecurringService(dir, store, store, matcherCfg, metrics, logger),
		Webhooks:  service.NewWebhookService(store, dir, ledger, staging, webhook.DefaultRegistry(), metrics, logger),
		BankFeed:  service.NewBankFeedService(fetcher, staging, metrics, logger),
		Tokens:    service.NewTokenService(cfg.JWTSecret, cfg.JWTAccessTTL),
		Database:  store,

		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		WebhookMaxBodyBytes: cfg.WebhookMaxBodyBytes,
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func matcherConfig(cfg *config.Config) (service.MatcherConfig, error) {
	abs, err := decimal.NewFromString(cfg.MatchAmountToleranceAbs)
	if err != nil {
		return service.MatcherConfig{}, fmt.Errorf("MATCH_AMOUNT_TOLERANCE_ABS: %w", err)
	}
	m := service.DefaultMatcherConfig()
	m.DateToleranceDays = cfg.MatchDateToleranceDays
	m.AmountTolerancePct = cfg.MatchAmountTolerancePct
	m.AmountToleranceAbs = abs
	return m, nil
}
