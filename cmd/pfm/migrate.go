package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	"github.com/boddenberg/pfm-staging-go/internal/config"
	"github.com/boddenberg/pfm-staging-go/internal/infra/observability"
	"github.com/boddenberg/pfm-staging-go/internal/infra/sqlstore"
)

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply database migrations and exit" }
func (*migrateCmd) Usage() string {
	return `pfm migrate

  Applies every pending migration for DATABASE_DRIVER / DATABASE_URL.
`
}

func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	store, err := sqlstore.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to open database", zap.Error(err))
		return subcommands.ExitFailure
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		logger.Error("migration failed", zap.Error(err))
		return subcommands.ExitFailure
	}
	logger.Info("database migrated", zap.String("driver", cfg.DatabaseDriver))
	return subcommands.ExitSuccess
}
