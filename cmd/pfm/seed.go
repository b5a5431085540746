package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/boddenberg/pfm-staging-go/internal/config"
	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/infra/observability"
	"github.com/boddenberg/pfm-staging-go/internal/infra/sqlstore"
)

type seedCmd struct {
	currency   string
	balance    string
	externalID string
	categories string
}

func (*seedCmd) Name() string     { return "seed" }
func (*seedCmd) Synopsis() string { return "create an account and categories for a user" }
func (*seedCmd) Usage() string {
	return `pfm seed [-currency EUR] [-balance 0] [-external-id <provider id>] [-categories "Rent:expense,Salary:income"] <user-id> <account-name>

  Inserts one account and any listed categories. Categories without a type
  are expenses.
`
}

func (c *seedCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "currency", "EUR", "ISO currency of the account")
	f.StringVar(&c.balance, "balance", "0", "opening balance")
	f.StringVar(&c.externalID, "external-id", "", "aggregator account id, links bank-feed sync")
	f.StringVar(&c.categories, "categories", "", "comma separated name[:income|expense] list")
}

func (c *seedCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "expected <user-id> <account-name>")
		return subcommands.ExitUsageError
	}
	balance, err := decimal.NewFromString(c.balance)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -balance: %v\n", err)
		return subcommands.ExitUsageError
	}
	categories, err := parseCategories(c.categories)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
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

	userID := f.Arg(0)
	acct := &domain.Account{
		UserID:   userID,
		Name:     f.Arg(1),
		Currency: strings.ToUpper(c.currency),
		Balance:  domain.NewAmount(balance).Cents(),
	}
	if c.externalID != "" {
		acct.ExternalID = &c.externalID
	}
	created, err := store.CreateAccount(ctx, acct)
	if err != nil {
		logger.Error("failed to create account", zap.Error(err))
		return subcommands.ExitFailure
	}
	logger.Info("account created", zap.String("user_id", userID), zap.Int64("account_id", created.ID))

	for _, cat := range categories {
		cat.UserID = userID
		cc, err := store.CreateCategory(ctx, &cat)
		if err != nil {
			logger.Error("failed to create category", zap.String("name", cat.Name), zap.Error(err))
			return subcommands.ExitFailure
		}
		logger.Info("category created", zap.String("user_id", userID), zap.Int64("category_id", cc.ID), zap.String("name", cc.Name))
	}
	return subcommands.ExitSuccess
}

// parseCategories reads "Rent:expense,Salary:income".
func parseCategories(s string) ([]domain.Category, error) {
	var out []domain.Category
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, typ, _ := strings.Cut(item, ":")
		name, typ = strings.TrimSpace(name), strings.ToLower(strings.TrimSpace(typ))
		if typ == "" {
			typ = "expense"
		}
		if name == "" || (typ != "expense" && typ != "income") {
			return nil, fmt.Errorf("invalid category %q", item)
		}
		out = append(out, domain.Category{Name: name, Type: typ})
	}
	return out, nil
}
