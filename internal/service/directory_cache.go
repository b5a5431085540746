package service

import (
	"context"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/infra/observability"
	"github.com/boddenberg/pfm-staging-go/internal/port"
)

// CachedDirectory caches per-user account and category lists. Point lookups
// go straight to the underlying directory.
type CachedDirectory struct {
	port.Directory
	accounts   port.Cache[[]domain.Account]
	categories port.Cache[[]domain.Category]
	metrics    *observability.Metrics
}

// NewCachedDirectory wraps dir with the given caches.
func NewCachedDirectory(dir port.Directory, accounts port.Cache[[]domain.Account], categories port.Cache[[]domain.Category], metrics *observability.Metrics) *CachedDirectory {
	return &CachedDirectory{Directory: dir, accounts: accounts, categories: categories, metrics: metrics}
}

func (d *CachedDirectory) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	if cached, ok := d.accounts.Get(userID); ok {
		d.metrics.IncrCacheHit("accounts")
		return cached, nil
	}
	d.metrics.IncrCacheMiss("accounts")

	accounts, err := d.Directory.ListAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	d.accounts.Set(userID, accounts)
	return accounts, nil
}

func (d *CachedDirectory) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	if cached, ok := d.categories.Get(userID); ok {
		d.metrics.IncrCacheHit("categories")
		return cached, nil
	}
	d.metrics.IncrCacheMiss("categories")

	categories, err := d.Directory.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	d.categories.Set(userID, categories)
	return categories, nil
}

// InvalidateAccounts drops the cached account list after a balance change.
func (d *CachedDirectory) InvalidateAccounts(userID string) {
	d.accounts.Delete(userID)
}
