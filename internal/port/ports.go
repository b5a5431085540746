// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// Directory resolves accounts and categories, always scoped to a user.
type Directory interface {
	ListAccounts(ctx context.Context, userID string) ([]domain.Account, error)
	GetAccount(ctx context.Context, accountID int64) (*domain.Account, error)
	FindAccountByName(ctx context.Context, userID, name string) (*domain.Account, error)
	FindAccountByExternalID(ctx context.Context, userID, externalID string) (*domain.Account, error)
	ListCategories(ctx context.Context, userID string) ([]domain.Category, error)
	GetCategory(ctx context.Context, categoryID int64) (*domain.Category, error)
	FindCategoryByName(ctx context.Context, userID, name string) (*domain.Category, error)
}

// StagingStore persists staged candidates.
type StagingStore interface {
	ListStaging(ctx context.Context, userID string, filter domain.StagingFilter) ([]domain.StagedTransaction, error)
	GetStaging(ctx context.Context, stagingID int64) (*domain.StagedTransaction, error)
	// InsertStaging stages a candidate. It returns (nil, nil) when the
	// (account, external id) pair has been seen before.
	InsertStaging(ctx context.Context, row *domain.StagedTransaction) (*domain.StagedTransaction, error)
	// TransitionStaging moves a row from one status to another only if it is
	// currently in the expected status. It reports whether the row changed.
	TransitionStaging(ctx context.Context, stagingID int64, from, to domain.StagingStatus) (bool, error)
	DeleteStaging(ctx context.Context, stagingID int64) (bool, error)
}

// LedgerStore persists permanent ledger rows. Every write adjusts the
// account balance in the same database transaction.
type LedgerStore interface {
	CreateTransaction(ctx context.Context, draft *domain.TransactionDraft) (*domain.Transaction, error)
	// PromoteStaging reconciles a pending staged row and creates its ledger
	// row atomically.
	PromoteStaging(ctx context.Context, stagingID int64, draft *domain.TransactionDraft) (*domain.Transaction, error)
	ListExpenseTransactions(ctx context.Context, userID, fromDate, toDate string) ([]domain.Transaction, error)
}

// RecurringStore persists recurring expense definitions.
type RecurringStore interface {
	ListRecurringExpenses(ctx context.Context, userID string, activeOnly bool) ([]domain.RecurringExpense, error)
	CreateRecurringExpense(ctx context.Context, exp *domain.RecurringExpense) (*domain.RecurringExpense, error)
}

// WebhookStore persists webhook configuration and the delivery audit trail.
type WebhookStore interface {
	GetWebhook(ctx context.Context, webhookID string) (*domain.Webhook, error)
	ListWebhooks(ctx context.Context, userID string) ([]domain.Webhook, error)
	CreateWebhook(ctx context.Context, wh *domain.Webhook) (*domain.Webhook, error)
	SetWebhookActive(ctx context.Context, webhookID string, active bool) error
	TouchWebhook(ctx context.Context, webhookID string, at time.Time) error
	AppendWebhookLog(ctx context.Context, entry *domain.WebhookLog) error
	ListWebhookLogs(ctx context.Context, webhookID string, limit int) ([]domain.WebhookLog, error)
}

// BankFeedFetcher pulls the aggregator document for a user.
type BankFeedFetcher interface {
	FetchFeed(ctx context.Context, userID string, since time.Time) (*domain.BankFeed, error)
}

// TransactionCreator is the shared create-transaction primitive handed to
// webhook processors.
type TransactionCreator interface {
	CreateTransaction(ctx context.Context, userID string, draft domain.TransactionDraft) (*domain.Transaction, error)
}

// FeedIngester stages an aggregator document through the deduplicator.
type FeedIngester interface {
	IngestFeed(ctx context.Context, userID string, feed *domain.BankFeed) (*domain.FeedSyncResult, error)
}
