package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/infra/observability"
	"github.com/boddenberg/pfm-staging-go/internal/port"
)

var bankFeedTracer = otel.Tracer("service/bankfeed")

// defaultSyncWindow is how far back a sync looks when no since is given.
const defaultSyncWindow = 30 * 24 * time.Hour

// BankFeedService pulls the aggregator feed and stages it.
type BankFeedService struct {
	fetcher port.BankFeedFetcher
	feeds   port.FeedIngester
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewBankFeedService creates a bank feed service. fetcher may be nil when
// no aggregator is configured.
func NewBankFeedService(fetcher port.BankFeedFetcher, feeds port.FeedIngester, metrics *observability.Metrics, logger *zap.Logger) *BankFeedService {
	return &BankFeedService{fetcher: fetcher, feeds: feeds, metrics: metrics, logger: logger, now: time.Now}
}

// Sync fetches the user's feed since the given time and stages every new
// transaction.
func (s *BankFeedService) Sync(ctx context.Context, userID string, since *time.Time) (*domain.FeedSyncResult, error) {
	ctx, span := bankFeedTracer.Start(ctx, "BankFeedService.Sync")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if s.fetcher == nil {
		return nil, &domain.ErrServiceUnavailable{Service: "bank_feed"}
	}

	from := s.now().Add(-defaultSyncWindow)
	if since != nil {
		from = *since
	}

	start := time.Now()
	feed, err := s.fetcher.FetchFeed(ctx, userID, from)
	s.metrics.RecordRequestDuration("bankfeed.fetch", time.Since(start))
	if err != nil {
		var nf *domain.ErrNotFound
		if !errors.As(err, &nf) {
			s.metrics.IncrExternalError("bank_feed")
		}
		s.logger.Warn("bank feed fetch failed", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	result, err := s.feeds.IngestFeed(ctx, userID, feed)
	if err != nil {
		return nil, err
	}
	s.logger.Info("bank feed synced",
		zap.String("user_id", userID),
		zap.Int("staged", result.Staged),
		zap.Int("skipped", result.Skipped),
		zap.Strings("unmatched_accounts", result.UnmatchedAccounts),
	)
	return result, nil
}
