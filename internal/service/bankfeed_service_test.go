package service_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/infra/observability"
	"github.com/boddenberg/pfm-staging-go/internal/service"
)

func TestBankFeedSync_NotConfigured(t *testing.T) {
	m := newFixture()
	svc := service.NewBankFeedService(nil, newStagingService(m), observability.NewMetrics(), zap.NewNop())

	_, err := svc.Sync(context.Background(), "u1", nil)
	expectErr[*domain.ErrServiceUnavailable](t, err)
}

func TestBankFeedSync_StagesFeed(t *testing.T) {
	m := newFixture()
	m.accounts[1].ExternalID = strPtr("prov-1")
	fetcher := &mockFetcher{feed: &domain.BankFeed{Accounts: []domain.BankFeedAccount{{
		ID: "prov-1",
		Transactions: []domain.BankFeedTransaction{
			{ID: "a", Posted: "2024-03-01", Amount: domain.MustAmount("-9.99"), Description: "Music"},
		},
	}}}}
	svc := service.NewBankFeedService(fetcher, newStagingService(m), observability.NewMetrics(), zap.NewNop())
	since := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	res, err := svc.Sync(context.Background(), "u1", &since)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Staged != 1 || !fetcher.since.Equal(since) {
		t.Errorf("unexpected result %+v (since %v)", res, fetcher.since)
	}
}

func TestBankFeedSync_FetchError(t *testing.T) {
	m := newFixture()
	fetcher := &mockFetcher{err: &domain.ErrExternalService{Service: "bank_feed", Err: errBoom}}
	metrics := observability.NewMetrics()
	svc := service.NewBankFeedService(fetcher, newStagingService(m), metrics, zap.NewNop())

	before := time.Now()
	_, err := svc.Sync(context.Background(), "u1", nil)
	expectErr[*domain.ErrExternalService](t, err)
	if fetcher.since.After(before.Add(-29 * 24 * time.Hour)) {
		t.Errorf("expected default window of 30 days, got since %v", fetcher.since)
	}
	if len(m.staging) != 0 {
		t.Error("expected nothing staged")
	}
}
