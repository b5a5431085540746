package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/handler"
	"github.com/boddenberg/pfm-staging-go/internal/infra/cache"
	"github.com/boddenberg/pfm-staging-go/internal/infra/client"
	"github.com/boddenberg/pfm-staging-go/internal/infra/observability"
	"github.com/boddenberg/pfm-staging-go/internal/infra/resilience"
	"github.com/boddenberg/pfm-staging-go/internal/infra/sqlstore"
	"github.com/boddenberg/pfm-staging-go/internal/service"
	"github.com/boddenberg/pfm-staging-go/internal/webhook"
)

// TestIntegration_FeedToLedger spins up a mock aggregator and walks a feed
// through sync, review, approval and the recurring check against SQLite.
func TestIntegration_FeedToLedger(t *testing.T) {
	ctx := context.Background()
	today := time.Now().UTC()
	gymDay := today.AddDate(0, 0, -3)

	// --- Mock aggregator ---
	var feedCalls int32
	feedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&feedCalls, 1)
		if r.Header.Get("Authorization") != "Bearer integration-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		feed := domain.BankFeed{Accounts: []domain.BankFeedAccount{
			{ID: "prov-1", Name: "Main Checking", Transactions: []domain.BankFeedTransaction{
				{ID: "t-gym", Posted: gymDay.Format(domain.DateLayout), Amount: domain.MustAmount("-49.50"), Description: "City Gym"},
				{ID: "t-pay", Posted: today.Format(domain.DateLayout), Amount: domain.MustAmount("1200"), Payee: "ACME Payroll"},
			}},
			{ID: "prov-2", Name: "Brokerage"},
		}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(feed)
	}))
	defer feedServer.Close()

	// --- Storage ---
	logger := zap.NewNop()
	store, err := sqlstore.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "integration.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	account, err := store.CreateAccount(ctx, &domain.Account{UserID: "carol", Name: "Main Checking", Currency: "USD", Balance: domain.MustAmount("500")})
	if err != nil {
		t.Fatal(err)
	}
	gym, err := store.CreateCategory(ctx, &domain.Category{UserID: "carol", Name: "Fitness", Type: "expense"})
	if err != nil {
		t.Fatal(err)
	}

	// --- Build services ---
	metrics := observability.NewMetrics()
	cb := resilience.NewCircuitBreaker("integration")
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: 10 * time.Millisecond, MaxConcurrency: 10}
	httpClient := &http.Client{Timeout: 5 * time.Second}

	dir := service.NewCachedDirectory(store, cache.New[[]domain.Account](time.Minute), cache.New[[]domain.Category](time.Minute), metrics)
	staging := service.NewStagingService(dir, store, metrics, logger, 4)
	tokens := service.NewTokenService("integration-secret", time.Hour)

	router := handler.NewRouter(handler.Deps{
		Directory: dir,
		Staging:   staging,
		Approval:  service.NewApprovalService(dir, store, store, metrics, logger, 4),
		Recurring: service.NewRecurringService(dir, store, store, service.DefaultMatcherConfig(), metrics, logger),
		Webhooks:  service.NewWebhookService(store, dir, service.NewLedgerService(dir, store, logger), staging, webhook.DefaultRegistry(), metrics, logger),
		BankFeed: service.NewBankFeedService(
			client.NewBankFeedClient(httpClient, feedServer.URL, "integration-key", cb, cfg),
			staging, metrics, logger,
		),
		Tokens:   tokens,
		Database: store,
	}, metrics, logger)

	token, _, err := tokens.IssueAccessToken("carol")
	if err != nil {
		t.Fatal(err)
	}
	call := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			json.NewEncoder(&buf).Encode(body)
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	// --- Recurring definition ---
	recurring := map[string]any{
		"categoryId": gym.ID, "accountId": account.ID, "name": "Gym",
		"amount": "50.00", "dayOfMonth": gymDay.Day(), "startDate": gymDay.Format(domain.DateLayout),
	}
	if rec := call(http.MethodPost, "/v1/recurring", recurring); rec.Code != http.StatusCreated {
		t.Fatalf("create recurring: expected 201, got %d. Body: %s", rec.Code, rec.Body.String())
	}
	checks := decodeChecks(t, call(http.MethodGet, "/v1/recurring/checks", nil))
	if len(checks) != 1 || checks[0].Status != domain.CheckMissing {
		t.Fatalf("expected one missing check before approval, got %+v", checks)
	}

	// --- Sync ---
	rec := call(http.MethodPost, "/v1/bank-feed/sync", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}
	var synced domain.FeedSyncResult
	if err := json.NewDecoder(rec.Body).Decode(&synced); err != nil {
		t.Fatalf("failed to decode sync response: %v", err)
	}
	if synced.Staged != 2 {
		t.Fatalf("expected 2 staged rows, got %+v", synced)
	}
	if len(synced.UnmatchedAccounts) != 1 || synced.UnmatchedAccounts[0] != "prov-2" {
		t.Errorf("expected prov-2 unmatched, got %v", synced.UnmatchedAccounts)
	}

	var again domain.FeedSyncResult
	json.NewDecoder(call(http.MethodPost, "/v1/bank-feed/sync", nil).Body).Decode(&again)
	if again.Staged != 0 || again.Skipped != 2 {
		t.Errorf("expected second sync to skip both rows, got %+v", again)
	}
	if atomic.LoadInt32(&feedCalls) != 2 {
		t.Errorf("expected 2 aggregator calls, got %d", feedCalls)
	}

	// --- Review ---
	var gymRow *domain.StagedTransaction
	for i := range synced.Rows {
		if synced.Rows[i].Description == "City Gym" {
			gymRow = &synced.Rows[i]
		}
	}
	if gymRow == nil {
		t.Fatalf("gym row not staged: %+v", synced.Rows)
	}
	rec = call(http.MethodPost, fmt.Sprintf("/v1/staging/%d/approve", gymRow.ID), map[string]any{"categoryId": gym.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("approve: expected 201, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	var accounts []domain.Account
	json.NewDecoder(call(http.MethodGet, "/v1/accounts", nil).Body).Decode(&accounts)
	if len(accounts) != 1 || accounts[0].Balance.String() != "450.50" {
		t.Errorf("expected balance 450.50 after approval, got %+v", accounts)
	}

	// --- Recurring check now matches the approved transaction ---
	checks = decodeChecks(t, call(http.MethodGet, "/v1/recurring/checks", nil))
	if len(checks) != 1 || checks[0].Status != domain.CheckMatched {
		t.Fatalf("expected one matched check, got %+v", checks)
	}
	if checks[0].MatchedAmount == nil || checks[0].MatchedAmount.String() != "49.50" {
		t.Errorf("expected match against 49.50, got %+v", checks[0])
	}

	fmt.Printf("Integration test passed: staged=%d matched=%s\n", synced.Staged, checks[0].Status)
}

func decodeChecks(t *testing.T, rec *httptest.ResponseRecorder) []domain.RecurringCheck {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("checks: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}
	var res domain.MatchResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode checks: %v", err)
	}
	return res.Checks
}
