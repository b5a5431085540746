package service_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/infra/observability"
	"github.com/boddenberg/pfm-staging-go/internal/service"
)

func newFixture() *memStore {
	m := newMemStore()
	m.addAccount(1, "u1", "Main Checking")
	m.addAccount(3, "u1", "Savings")
	m.addAccount(2, "u2", "Other User")
	m.addCategory(10, "u1", "Dining Out")
	m.addCategory(11, "u1", "Rent")
	m.addCategory(20, "u2", "Theirs")
	return m
}

func newStagingService(m *memStore) *service.StagingService {
	return service.NewStagingService(m, m, observability.NewMetrics(), zap.NewNop(), 4)
}

func expectErr[T error](t *testing.T, err error) T {
	t.Helper()
	var target T
	if !errors.As(err, &target) {
		t.Fatalf("expected %T, got %v", target, err)
	}
	return target
}

func candidates() []domain.StagingCandidate {
	return []domain.StagingCandidate{
		{Date: "2024-03-01", Amount: domain.MustAmount("-12.30"), Description: "Coffee", ExternalID: strPtr("ext-1")},
		{Date: "01/03/2024", Amount: domain.MustAmount("1500"), Description: "Salary", ExternalID: strPtr("ext-2")},
		{Date: "2024-03-02", Amount: domain.MustAmount("-3"), Description: "  "},
	}
}

func TestIngest_IsIdempotentByExternalID(t *testing.T) {
	m := newFixture()
	svc := newStagingService(m)
	ctx := context.Background()

	first, err := svc.Ingest(ctx, "u1", 1, candidates(), domain.SourceManual)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if first.Staged != 3 || first.Skipped != 0 {
		t.Fatalf("expected 3 staged, got %+v", first)
	}
	if first.Rows[1].Date != "2024-03-01" {
		t.Errorf("expected normalized date, got %s", first.Rows[1].Date)
	}
	if first.Rows[2].Description != "(no description)" {
		t.Errorf("expected placeholder description, got %q", first.Rows[2].Description)
	}

	second, err := svc.Ingest(ctx, "u1", 1, candidates()[:2], domain.SourceManual)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if second.Staged != 0 || second.Skipped != 2 {
		t.Errorf("expected re-ingest to skip everything, got %+v", second)
	}
}

func TestIngest_SameExternalIDOnAnotherAccountIsStaged(t *testing.T) {
	m := newFixture()
	svc := newStagingService(m)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, "u1", 1, candidates()[:1], domain.SourceManual); err != nil {
		t.Fatal(err)
	}
	res, err := svc.Ingest(ctx, "u1", 3, candidates()[:1], domain.SourceManual)
	if err != nil {
		t.Fatal(err)
	}
	if res.Staged != 1 {
		t.Errorf("expected staging on a different account, got %+v", res)
	}
}

func TestIngest_InvalidCandidatesReportedPerItem(t *testing.T) {
	svc := newStagingService(newFixture())
	res, err := svc.Ingest(context.Background(), "u1", 1, []domain.StagingCandidate{
		{Date: "not a date", Amount: domain.MustAmount("1")},
		{Date: "2024-03-01", Amount: domain.MustAmount("0")},
		{Date: "2024-03-01", Amount: domain.MustAmount("5")},
	}, domain.SourceManual)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Staged != 1 || len(res.Errors) != 2 {
		t.Errorf("expected 1 staged and 2 errors, got %+v", res)
	}
}

func TestIngest_ForeignAccountForbidden(t *testing.T) {
	svc := newStagingService(newFixture())
	_, err := svc.Ingest(context.Background(), "u1", 2, candidates(), domain.SourceManual)
	expectErr[*domain.ErrForbidden](t, err)

	_, err = svc.Ingest(context.Background(), "u1", 99, candidates(), domain.SourceManual)
	expectErr[*domain.ErrNotFound](t, err)
}

func TestList_FiltersAndValidatesStatus(t *testing.T) {
	m := newFixture()
	svc := newStagingService(m)
	ctx := context.Background()
	res, _ := svc.Ingest(ctx, "u1", 1, candidates(), domain.SourceManual)
	if _, err := svc.Dismiss(ctx, "u1", res.Rows[0].ID); err != nil {
		t.Fatal(err)
	}

	pending, err := svc.List(ctx, "u1", nil, "")
	if err != nil || len(pending) != 2 {
		t.Fatalf("expected 2 pending rows, got %d (%v)", len(pending), err)
	}
	all, _ := svc.List(ctx, "u1", nil, "ALL")
	if len(all) != 3 {
		t.Errorf("expected 3 rows, got %d", len(all))
	}
	other, _ := svc.List(ctx, "u2", nil, "all")
	if len(other) != 0 {
		t.Errorf("expected no rows for another user, got %d", len(other))
	}

	_, err = svc.List(ctx, "u1", nil, "bogus")
	expectErr[*domain.ErrValidation](t, err)

	foreign := int64(2)
	_, err = svc.List(ctx, "u1", &foreign, "")
	expectErr[*domain.ErrForbidden](t, err)
}

func TestDismissRestore_Transitions(t *testing.T) {
	m := newFixture()
	svc := newStagingService(m)
	ctx := context.Background()
	res, _ := svc.Ingest(ctx, "u1", 1, candidates()[:1], domain.SourceManual)
	id := res.Rows[0].ID

	row, err := svc.Dismiss(ctx, "u1", id)
	if err != nil || row.Status != domain.StagingDismissed {
		t.Fatalf("expected dismissed, got %+v (%v)", row, err)
	}
	row, err = svc.Dismiss(ctx, "u1", id)
	if err != nil || row.Status != domain.StagingDismissed {
		t.Fatalf("expected repeat dismiss to be a no-op, got %+v (%v)", row, err)
	}
	row, err = svc.Restore(ctx, "u1", id)
	if err != nil || row.Status != domain.StagingPending {
		t.Fatalf("expected pending, got %+v (%v)", row, err)
	}

	_, err = svc.Dismiss(ctx, "u2", id)
	expectErr[*domain.ErrForbidden](t, err)

	m.staging[id].Status = domain.StagingReconciled
	_, err = svc.Restore(ctx, "u1", id)
	expectErr[*domain.ErrConflict](t, err)
	_, err = svc.Dismiss(ctx, "u1", id)
	expectErr[*domain.ErrConflict](t, err)
}

func TestDelete_AnyStatus(t *testing.T) {
	m := newFixture()
	svc := newStagingService(m)
	ctx := context.Background()
	res, _ := svc.Ingest(ctx, "u1", 1, candidates()[:1], domain.SourceManual)
	id := res.Rows[0].ID
	m.staging[id].Status = domain.StagingReconciled

	if err := svc.Delete(ctx, "u1", id); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	err := svc.Delete(ctx, "u1", id)
	expectErr[*domain.ErrNotFound](t, err)
}

func TestBulkDismiss_PerItemResults(t *testing.T) {
	m := newFixture()
	svc := newStagingService(m)
	ctx := context.Background()
	res, _ := svc.Ingest(ctx, "u1", 1, candidates(), domain.SourceManual)
	ids := []int64{res.Rows[0].ID, 9999, res.Rows[1].ID}

	out := svc.BulkDismiss(ctx, "u1", ids)
	if out.Succeeded != 2 || out.Failed != 1 {
		t.Fatalf("expected 2 ok / 1 failed, got %+v", out)
	}
	if out.Results[1].ID != 9999 || out.Results[1].Success || out.Results[1].Error == "" {
		t.Errorf("expected missing id to fail with a message, got %+v", out.Results[1])
	}
}

func TestBulkDelete_CancelledContext(t *testing.T) {
	m := newFixture()
	svc := newStagingService(m)
	res, _ := svc.Ingest(context.Background(), "u1", 1, candidates(), domain.SourceManual)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := svc.BulkDelete(ctx, "u1", []int64{res.Rows[0].ID})
	if out.Failed != 1 || out.Results[0].Error != "request cancelled" {
		t.Errorf("expected cancelled item, got %+v", out)
	}
	if len(m.staging) != 3 {
		t.Errorf("expected nothing deleted, got %d rows", len(m.staging))
	}
}

func TestIngestFeed_ResolvesAccountsAndReportsUnmatched(t *testing.T) {
	m := newFixture()
	m.accounts[1].ExternalID = strPtr("prov-1")
	svc := newStagingService(m)

	feed := &domain.BankFeed{Accounts: []domain.BankFeedAccount{
		{ID: "prov-1", Name: "ignored", Transactions: []domain.BankFeedTransaction{
			{ID: "t1", Posted: float64(1709251200), Amount: domain.MustAmount("-12.30"), Description: "Coffee"},
			{ID: "t2", Posted: "2024-03-02", Amount: domain.MustAmount("-5"), Payee: "Bakery"},
			{ID: "t3", Posted: "yesterday-ish", Amount: domain.MustAmount("-1")},
		}},
		{ID: "prov-2", Name: "savings", Transactions: []domain.BankFeedTransaction{
			{ID: "t4", Posted: "2024-03-03", Amount: domain.MustAmount("100")},
		}},
		{ID: "prov-x", Name: "Unknown", Transactions: []domain.BankFeedTransaction{
			{ID: "t5", Posted: "2024-03-03", Amount: domain.MustAmount("1")},
		}},
	}}

	res, err := svc.IngestFeed(context.Background(), "u1", feed)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Staged != 3 || len(res.Errors) != 1 {
		t.Fatalf("expected 3 staged and 1 error, got %+v", res)
	}
	if len(res.UnmatchedAccounts) != 1 || res.UnmatchedAccounts[0] != "prov-x" {
		t.Errorf("expected prov-x unmatched, got %v", res.UnmatchedAccounts)
	}
	if res.Rows[0].Date != "2024-03-01" || res.Rows[0].Source != domain.SourceBankFeed {
		t.Errorf("unexpected first row: %+v", res.Rows[0])
	}
	if res.Rows[1].Description != "Bakery" {
		t.Errorf("expected payee fallback, got %q", res.Rows[1].Description)
	}
	if res.Rows[2].AccountID != 3 {
		t.Errorf("expected name match to Savings, got account %d", res.Rows[2].AccountID)
	}

	again, _ := svc.IngestFeed(context.Background(), "u1", feed)
	if again.Staged != 0 || again.Skipped != 3 {
		t.Errorf("expected redelivery to skip everything, got %+v", again)
	}
}
