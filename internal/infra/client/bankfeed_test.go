package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/infra/client"
	"github.com/boddenberg/pfm-staging-go/internal/infra/resilience"
)

func newTestClient(url string) *client.BankFeedClient {
	return client.NewBankFeedClient(
		&http.Client{Timeout: 2 * time.Second},
		url,
		"feed-key",
		resilience.NewCircuitBreaker("bankfeed-test"),
		resilience.Config{MaxRetries: 2, InitialBackoff: 5 * time.Millisecond, MaxConcurrency: 4},
	)
}

func TestFetchFeed_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/users/alice/feed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("since"); got != "2026-03-01" {
			t.Errorf("expected since=2026-03-01, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer feed-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"accounts":[{"id":"acc-1","name":"Checking","transactions":[
			{"id":"t1","posted":1772323200,"amount":"-12.30","description":"Coffee"}]}]}`))
	}))
	defer srv.Close()

	feed, err := newTestClient(srv.URL).FetchFeed(context.Background(), "alice",
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(feed.Accounts) != 1 || len(feed.Accounts[0].Transactions) != 1 {
		t.Fatalf("unexpected feed: %+v", feed)
	}
	if got := feed.Accounts[0].Transactions[0].Amount.String(); got != "-12.30" {
		t.Errorf("expected -12.30, got %s", got)
	}
}

func TestFetchFeed_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"accounts":[]}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).FetchFeed(context.Background(), "alice", time.Time{}); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestFetchFeed_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchFeed(context.Background(), "alice", time.Time{})

	var extErr *domain.ErrExternalService
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ErrExternalService, got %T: %v", err, err)
	}
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Errorf("expected wrapped ErrNotFound, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestFetchFeed_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchFeed(context.Background(), "alice", time.Time{})
	var extErr *domain.ErrExternalService
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
}
