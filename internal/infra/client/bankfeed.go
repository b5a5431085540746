// Package client holds the outbound HTTP clients. Every call goes through a
// bulkhead, a circuit breaker and retry with backoff.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/infra/resilience"
)

var tracer = otel.Tracer("client")

// maxFeedBytes caps the aggregator response body.
const maxFeedBytes = 16 << 20

// BankFeedClient pulls account and transaction data from the bank
// aggregator.
type BankFeedClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	cfg        resilience.Config
}

// NewBankFeedClient creates a new BankFeedClient.
func NewBankFeedClient(httpClient *http.Client, baseURL, apiKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *BankFeedClient {
	return &BankFeedClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		cb:         cb,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:        cfg,
	}
}

// FetchFeed fetches the user's accounts with transactions posted on or after
// since, with retry, circuit breaker, and tracing.
func (c *BankFeedClient) FetchFeed(ctx context.Context, userID string, since time.Time) (*domain.BankFeed, error) {
	ctx, span := tracer.Start(ctx, "BankFeedClient.FetchFeed")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if err := c.bulkhead.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.bulkhead.Release()

	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.Format(domain.DateLayout))
	}
	endpoint := fmt.Sprintf("%s/v1/users/%s/feed", c.baseURL, url.PathEscape(userID))
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	result, err := c.cb.Execute(func() (any, error) {
		var feed domain.BankFeed
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return resilience.Permanent(err)
			}
			req.Header.Set("Accept", "application/json")
			if c.apiKey != "" {
				req.Header.Set("Authorization", "Bearer "+c.apiKey)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusNotFound:
				return resilience.Permanent(&domain.ErrNotFound{Resource: "bank feed", ID: userID})
			case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
				return resilience.Permanent(fmt.Errorf("bank feed API returned status %d", resp.StatusCode))
			case resp.StatusCode != http.StatusOK:
				return fmt.Errorf("bank feed API returned status %d", resp.StatusCode)
			}

			feed = domain.BankFeed{}
			if err := json.NewDecoder(io.LimitReader(resp.Body, maxFeedBytes)).Decode(&feed); err != nil {
				return resilience.Permanent(fmt.Errorf("decode bank feed: %w", err))
			}
			return nil
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return &feed, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, &domain.ErrCircuitOpen{Service: "bankfeed"}
		}
		return nil, &domain.ErrExternalService{Service: "bankfeed", Err: err}
	}

	feed := result.(*domain.BankFeed)
	span.SetAttributes(attribute.Int("feed.accounts", len(feed.Accounts)))
	return feed, nil
}
