// Package service provides the business logic layer (use cases) of the
// staging pipeline: ingestion with deduplication, review transitions,
// approval into the ledger, recurring expense checks and webhook delivery.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/infra/observability"
	"github.com/boddenberg/pfm-staging-go/internal/port"
)

var stagingTracer = otel.Tracer("service/staging")

const noDescription = "(no description)"

// StagingService owns staged candidates: ingestion, listing and the
// dismiss/restore/delete lifecycle.
type StagingService struct {
	dir       port.Directory
	store     port.StagingStore
	metrics   *observability.Metrics
	logger    *zap.Logger
	bulkLimit int
}

// NewStagingService creates a new staging service.
func NewStagingService(dir port.Directory, store port.StagingStore, metrics *observability.Metrics, logger *zap.Logger, bulkLimit int) *StagingService {
	if bulkLimit < 1 {
		bulkLimit = 1
	}
	return &StagingService{dir: dir, store: store, metrics: metrics, logger: logger, bulkLimit: bulkLimit}
}

// ============================================================
// Listing
// ============================================================

// List returns the user's staged rows. status defaults to pending; "all"
// disables the filter.
func (s *StagingService) List(ctx context.Context, userID string, accountID *int64, status string) ([]domain.StagedTransaction, error) {
	ctx, span := stagingTracer.Start(ctx, "StagingService.List")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" && status != domain.StatusAll && !domain.StagingStatus(status).Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: "status must be pending, dismissed, reconciled or all"}
	}
	if accountID != nil {
		if _, err := ownedAccount(ctx, s.dir, userID, *accountID); err != nil {
			return nil, err
		}
	}
	return s.store.ListStaging(ctx, userID, domain.StagingFilter{AccountID: accountID, Status: status})
}

// ============================================================
// Ingestion
// ============================================================

// Ingest stages candidates for one of the user's accounts. Candidates whose
// external id was already seen are skipped; invalid candidates are reported
// per item and do not fail the batch.
func (s *StagingService) Ingest(ctx context.Context, userID string, accountID int64, candidates []domain.StagingCandidate, source string) (*domain.IngestResult, error) {
	ctx, span := stagingTracer.Start(ctx, "StagingService.Ingest")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("account.id", accountID),
		attribute.Int("candidates", len(candidates)),
	)

	if _, err := ownedAccount(ctx, s.dir, userID, accountID); err != nil {
		return nil, err
	}
	return s.ingest(ctx, userID, accountID, candidates, source)
}

func (s *StagingService) ingest(ctx context.Context, userID string, accountID int64, candidates []domain.StagingCandidate, source string) (*domain.IngestResult, error) {
	start := time.Now()
	result := &domain.IngestResult{Rows: []domain.StagedTransaction{}}

	for i, c := range candidates {
		row, err := candidateRow(userID, accountID, c, source)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("candidate %d: %s", i, validationMessage(err)))
			continue
		}

		inserted, err := s.store.InsertStaging(ctx, row)
		if err != nil {
			return nil, fmt.Errorf("stage candidate %d: %w", i, err)
		}
		if inserted == nil {
			result.Skipped++
			continue
		}
		result.Staged++
		result.Rows = append(result.Rows, *inserted)
	}

	s.metrics.AddIngested(source, result.Staged, result.Skipped)
	s.metrics.RecordRequestDuration("staging.ingest", time.Since(start))
	s.logger.Info("staging batch ingested",
		zap.String("user_id", userID),
		zap.Int64("account_id", accountID),
		zap.String("source", source),
		zap.Int("staged", result.Staged),
		zap.Int("skipped", result.Skipped),
		zap.Int("invalid", len(result.Errors)),
	)
	return result, nil
}

func candidateRow(userID string, accountID int64, c domain.StagingCandidate, source string) (*domain.StagedTransaction, error) {
	date, err := domain.ParseDate(c.Date)
	if err != nil {
		return nil, err
	}
	if c.Amount.IsZero() {
		return nil, &domain.ErrValidation{Field: "amount", Message: "amount must not be zero"}
	}
	desc := strings.TrimSpace(c.Description)
	if desc == "" {
		desc = noDescription
	}
	var ext *string
	if c.ExternalID != nil {
		if trimmed := strings.TrimSpace(*c.ExternalID); trimmed != "" {
			ext = &trimmed
		}
	}
	return &domain.StagedTransaction{
		UserID:      userID,
		AccountID:   accountID,
		Date:        date,
		Amount:      c.Amount,
		Description: desc,
		ExternalID:  ext,
		Status:      domain.StagingPending,
		Source:      source,
	}, nil
}

func validationMessage(err error) string {
	var ve *domain.ErrValidation
	if errors.As(err, &ve) {
		return ve.Message
	}
	return err.Error()
}

// IngestFeed stages an aggregator document. Provider accounts are resolved
// to the user's accounts by external id, then by name; unresolved accounts
// are reported and skipped.
func (s *StagingService) IngestFeed(ctx context.Context, userID string, feed *domain.BankFeed) (*domain.FeedSyncResult, error) {
	ctx, span := stagingTracer.Start(ctx, "StagingService.IngestFeed")
	defer span.End()
	span.SetAttributes(attribute.Int("feed.accounts", len(feed.Accounts)))

	out := &domain.FeedSyncResult{IngestResult: domain.IngestResult{Rows: []domain.StagedTransaction{}}}
	for _, fa := range feed.Accounts {
		acct, err := s.resolveFeedAccount(ctx, userID, fa)
		if err != nil {
			return nil, err
		}
		if acct == nil {
			out.UnmatchedAccounts = append(out.UnmatchedAccounts, fa.ID)
			s.logger.Warn("bank feed account not linked",
				zap.String("user_id", userID),
				zap.String("provider_account_id", fa.ID),
			)
			continue
		}

		candidates := make([]domain.StagingCandidate, 0, len(fa.Transactions))
		var invalid []string
		for _, ft := range fa.Transactions {
			date, err := domain.ParsePosted(ft.Posted)
			if err != nil {
				invalid = append(invalid, fmt.Sprintf("%s/%s: %s", fa.ID, ft.ID, validationMessage(err)))
				continue
			}
			desc := ft.Description
			if strings.TrimSpace(desc) == "" {
				desc = ft.Payee
			}
			ext := ft.ID
			candidates = append(candidates, domain.StagingCandidate{
				Date: date, Amount: ft.Amount, Description: desc, ExternalID: &ext,
			})
		}

		res, err := s.ingest(ctx, userID, acct.ID, candidates, domain.SourceBankFeed)
		if err != nil {
			return nil, err
		}
		out.Merge(res)
		out.Errors = append(out.Errors, invalid...)
	}
	return out, nil
}

func (s *StagingService) resolveFeedAccount(ctx context.Context, userID string, fa domain.BankFeedAccount) (*domain.Account, error) {
	var nf *domain.ErrNotFound
	acct, err := s.dir.FindAccountByExternalID(ctx, userID, fa.ID)
	if err == nil {
		return acct, nil
	}
	if !errors.As(err, &nf) {
		return nil, err
	}
	if strings.TrimSpace(fa.Name) == "" {
		return nil, nil
	}
	acct, err = s.dir.FindAccountByName(ctx, userID, fa.Name)
	if err == nil {
		return acct, nil
	}
	if !errors.As(err, &nf) {
		return nil, err
	}
	return nil, nil
}

// ============================================================
// Lifecycle: dismiss / restore / delete
// ============================================================

// Dismiss hides a pending row from review. Dismissing a dismissed row is a
// no-op.
func (s *StagingService) Dismiss(ctx context.Context, userID string, stagingID int64) (*domain.StagedTransaction, error) {
	ctx, span := stagingTracer.Start(ctx, "StagingService.Dismiss")
	defer span.End()

	return s.transition(ctx, userID, stagingID, domain.StagingPending, domain.StagingDismissed, "dismiss")
}

// Restore brings a dismissed row back to review. Restoring a pending row is
// a no-op.
func (s *StagingService) Restore(ctx context.Context, userID string, stagingID int64) (*domain.StagedTransaction, error) {
	ctx, span := stagingTracer.Start(ctx, "StagingService.Restore")
	defer span.End()

	return s.transition(ctx, userID, stagingID, domain.StagingDismissed, domain.StagingPending, "restore")
}

func (s *StagingService) transition(ctx context.Context, userID string, stagingID int64, from, to domain.StagingStatus, action string) (*domain.StagedTransaction, error) {
	row, err := ownedStaging(ctx, s.dir, s.store, userID, stagingID)
	if err != nil {
		return nil, err
	}
	if row.Status == to {
		return row, nil
	}
	if row.Status != from {
		return nil, &domain.ErrConflict{Message: fmt.Sprintf("cannot %s a %s staged transaction", action, row.Status)}
	}

	changed, err := s.store.TransitionStaging(ctx, stagingID, from, to)
	if err != nil {
		return nil, err
	}
	current, err := s.store.GetStaging(ctx, stagingID)
	if err != nil {
		return nil, err
	}
	if !changed && current.Status != to {
		return nil, &domain.ErrConflict{Message: fmt.Sprintf("staged transaction %d changed concurrently (now %s)", stagingID, current.Status)}
	}
	if changed {
		s.metrics.IncrStagingAction(action)
		s.logger.Info("staged transaction transitioned",
			zap.String("user_id", userID),
			zap.String("action", action),
			zap.Int64("staging_id", stagingID),
		)
	}
	return current, nil
}

// Delete hard-deletes a staged row in any status.
func (s *StagingService) Delete(ctx context.Context, userID string, stagingID int64) error {
	ctx, span := stagingTracer.Start(ctx, "StagingService.Delete")
	defer span.End()

	if _, err := ownedStaging(ctx, s.dir, s.store, userID, stagingID); err != nil {
		return err
	}
	deleted, err := s.store.DeleteStaging(ctx, stagingID)
	if err != nil {
		return err
	}
	if !deleted {
		return &domain.ErrNotFound{Resource: "staged transaction", ID: fmt.Sprint(stagingID)}
	}
	s.metrics.IncrStagingAction("delete")
	s.logger.Info("staged transaction deleted",
		zap.String("user_id", userID),
		zap.Int64("staging_id", stagingID),
	)
	return nil
}

// ============================================================
// Bulk
// ============================================================

// BulkDismiss dismisses each id independently.
func (s *StagingService) BulkDismiss(ctx context.Context, userID string, ids []int64) *domain.BulkResult {
	return runBulk(ctx, s.logger, s.bulkLimit, ids, func(ctx context.Context, id int64) (*domain.Transaction, error) {
		_, err := s.Dismiss(ctx, userID, id)
		return nil, err
	})
}

// BulkDelete deletes each id independently.
func (s *StagingService) BulkDelete(ctx context.Context, userID string, ids []int64) *domain.BulkResult {
	return runBulk(ctx, s.logger, s.bulkLimit, ids, func(ctx context.Context, id int64) (*domain.Transaction, error) {
		return nil, s.Delete(ctx, userID, id)
	})
}

// runBulk processes ids with bounded concurrency. Each item is its own unit
// of work; failures never abort the batch. Items not started before ctx is
// cancelled are reported as failed.
func runBulk(ctx context.Context, logger *zap.Logger, limit int, ids []int64, fn func(ctx context.Context, id int64) (*domain.Transaction, error)) *domain.BulkResult {
	results := make([]domain.BulkItemResult, len(ids))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = itemResult(id, nil, err)
				return nil
			}
			tx, err := fn(ctx, id)
			if err != nil && publicMessage(err) == "internal error" {
				logger.Error("bulk item failed", zap.Int64("staging_id", id), zap.Error(err))
			}
			results[i] = itemResult(id, tx, err)
			return nil
		})
	}
	_ = g.Wait()

	out := &domain.BulkResult{Results: results}
	for _, r := range results {
		if r.Success {
			out.Succeeded++
		} else {
			out.Failed++
		}
	}
	return out
}

func itemResult(id int64, tx *domain.Transaction, err error) domain.BulkItemResult {
	if err != nil {
		return domain.BulkItemResult{ID: id, Error: publicMessage(err)}
	}
	return domain.BulkItemResult{ID: id, Success: true, Transaction: tx}
}

// publicMessage renders typed errors verbatim and hides everything else.
func publicMessage(err error) string {
	var (
		ve *domain.ErrValidation
		nf *domain.ErrNotFound
		fe *domain.ErrForbidden
		ce *domain.ErrConflict
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &nf), errors.As(err, &fe), errors.As(err, &ce):
		return err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "request cancelled"
	default:
		return "internal error"
	}
}
