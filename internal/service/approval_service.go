package service

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/infra/observability"
	"github.com/boddenberg/pfm-staging-go/internal/port"
)

var approvalTracer = otel.Tracer("service/approval")

// ApprovalService promotes pending staged rows into the ledger.
type ApprovalService struct {
	dir       port.Directory
	staging   port.StagingStore
	ledger    port.LedgerStore
	metrics   *observability.Metrics
	logger    *zap.Logger
	bulkLimit int
}

// NewApprovalService creates a new approval service.
func NewApprovalService(dir port.Directory, staging port.StagingStore, ledger port.LedgerStore, metrics *observability.Metrics, logger *zap.Logger, bulkLimit int) *ApprovalService {
	if bulkLimit < 1 {
		bulkLimit = 1
	}
	return &ApprovalService{dir: dir, staging: staging, ledger: ledger, metrics: metrics, logger: logger, bulkLimit: bulkLimit}
}

// Approve promotes a pending staged row. Overrides default to the staged
// values; the sign of the effective amount decides income vs expense and the
// ledger keeps the magnitude. The status change, ledger insert, balance
// update and link are one database transaction.
func (s *ApprovalService) Approve(ctx context.Context, userID string, stagingID int64, req domain.ApproveRequest) (*domain.Transaction, error) {
	ctx, span := approvalTracer.Start(ctx, "ApprovalService.Approve")
	defer span.End()
	span.SetAttributes(attribute.Int64("staging.id", stagingID))

	categoryID, err := parseCategoryID(req.CategoryID)
	if err != nil {
		return nil, err
	}

	row, err := ownedStaging(ctx, s.dir, s.staging, userID, stagingID)
	if err != nil {
		return nil, err
	}
	if row.Status != domain.StagingPending {
		return nil, &domain.ErrConflict{Message: "staged transaction is " + string(row.Status) + ", only pending rows can be approved"}
	}
	if _, err := ownedCategory(ctx, s.dir, userID, categoryID); err != nil {
		return nil, err
	}

	amount := row.Amount
	if req.Amount != nil {
		amount = *req.Amount
	}
	date := row.Date
	if req.Date != nil {
		if date, err = domain.ParseDate(*req.Date); err != nil {
			return nil, err
		}
	}
	description := row.Description
	if req.Description != nil {
		if d := strings.TrimSpace(*req.Description); d != "" {
			description = d
		}
	}

	magnitude, typ := domain.SplitSigned(amount.Cents())
	if magnitude.IsZero() {
		return nil, &domain.ErrValidation{Field: "amount", Message: "amount must not be zero"}
	}
	draft := &domain.TransactionDraft{
		AccountID:   row.AccountID,
		CategoryID:  categoryID,
		Date:        date,
		Amount:      magnitude,
		Type:        typ,
		Description: description,
		ExternalID:  row.ExternalID,
		Source:      domain.SourceStaging,
	}

	tx, err := s.ledger.PromoteStaging(ctx, row.ID, draft)
	if err != nil {
		return nil, err
	}
	invalidateAccounts(s.dir, userID)
	s.metrics.IncrStagingAction("approve")

	s.logger.Info("staged transaction approved",
		zap.String("user_id", userID),
		zap.Int64("staging_id", stagingID),
		zap.Int64("transaction_id", tx.ID),
		zap.String("type", string(tx.Type)),
	)
	return tx, nil
}

// BulkApprove approves each item independently.
func (s *ApprovalService) BulkApprove(ctx context.Context, userID string, items []domain.BulkApproveItem) *domain.BulkResult {
	byID := make(map[int64]domain.ApproveRequest, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if _, dup := byID[it.ID]; !dup {
			ids = append(ids, it.ID)
		}
		byID[it.ID] = it.ApproveRequest
	}
	return runBulk(ctx, s.logger, s.bulkLimit, ids, func(ctx context.Context, id int64) (*domain.Transaction, error) {
		return s.Approve(ctx, userID, id, byID[id])
	})
}

// parseCategoryID accepts a JSON number or a numeric string and requires a
// positive integer.
func parseCategoryID(v any) (int64, error) {
	invalid := &domain.ErrValidation{Field: "categoryId", Message: "categoryId must be a positive integer"}
	switch c := v.(type) {
	case nil:
		return 0, &domain.ErrValidation{Field: "categoryId", Message: "categoryId is required"}
	case float64:
		if c <= 0 || c != math.Trunc(c) || c > math.MaxInt64 {
			return 0, invalid
		}
		return int64(c), nil
	case int64:
		if c <= 0 {
			return 0, invalid
		}
		return c, nil
	case int:
		if c <= 0 {
			return 0, invalid
		}
		return int64(c), nil
	case json.Number:
		return parseCategoryID(c.String())
	case string:
		s := strings.TrimSpace(c)
		if s == "" {
			return 0, &domain.ErrValidation{Field: "categoryId", Message: "categoryId is required"}
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return 0, invalid
		}
		return id, nil
	default:
		return 0, invalid
	}
}
