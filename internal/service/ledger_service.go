package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/port"
)

var ledgerTracer = otel.Tracer("service/ledger")

// LedgerService is the shared create-transaction primitive. Webhook
// processors write through it.
type LedgerService struct {
	dir    port.Directory
	store  port.LedgerStore
	logger *zap.Logger
}

// NewLedgerService creates the ledger primitive.
func NewLedgerService(dir port.Directory, store port.LedgerStore, logger *zap.Logger) *LedgerService {
	return &LedgerService{dir: dir, store: store, logger: logger}
}

// CreateTransaction validates the draft against the owner's account and
// category and writes it with its balance effect.
func (s *LedgerService) CreateTransaction(ctx context.Context, userID string, draft domain.TransactionDraft) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.CreateTransaction")
	defer span.End()
	span.SetAttributes(attribute.Int64("account.id", draft.AccountID))

	if !draft.Type.Valid() {
		return nil, &domain.ErrValidation{Field: "type", Message: "type must be income or expense"}
	}
	draft.Amount = draft.Amount.Cents()
	if !draft.Amount.IsPositive() {
		return nil, &domain.ErrValidation{Field: "amount", Message: "amount must be greater than zero"}
	}
	date, err := domain.ParseDate(draft.Date)
	if err != nil {
		return nil, err
	}
	draft.Date = date
	draft.Description = strings.TrimSpace(draft.Description)
	if draft.Description == "" {
		draft.Description = noDescription
	}
	if draft.CategoryID <= 0 {
		return nil, &domain.ErrValidation{Field: "categoryId", Message: "categoryId is required"}
	}

	if _, err := ownedAccount(ctx, s.dir, userID, draft.AccountID); err != nil {
		return nil, err
	}
	if _, err := ownedCategory(ctx, s.dir, userID, draft.CategoryID); err != nil {
		return nil, err
	}

	tx, err := s.store.CreateTransaction(ctx, &draft)
	if err != nil {
		return nil, err
	}
	invalidateAccounts(s.dir, userID)

	s.logger.Info("ledger transaction created",
		zap.String("user_id", userID),
		zap.Int64("transaction_id", tx.ID),
		zap.Int64("account_id", tx.AccountID),
		zap.String("source", tx.Source),
	)
	return tx, nil
}
