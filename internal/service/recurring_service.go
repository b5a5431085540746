package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/infra/observability"
	"github.com/boddenberg/pfm-staging-go/internal/port"
)

var recurringTracer = otel.Tracer("service/recurring")

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

// RecurringService manages recurring expense definitions and runs the
// matcher against the ledger.
type RecurringService struct {
	dir     port.Directory
	store   port.RecurringStore
	ledger  port.LedgerStore
	cfg     MatcherConfig
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewRecurringService creates a new recurring expense service.
func NewRecurringService(dir port.Directory, store port.RecurringStore, ledger port.LedgerStore, cfg MatcherConfig, metrics *observability.Metrics, logger *zap.Logger) *RecurringService {
	return &RecurringService{
		dir: dir, store: store, ledger: ledger, cfg: cfg,
		metrics: metrics, logger: logger, now: time.Now,
	}
}

// List returns every definition of the user, active or not.
func (s *RecurringService) List(ctx context.Context, userID string) ([]domain.RecurringExpense, error) {
	ctx, span := recurringTracer.Start(ctx, "RecurringService.List")
	defer span.End()

	return s.store.ListRecurringExpenses(ctx, userID, false)
}

// Create validates and stores a definition.
func (s *RecurringService) Create(ctx context.Context, userID string, req *domain.RecurringExpenseRequest) (*domain.RecurringExpense, error) {
	ctx, span := recurringTracer.Start(ctx, "RecurringService.Create")
	defer span.End()

	req.Name = strings.TrimSpace(req.Name)
	if err := requestValidator.Struct(req); err != nil {
		return nil, &domain.ErrValidation{Message: err.Error()}
	}
	if !req.Amount.IsPositive() {
		return nil, &domain.ErrValidation{Field: "amount", Message: "amount must be greater than zero"}
	}
	start, err := domain.ParseDate(req.StartDate)
	if err != nil {
		return nil, err
	}
	if _, err := ownedAccount(ctx, s.dir, userID, req.AccountID); err != nil {
		return nil, err
	}
	if _, err := ownedCategory(ctx, s.dir, userID, req.CategoryID); err != nil {
		return nil, err
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	interval := req.Interval
	if interval == "" {
		interval = domain.IntervalMonthly
	}

	exp, err := s.store.CreateRecurringExpense(ctx, &domain.RecurringExpense{
		UserID:     userID,
		CategoryID: req.CategoryID,
		AccountID:  req.AccountID,
		Name:       req.Name,
		Amount:     req.Amount,
		Interval:   interval,
		DayOfMonth: req.DayOfMonth,
		StartDate:  start,
		Active:     active,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("recurring expense created",
		zap.String("user_id", userID),
		zap.Int64("recurring_expense_id", exp.ID),
	)
	return exp, nil
}

// Checks runs the matcher for the user's active definitions. The result is
// advisory and never changes the ledger.
func (s *RecurringService) Checks(ctx context.Context, userID string, since *time.Time) (*domain.MatchResult, error) {
	ctx, span := recurringTracer.Start(ctx, "RecurringService.Checks")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	start := time.Now()
	now := s.now()
	tolerance := time.Duration(s.cfg.DateToleranceDays) * 24 * time.Hour

	expenses, err := s.store.ListRecurringExpenses(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	if len(expenses) == 0 {
		return &domain.MatchResult{Checks: []domain.RecurringCheck{}, MatchedTransactions: map[int64]domain.RecurringCheck{}}, nil
	}

	from := earliestStart(expenses)
	if since != nil && since.After(from) {
		from = *since
	}

	var (
		txs      []domain.Transaction
		accounts []domain.Account
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = s.ledger.ListExpenseTransactions(gctx, userID,
			from.Add(-tolerance).Format(domain.DateLayout),
			now.Add(tolerance).Format(domain.DateLayout))
		return err
	})
	g.Go(func() error {
		var err error
		accounts, err = s.dir.ListAccounts(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	currencies := make(map[int64]string, len(accounts))
	for _, a := range accounts {
		currencies[a.ID] = a.Currency
	}

	result := Match(expenses, txs, now, since, s.cfg, currencies)
	for _, c := range result.Checks {
		s.metrics.IncrRecurringCheck(c.Status)
	}
	s.metrics.RecordRequestDuration("recurring.checks", time.Since(start))
	return result, nil
}

func earliestStart(expenses []domain.RecurringExpense) time.Time {
	var earliest time.Time
	for _, e := range expenses {
		t, err := time.Parse(domain.DateLayout, e.StartDate)
		if err != nil {
			continue
		}
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}
	return earliest
}
