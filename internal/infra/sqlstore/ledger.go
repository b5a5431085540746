package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
)

const transactionColumns = `id, account_id, category_id, date, amount, type, description,
	external_id, staging_id, source, created_at`

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var (
		t       domain.Transaction
		cat     sql.NullInt64
		ext     sql.NullString
		staging sql.NullInt64
		typ     string
	)
	if err := row.Scan(&t.ID, &t.AccountID, &cat, &t.Date, &t.Amount, &typ, &t.Description,
		&ext, &staging, &t.Source, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.CategoryID = cat.Int64
	t.Type = domain.TransactionType(typ)
	t.ExternalID = stringPtr(ext)
	t.StagingID = int64Ptr(staging)
	return &t, nil
}

// CreateTransaction writes a ledger row and adjusts the account balance in
// one database transaction.
func (s *Store) CreateTransaction(ctx context.Context, draft *domain.TransactionDraft) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.CreateTransaction")
	defer span.End()
	span.SetAttributes(attribute.Int64("account.id", draft.AccountID))

	var created *domain.Transaction
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := s.insertTransaction(ctx, tx, draft)
		if err != nil {
			return err
		}
		created = t
		return s.adjustBalance(ctx, tx, draft.AccountID, domain.Signed(draft.Amount, draft.Type))
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// PromoteStaging reconciles a pending staged row, creates its ledger row,
// adjusts the balance and links the two, all or nothing.
func (s *Store) PromoteStaging(ctx context.Context, stagingID int64, draft *domain.TransactionDraft) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.PromoteStaging")
	defer span.End()
	span.SetAttributes(attribute.Int64("staging.id", stagingID))

	var created *domain.Transaction
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind(
			`UPDATE staged_transactions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`),
			string(domain.StagingReconciled), s.now(), stagingID, string(domain.StagingPending))
		if err != nil {
			return fmt.Errorf("reconcile staging: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return &domain.ErrConflict{Message: fmt.Sprintf("staged transaction %d is no longer pending", stagingID)}
		}

		draft.StagingID = &stagingID
		t, err := s.insertTransaction(ctx, tx, draft)
		if err != nil {
			return err
		}
		if err := s.adjustBalance(ctx, tx, draft.AccountID, domain.Signed(draft.Amount, draft.Type)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.rebind(
			`UPDATE staged_transactions SET transaction_id = ? WHERE id = ?`), t.ID, stagingID); err != nil {
			return fmt.Errorf("link staging: %w", err)
		}
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("staged transaction promoted",
		zap.Int64("staging_id", stagingID),
		zap.Int64("transaction_id", created.ID),
	)
	return created, nil
}

func (s *Store) insertTransaction(ctx context.Context, q queryer, draft *domain.TransactionDraft) (*domain.Transaction, error) {
	var category sql.NullInt64
	if draft.CategoryID > 0 {
		category = sql.NullInt64{Int64: draft.CategoryID, Valid: true}
	}
	source := draft.Source
	if source == "" {
		source = domain.SourceManual
	}

	t, err := scanTransaction(q.QueryRowContext(ctx, s.rebind(
		`INSERT INTO transactions
		   (account_id, category_id, date, amount, type, description, external_id, staging_id, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+transactionColumns),
		draft.AccountID, category, draft.Date, draft.Amount.Abs(), string(draft.Type), draft.Description,
		nullString(draft.ExternalID), nullInt64(draft.StagingID), source, s.now()))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ErrConflict{Message: "transaction with this external id already exists"}
		}
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

// adjustBalance applies delta to the account balance. Postgres does the
// arithmetic in NUMERIC; sqlite stores text, so the sum is computed in Go
// while the write lock is held.
func (s *Store) adjustBalance(ctx context.Context, tx *sql.Tx, accountID int64, delta domain.Amount) error {
	if s.dialect == Postgres {
		res, err := tx.ExecContext(ctx, s.rebind(
			`UPDATE accounts SET balance = balance + CAST(? AS NUMERIC) WHERE id = ?`), delta, accountID)
		if err != nil {
			return fmt.Errorf("adjust balance: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return &domain.ErrNotFound{Resource: "account", ID: fmt.Sprint(accountID)}
		}
		return nil
	}

	var balance domain.Amount
	err := tx.QueryRowContext(ctx, s.rebind(`SELECT balance FROM accounts WHERE id = ?`), accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.ErrNotFound{Resource: "account", ID: fmt.Sprint(accountID)}
	}
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	next := domain.NewAmount(balance.Add(delta.Decimal))
	if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE accounts SET balance = ? WHERE id = ?`), next, accountID); err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	return nil
}

// ListExpenseTransactions returns the user's expense rows dated within
// [fromDate, toDate], oldest first.
func (s *Store) ListExpenseTransactions(ctx context.Context, userID, fromDate, toDate string) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.ListExpenseTransactions")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT t.id, t.account_id, t.category_id, t.date, t.amount, t.type, t.description,
		        t.external_id, t.staging_id, t.source, t.created_at
		   FROM transactions t JOIN accounts a ON a.id = t.account_id
		  WHERE a.user_id = ? AND t.type = ? AND t.date >= ? AND t.date <= ?
		  ORDER BY t.date, t.id`),
		userID, string(domain.TransactionExpense), fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("list expense transactions: %w", err)
	}
	defer rows.Close()

	out := []domain.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
