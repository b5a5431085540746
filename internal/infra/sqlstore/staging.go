package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
)

const stagingReturning = `id, user_id, account_id, date, amount, description, external_id,
	status, source, transaction_id, created_at, updated_at`

const stagingColumns = `s.id, s.user_id, s.account_id, s.date, s.amount, s.description, s.external_id,
	s.status, s.source, s.transaction_id, s.created_at, s.updated_at`

func scanStaging(row interface{ Scan(...any) error }) (*domain.StagedTransaction, error) {
	var (
		st    domain.StagedTransaction
		ext   sql.NullString
		txID  sql.NullInt64
		state string
	)
	if err := row.Scan(&st.ID, &st.UserID, &st.AccountID, &st.Date, &st.Amount, &st.Description, &ext,
		&state, &st.Source, &txID, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, err
	}
	st.ExternalID = stringPtr(ext)
	st.TransactionID = int64Ptr(txID)
	st.Status = domain.StagingStatus(state)
	return &st, nil
}

// ListStaging returns the user's staged rows, newest date first. Ownership
// is resolved through the account.
func (s *Store) ListStaging(ctx context.Context, userID string, filter domain.StagingFilter) ([]domain.StagedTransaction, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.ListStaging")
	defer span.End()

	var (
		where = []string{"a.user_id = ?"}
		args  = []any{userID}
	)
	if filter.AccountID != nil {
		where = append(where, "s.account_id = ?")
		args = append(args, *filter.AccountID)
	}
	switch filter.Status {
	case domain.StatusAll:
	case "":
		where = append(where, "s.status = ?")
		args = append(args, string(domain.StagingPending))
	default:
		where = append(where, "s.status = ?")
		args = append(args, filter.Status)
	}
	span.SetAttributes(attribute.String("staging.status", filter.Status))

	query := `SELECT ` + stagingColumns + `
		FROM staged_transactions s JOIN accounts a ON a.id = s.account_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY s.date DESC, s.id DESC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list staging: %w", err)
	}
	defer rows.Close()

	out := []domain.StagedTransaction{}
	for rows.Next() {
		st, err := scanStaging(rows)
		if err != nil {
			return nil, fmt.Errorf("scan staging: %w", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// GetStaging loads one staged row with its owning user.
func (s *Store) GetStaging(ctx context.Context, stagingID int64) (*domain.StagedTransaction, error) {
	st, err := scanStaging(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+stagingColumns+` FROM staged_transactions s WHERE s.id = ?`), stagingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "staged transaction", ID: strconv.FormatInt(stagingID, 10)}
	}
	if err != nil {
		return nil, fmt.Errorf("get staging: %w", err)
	}
	return st, nil
}

// InsertStaging stages a candidate unless its (account, external id) pair is
// already staged in any status or already in the ledger. Rows without an
// external id are always inserted.
func (s *Store) InsertStaging(ctx context.Context, row *domain.StagedTransaction) (*domain.StagedTransaction, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.InsertStaging")
	defer span.End()

	if row.Status == "" {
		row.Status = domain.StagingPending
	}
	now := s.now()

	var inserted *domain.StagedTransaction
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if row.ExternalID != nil {
			var exists int
			err := tx.QueryRowContext(ctx, s.rebind(
				`SELECT 1 FROM transactions WHERE account_id = ? AND external_id = ?`),
				row.AccountID, *row.ExternalID).Scan(&exists)
			if err == nil {
				return nil
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("ledger dedup check: %w", err)
			}
		}

		st, err := scanStaging(tx.QueryRowContext(ctx, s.rebind(
			`INSERT INTO staged_transactions
			   (user_id, account_id, date, amount, description, external_id, status, source, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT DO NOTHING
			 RETURNING `+stagingReturning),
			row.UserID, row.AccountID, row.Date, row.Amount, row.Description, nullString(row.ExternalID),
			string(row.Status), row.Source, now, now))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("insert staging: %w", err)
		}
		inserted = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	if inserted == nil {
		s.logger.Debug("staging candidate skipped as duplicate",
			zap.Int64("account_id", row.AccountID),
			zap.Stringp("external_id", row.ExternalID),
		)
	}
	return inserted, nil
}

// TransitionStaging is a compare-and-set on status.
func (s *Store) TransitionStaging(ctx context.Context, stagingID int64, from, to domain.StagingStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE staged_transactions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`),
		string(to), s.now(), stagingID, string(from))
	if err != nil {
		return false, fmt.Errorf("transition staging: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition staging: %w", err)
	}
	return n == 1, nil
}

// DeleteStaging hard-deletes a staged row in any status.
func (s *Store) DeleteStaging(ctx context.Context, stagingID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM staged_transactions WHERE id = ?`), stagingID)
	if err != nil {
		return false, fmt.Errorf("delete staging: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete staging: %w", err)
	}
	return n == 1, nil
}
