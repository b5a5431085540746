package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
)

const recurringColumns = `id, user_id, category_id, account_id, name, amount, repeat_interval, day_of_month,
	start_date, active, created_at`

func scanRecurring(row interface{ Scan(...any) error }) (*domain.RecurringExpense, error) {
	var (
		r       domain.RecurringExpense
		account sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.CategoryID, &account, &r.Name, &r.Amount, &r.Interval,
		&r.DayOfMonth, &r.StartDate, &r.Active, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.AccountID = account.Int64
	return &r, nil
}

// ListRecurringExpenses returns the user's definitions ordered by due day.
func (s *Store) ListRecurringExpenses(ctx context.Context, userID string, activeOnly bool) ([]domain.RecurringExpense, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.ListRecurringExpenses")
	defer span.End()

	query := `SELECT ` + recurringColumns + ` FROM recurring_expenses WHERE user_id = ?`
	args := []any{userID}
	if activeOnly {
		query += ` AND active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY day_of_month, id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list recurring expenses: %w", err)
	}
	defer rows.Close()

	out := []domain.RecurringExpense{}
	for rows.Next() {
		r, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring expense: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// CreateRecurringExpense inserts a definition.
func (s *Store) CreateRecurringExpense(ctx context.Context, exp *domain.RecurringExpense) (*domain.RecurringExpense, error) {
	if exp.Interval == "" {
		exp.Interval = domain.IntervalMonthly
	}
	var account sql.NullInt64
	if exp.AccountID > 0 {
		account = sql.NullInt64{Int64: exp.AccountID, Valid: true}
	}
	created, err := scanRecurring(s.db.QueryRowContext(ctx, s.rebind(
		`INSERT INTO recurring_expenses
		   (user_id, category_id, account_id, name, amount, repeat_interval, day_of_month, start_date, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+recurringColumns),
		exp.UserID, exp.CategoryID, account, exp.Name, exp.Amount, exp.Interval, exp.DayOfMonth,
		exp.StartDate, exp.Active, s.now()))
	if err != nil {
		return nil, fmt.Errorf("create recurring expense: %w", err)
	}
	return created, nil
}
