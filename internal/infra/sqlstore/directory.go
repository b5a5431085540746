package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
)

// ============================================================
// Accounts
// ============================================================

const accountColumns = `id, user_id, name, external_id, currency, balance, created_at`

func scanAccount(row interface{ Scan(...any) error }) (*domain.Account, error) {
	var (
		a   domain.Account
		ext sql.NullString
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &ext, &a.Currency, &a.Balance, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ExternalID = stringPtr(ext)
	return &a, nil
}

// ListAccounts returns the user's accounts ordered by name.
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.ListAccounts")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? ORDER BY name, id`), userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// GetAccount loads an account regardless of owner; callers check ownership.
func (s *Store) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`), accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "account", ID: strconv.FormatInt(accountID, 10)}
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// FindAccountByName matches case-insensitively within the user's accounts.
func (s *Store) FindAccountByName(ctx context.Context, userID, name string) (*domain.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? AND LOWER(name) = ? ORDER BY id LIMIT 1`),
		userID, strings.ToLower(strings.TrimSpace(name))))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "account", ID: name}
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return a, nil
}

// FindAccountByExternalID resolves an aggregator account id.
func (s *Store) FindAccountByExternalID(ctx context.Context, userID, externalID string) (*domain.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? AND external_id = ?`), userID, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "account", ID: externalID}
	}
	if err != nil {
		return nil, fmt.Errorf("find account by external id: %w", err)
	}
	return a, nil
}

// CreateAccount inserts an account. Used by the seed command; account
// management itself lives outside this service.
func (s *Store) CreateAccount(ctx context.Context, a *domain.Account) (*domain.Account, error) {
	if a.Currency == "" {
		a.Currency = "EUR"
	}
	created, err := scanAccount(s.db.QueryRowContext(ctx, s.rebind(
		`INSERT INTO accounts (user_id, name, external_id, currency, balance, created_at)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING `+accountColumns),
		a.UserID, a.Name, nullString(a.ExternalID), a.Currency, a.Balance, s.now()))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ErrConflict{Message: "account external id already linked"}
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return created, nil
}

// ============================================================
// Categories
// ============================================================

const categoryColumns = `id, user_id, name, type, created_at`

func scanCategory(row interface{ Scan(...any) error }) (*domain.Category, error) {
	var c domain.Category
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Type, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCategories returns the user's categories ordered by name.
func (s *Store) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.ListCategories")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = ? ORDER BY name, id`), userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []domain.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}

// GetCategory loads a category regardless of owner.
func (s *Store) GetCategory(ctx context.Context, categoryID int64) (*domain.Category, error) {
	c, err := scanCategory(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+categoryColumns+` FROM categories WHERE id = ?`), categoryID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "category", ID: strconv.FormatInt(categoryID, 10)}
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// FindCategoryByName matches case-insensitively within the user's categories.
func (s *Store) FindCategoryByName(ctx context.Context, userID, name string) (*domain.Category, error) {
	c, err := scanCategory(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = ? AND LOWER(name) = ? ORDER BY id LIMIT 1`),
		userID, strings.ToLower(strings.TrimSpace(name))))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "category", ID: name}
	}
	if err != nil {
		return nil, fmt.Errorf("find category: %w", err)
	}
	return c, nil
}

// CreateCategory inserts a category. Used by the seed command.
func (s *Store) CreateCategory(ctx context.Context, c *domain.Category) (*domain.Category, error) {
	created, err := scanCategory(s.db.QueryRowContext(ctx, s.rebind(
		`INSERT INTO categories (user_id, name, type, created_at) VALUES (?, ?, ?, ?) RETURNING `+categoryColumns),
		c.UserID, c.Name, c.Type, s.now()))
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return created, nil
}
