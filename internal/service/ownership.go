package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/port"
)

// ownedAccount loads an account and checks that userID owns it.
// Unknown ids are NotFound; foreign accounts are Forbidden.
func ownedAccount(ctx context.Context, dir port.Directory, userID string, accountID int64) (*domain.Account, error) {
	acct, err := dir.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.UserID != userID {
		return nil, &domain.ErrForbidden{Action: fmt.Sprintf("access account %d", accountID)}
	}
	return acct, nil
}

// ownedCategory loads a category owned by userID. A foreign category is
// reported as not found.
func ownedCategory(ctx context.Context, dir port.Directory, userID string, categoryID int64) (*domain.Category, error) {
	cat, err := dir.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	if cat.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "category", ID: strconv.FormatInt(categoryID, 10)}
	}
	return cat, nil
}

// ownedStaging loads a staged row and checks ownership through its account.
func ownedStaging(ctx context.Context, dir port.Directory, store port.StagingStore, userID string, stagingID int64) (*domain.StagedTransaction, error) {
	row, err := store.GetStaging(ctx, stagingID)
	if err != nil {
		return nil, err
	}
	acct, err := dir.GetAccount(ctx, row.AccountID)
	if err != nil {
		return nil, err
	}
	if acct.UserID != userID {
		return nil, &domain.ErrForbidden{Action: fmt.Sprintf("modify staged transaction %d", stagingID)}
	}
	return row, nil
}

// accountsInvalidator is implemented by directories that cache account
// lists, which carry balances.
type accountsInvalidator interface {
	InvalidateAccounts(userID string)
}

func invalidateAccounts(dir port.Directory, userID string) {
	if inv, ok := dir.(accountsInvalidator); ok {
		inv.InvalidateAccounts(userID)
	}
}
