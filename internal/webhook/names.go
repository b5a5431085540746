package webhook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
)

// rankByDistance orders candidates by edit distance to the requested name so
// the likely typo fix comes first.
func rankByDistance(requested string, candidates []string) []string {
	target := strings.ToLower(strings.TrimSpace(requested))
	ranked := append([]string(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		di := levenshtein.ComputeDistance(target, strings.ToLower(ranked[i]))
		dj := levenshtein.ComputeDistance(target, strings.ToLower(ranked[j]))
		if di != dj {
			return di < dj
		}
		return ranked[i] < ranked[j]
	})
	return ranked
}

func availableMessage(kind, plural, requested string, names []string) string {
	if len(names) == 0 {
		return fmt.Sprintf("%s %q not found; no %s exist for this user", kind, requested, plural)
	}
	return fmt.Sprintf("%s %q not found; available %s: %s",
		kind, requested, plural, strings.Join(rankByDistance(requested, names), ", "))
}

// resolveAccount finds the owner's account by case-insensitive exact name.
func resolveAccount(ctx context.Context, env Env, name string) (*domain.Account, error) {
	acct, err := env.Directory.FindAccountByName(ctx, env.UserID, name)
	if err == nil {
		return acct, nil
	}
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		return nil, err
	}

	accounts, err := env.Directory.ListAccounts(ctx, env.UserID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(accounts))
	for _, a := range accounts {
		names = append(names, a.Name)
	}
	return nil, &domain.ErrValidation{Field: "account", Message: availableMessage("account", "accounts", name, names)}
}

// resolveCategory finds the owner's category by case-insensitive exact name.
func resolveCategory(ctx context.Context, env Env, name string) (*domain.Category, error) {
	cat, err := env.Directory.FindCategoryByName(ctx, env.UserID, name)
	if err == nil {
		return cat, nil
	}
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		return nil, err
	}

	categories, err := env.Directory.ListCategories(ctx, env.UserID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	return nil, &domain.ErrValidation{Field: "category", Message: availableMessage("category", "categories", name, names)}
}
