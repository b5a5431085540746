package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/port"
	"github.com/boddenberg/pfm-staging-go/internal/service"
)

// ============================================================
// Accounts, categories and bank feed
// ============================================================

func listAccountsHandler(dir port.Directory, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts")
		defer span.End()

		accounts, err := dir.ListAccounts(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if accounts == nil {
			accounts = []domain.Account{}
		}
		writeJSON(w, http.StatusOK, accounts)
	}
}

func listCategoriesHandler(dir port.Directory, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/categories")
		defer span.End()

		categories, err := dir.ListCategories(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if categories == nil {
			categories = []domain.Category{}
		}
		writeJSON(w, http.StatusOK, categories)
	}
}

func bankFeedSyncHandler(svc *service.BankFeedService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/bank-feed/sync")
		defer span.End()

		since, err := querySince(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		result, err := svc.Sync(ctx, UserIDFromContext(ctx), since)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
