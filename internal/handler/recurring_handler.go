package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/service"
)

// ============================================================
// Recurring Expense Handlers
// ============================================================

func listRecurringHandler(svc *service.RecurringService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/recurring")
		defer span.End()

		items, err := svc.List(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if items == nil {
			items = []domain.RecurringExpense{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func createRecurringHandler(svc *service.RecurringService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/recurring")
		defer span.End()

		var req domain.RecurringExpenseRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		exp, err := svc.Create(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, exp)
	}
}

func recurringChecksHandler(svc *service.RecurringService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/recurring/checks")
		defer span.End()

		since, err := querySince(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		result, err := svc.Checks(ctx, UserIDFromContext(ctx), since)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
