package handler

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/service"
)

// ============================================================
// Staging Handlers
// ============================================================

func listStagingHandler(svc *service.StagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/staging")
		defer span.End()

		var accountID *int64
		if raw := r.URL.Query().Get("accountId"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				writeError(w, http.StatusBadRequest, "accountId must be a positive integer")
				return
			}
			accountID = &id
		}

		rows, err := svc.List(ctx, UserIDFromContext(ctx), accountID, r.URL.Query().Get("status"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if rows == nil {
			rows = []domain.StagedTransaction{}
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func stageCandidatesHandler(svc *service.StagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts/{accountId}/staging")
		defer span.End()

		accountID, err := pathID(r, "accountId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req domain.StageRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if len(req.Candidates) == 0 {
			writeError(w, http.StatusBadRequest, "candidates must not be empty")
			return
		}

		result, err := svc.Ingest(ctx, UserIDFromContext(ctx), accountID, req.Candidates, domain.SourceManual)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func approveHandler(svc *service.ApprovalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/staging/{id}/approve")
		defer span.End()

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req domain.ApproveRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		tx, err := svc.Approve(ctx, UserIDFromContext(ctx), id, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	}
}

func dismissHandler(svc *service.StagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/staging/{id}/dismiss")
		defer span.End()

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		row, err := svc.Dismiss(ctx, UserIDFromContext(ctx), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, row)
	}
}

func restoreHandler(svc *service.StagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/staging/{id}/restore")
		defer span.End()

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		row, err := svc.Restore(ctx, UserIDFromContext(ctx), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, row)
	}
}

func deleteStagingHandler(svc *service.StagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/staging/{id}")
		defer span.End()

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := svc.Delete(ctx, UserIDFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func bulkApproveHandler(svc *service.ApprovalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/staging/bulk-approve")
		defer span.End()

		var req domain.BulkApproveRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, svc.BulkApprove(ctx, UserIDFromContext(ctx), req.Items))
	}
}

func bulkDismissHandler(svc *service.StagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/staging/bulk-dismiss")
		defer span.End()

		var req domain.BulkIDsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, svc.BulkDismiss(ctx, UserIDFromContext(ctx), req.IDs))
	}
}

func bulkDeleteHandler(svc *service.StagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/staging/bulk-delete")
		defer span.End()

		var req domain.BulkIDsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, svc.BulkDelete(ctx, UserIDFromContext(ctx), req.IDs))
	}
}
