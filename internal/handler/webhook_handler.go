package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/service"
)

// SignatureHeader carries the HMAC of an inbound webhook body.
const SignatureHeader = "X-Webhook-Signature"

const defaultWebhookMaxBody = 256 << 10

// ============================================================
// Inbound delivery
// ============================================================

func deliverWebhookHandler(svc *service.WebhookService, maxBody int64, logger *zap.Logger) http.HandlerFunc {
	if maxBody <= 0 {
		maxBody = defaultWebhookMaxBody
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /webhooks/{webhookId}")
		defer span.End()

		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"success": false, "error": "request body too large"})
				return
			}
			logger.Warn("failed to read webhook body", zap.Error(err))
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "could not read request body"})
			return
		}

		out := svc.Deliver(ctx, chi.URLParam(r, "webhookId"), raw, r.Header.Get(SignatureHeader))
		writeJSON(w, out.HTTPStatus, out.Body)
	}
}

// ============================================================
// Management
// ============================================================

func listWebhooksHandler(svc *service.WebhookService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/webhooks")
		defer span.End()

		hooks, err := svc.List(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if hooks == nil {
			hooks = []domain.Webhook{}
		}
		writeJSON(w, http.StatusOK, hooks)
	}
}

func createWebhookHandler(svc *service.WebhookService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/webhooks")
		defer span.End()

		var req domain.CreateWebhookRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		created, err := svc.Create(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

func setWebhookActiveHandler(svc *service.WebhookService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/webhooks/{webhookId}/active")
		defer span.End()

		var req setActiveRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if req.Active == nil {
			writeError(w, http.StatusBadRequest, "active is required")
			return
		}
		wh, err := svc.SetActive(ctx, UserIDFromContext(ctx), chi.URLParam(r, "webhookId"), *req.Active)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, wh)
	}
}

func webhookLogsHandler(svc *service.WebhookService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/webhooks/{webhookId}/logs")
		defer span.End()

		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}
		logs, err := svc.Logs(ctx, UserIDFromContext(ctx), chi.URLParam(r, "webhookId"), limit)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if logs == nil {
			logs = []domain.WebhookLog{}
		}
		writeJSON(w, http.StatusOK, logs)
	}
}
