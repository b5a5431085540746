package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/infra/observability"
	"github.com/boddenberg/pfm-staging-go/internal/port"
	"github.com/boddenberg/pfm-staging-go/internal/webhook"
)

var webhookTracer = otel.Tracer("service/webhook")

const (
	maxLoggedBody   = 10 * 1024
	signaturePrefix = "sha256="
)

// WebhookService delivers inbound payloads to their processor and manages
// webhook endpoints. Every delivery leaves exactly one WebhookLog row.
type WebhookService struct {
	store    port.WebhookStore
	dir      port.Directory
	ledger   port.TransactionCreator
	feeds    port.FeedIngester
	registry *webhook.Registry
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewWebhookService creates a new webhook service.
func NewWebhookService(store port.WebhookStore, dir port.Directory, ledger port.TransactionCreator, feeds port.FeedIngester, registry *webhook.Registry, metrics *observability.Metrics, logger *zap.Logger) *WebhookService {
	return &WebhookService{
		store: store, dir: dir, ledger: ledger, feeds: feeds,
		registry: registry, metrics: metrics, logger: logger, now: time.Now,
	}
}

// ============================================================
// Delivery
// ============================================================

type deliveryOutcome struct {
	status     domain.WebhookLogStatus
	httpStatus int
	body       map[string]any
	errMsg     string
}

func failed(httpStatus int, status domain.WebhookLogStatus, msg string) deliveryOutcome {
	return deliveryOutcome{
		status:     status,
		httpStatus: httpStatus,
		body:       map[string]any{"success": false, "error": msg},
		errMsg:     msg,
	}
}

// Deliver authenticates and processes one payload. It never returns an
// error: the outcome, including failures, is the HTTP status and body.
func (s *WebhookService) Deliver(ctx context.Context, webhookID string, raw []byte, signature string) *domain.WebhookDelivery {
	ctx, span := webhookTracer.Start(ctx, "WebhookService.Deliver")
	defer span.End()
	span.SetAttributes(attribute.String("webhook.id", webhookID))

	start := time.Now()
	whType := "unknown"
	out := s.deliver(ctx, webhookID, raw, signature, &whType)
	elapsed := time.Since(start)

	entry := &domain.WebhookLog{
		WebhookID:        webhookID,
		Status:           out.status,
		HTTPStatus:       out.httpStatus,
		RequestBody:      logText(string(raw), maxLoggedBody),
		ResponseBody:     logText(marshalBody(out.body), maxLoggedBody),
		ErrorMessage:     out.errMsg,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}
	// Logged even after the sender has gone away.
	if err := s.store.AppendWebhookLog(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("failed to append webhook log",
			zap.String("webhook_id", webhookID),
			zap.Error(err),
		)
	}

	s.metrics.IncrWebhookDelivery(whType, out.status)
	s.metrics.RecordRequestDuration("webhook.deliver", elapsed)
	span.SetAttributes(attribute.Int("http.status_code", out.httpStatus))
	return &domain.WebhookDelivery{HTTPStatus: out.httpStatus, Body: out.body}
}

func (s *WebhookService) deliver(ctx context.Context, webhookID string, raw []byte, signature string, whType *string) deliveryOutcome {
	if _, err := uuid.Parse(webhookID); err != nil {
		return failed(404, domain.WebhookLogError, "webhook not found")
	}
	wh, err := s.store.GetWebhook(ctx, webhookID)
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			return failed(404, domain.WebhookLogError, "webhook not found")
		}
		s.logger.Error("webhook lookup failed", zap.String("webhook_id", webhookID), zap.Error(err))
		return deliveryOutcome{
			status:     domain.WebhookLogError,
			httpStatus: 500,
			body:       map[string]any{"success": false, "error": "internal error"},
			errMsg:     err.Error(),
		}
	}
	*whType = string(wh.Type)

	if !wh.Active {
		return failed(403, domain.WebhookLogError, "webhook is disabled")
	}
	if wh.Secret != "" && !VerifySignature(wh.Secret, raw, signature) {
		s.logger.Warn("webhook signature rejected", zap.String("webhook_id", webhookID))
		return failed(401, domain.WebhookLogInvalidSignature, "invalid signature")
	}

	proc, ok := s.registry.Lookup(wh.Type)
	if !ok {
		return failed(400, domain.WebhookLogError, fmt.Sprintf("no processor for webhook type %q", wh.Type))
	}
	if !json.Valid(raw) {
		return failed(400, domain.WebhookLogError, "request body must be valid JSON")
	}
	if err := proc.Validate(raw); err != nil {
		return failed(400, domain.WebhookLogError, err.Error())
	}

	record, err := proc.Process(ctx, raw, webhook.Env{
		UserID:    wh.UserID,
		Directory: s.dir,
		Ledger:    s.ledger,
		Feeds:     s.feeds,
	})
	if err != nil {
		var (
			ve *domain.ErrValidation
			nf *domain.ErrNotFound
			ce *domain.ErrConflict
		)
		switch {
		case errors.As(err, &ve), errors.As(err, &nf):
			return failed(400, domain.WebhookLogError, err.Error())
		case errors.As(err, &ce):
			return failed(409, domain.WebhookLogError, err.Error())
		}
		s.logger.Error("webhook processing failed",
			zap.String("webhook_id", webhookID),
			zap.String("type", string(wh.Type)),
			zap.Error(err),
		)
		return deliveryOutcome{
			status:     domain.WebhookLogError,
			httpStatus: 500,
			body:       map[string]any{"success": false, "error": "internal error"},
			errMsg:     err.Error(),
		}
	}

	if err := s.store.TouchWebhook(context.WithoutCancel(ctx), wh.ID, s.now().UTC()); err != nil {
		s.logger.Warn("failed to update webhook last use", zap.String("webhook_id", wh.ID), zap.Error(err))
	}
	return deliveryOutcome{
		status:     domain.WebhookLogSuccess,
		httpStatus: 201,
		body:       map[string]any{"success": true, "data": record},
	}
}

// VerifySignature checks a base64 HMAC-SHA256 of body, optionally prefixed
// with "sha256=". The comparison is constant time.
func VerifySignature(secret string, body []byte, header string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	header = strings.TrimPrefix(header, signaturePrefix)
	given, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return false
	}
	return hmac.Equal(given, computeSignature(secret, body))
}

// Sign returns the header value a sender must present for body.
func Sign(secret string, body []byte) string {
	return signaturePrefix + base64.StdEncoding.EncodeToString(computeSignature(secret, body))
}

func computeSignature(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

func marshalBody(body map[string]any) string {
	b, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return string(b)
}

// logText makes s storable in a TEXT column: invalid UTF-8 is replaced and
// the result is cut to at most n bytes on a rune boundary.
func logText(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ============================================================
// Management
// ============================================================

// Create registers a webhook for the user. The secret is returned only here.
func (s *WebhookService) Create(ctx context.Context, userID string, req *domain.CreateWebhookRequest) (*domain.CreateWebhookResponse, error) {
	ctx, span := webhookTracer.Start(ctx, "WebhookService.Create")
	defer span.End()

	req.Name = strings.TrimSpace(req.Name)
	if err := requestValidator.Struct(req); err != nil {
		return nil, &domain.ErrValidation{Message: err.Error()}
	}
	if _, ok := s.registry.Lookup(req.Type); !ok {
		return nil, &domain.ErrValidation{Field: "type", Message: fmt.Sprintf("unsupported webhook type %q (available: %s)", req.Type, joinTypes(s.registry.Types()))}
	}

	secret := ""
	if !req.NoSecret {
		secret = newSecret()
	}
	wh, err := s.store.CreateWebhook(ctx, &domain.Webhook{
		ID:     uuid.NewString(),
		UserID: userID,
		Name:   req.Name,
		Type:   req.Type,
		Secret: secret,
		Active: true,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("webhook created",
		zap.String("user_id", userID),
		zap.String("webhook_id", wh.ID),
		zap.String("type", string(wh.Type)),
	)
	return &domain.CreateWebhookResponse{
		Webhook: *wh,
		Secret:  secret,
		URL:     "/webhooks/" + wh.ID,
	}, nil
}

// List returns the user's webhooks.
func (s *WebhookService) List(ctx context.Context, userID string) ([]domain.Webhook, error) {
	ctx, span := webhookTracer.Start(ctx, "WebhookService.List")
	defer span.End()

	return s.store.ListWebhooks(ctx, userID)
}

// SetActive enables or disables one of the user's webhooks.
func (s *WebhookService) SetActive(ctx context.Context, userID, webhookID string, active bool) (*domain.Webhook, error) {
	ctx, span := webhookTracer.Start(ctx, "WebhookService.SetActive")
	defer span.End()

	wh, err := s.ownedWebhook(ctx, userID, webhookID)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetWebhookActive(ctx, wh.ID, active); err != nil {
		return nil, err
	}
	wh.Active = active
	return wh, nil
}

// Logs returns the most recent deliveries of one of the user's webhooks.
func (s *WebhookService) Logs(ctx context.Context, userID, webhookID string, limit int) ([]domain.WebhookLog, error) {
	ctx, span := webhookTracer.Start(ctx, "WebhookService.Logs")
	defer span.End()

	if _, err := s.ownedWebhook(ctx, userID, webhookID); err != nil {
		return nil, err
	}
	return s.store.ListWebhookLogs(ctx, webhookID, limit)
}

func (s *WebhookService) ownedWebhook(ctx context.Context, userID, webhookID string) (*domain.Webhook, error) {
	if _, err := uuid.Parse(webhookID); err != nil {
		return nil, &domain.ErrNotFound{Resource: "webhook", ID: webhookID}
	}
	wh, err := s.store.GetWebhook(ctx, webhookID)
	if err != nil {
		return nil, err
	}
	if wh.UserID != userID {
		return nil, &domain.ErrForbidden{Action: "webhook belongs to another user"}
	}
	return wh, nil
}

// newSecret returns 64 hex characters of randomness.
func newSecret() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

func joinTypes(types []domain.WebhookType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
