package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
)

const webhookColumns = `id, user_id, name, type, secret, active, last_used_at, created_at`

func scanWebhook(row interface{ Scan(...any) error }) (*domain.Webhook, error) {
	var (
		wh       domain.Webhook
		typ      string
		secret   sql.NullString
		lastUsed sql.NullTime
	)
	if err := row.Scan(&wh.ID, &wh.UserID, &wh.Name, &typ, &secret, &wh.Active, &lastUsed, &wh.CreatedAt); err != nil {
		return nil, err
	}
	wh.Type = domain.WebhookType(typ)
	wh.Secret = secret.String
	if lastUsed.Valid {
		t := lastUsed.Time
		wh.LastUsedAt = &t
	}
	return &wh, nil
}

// GetWebhook loads a webhook by its public id.
func (s *Store) GetWebhook(ctx context.Context, webhookID string) (*domain.Webhook, error) {
	wh, err := scanWebhook(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+webhookColumns+` FROM webhooks WHERE id = ?`), webhookID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "webhook", ID: webhookID}
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	return wh, nil
}

// ListWebhooks returns the user's webhooks, newest first.
func (s *Store) ListWebhooks(ctx context.Context, userID string) ([]domain.Webhook, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+webhookColumns+` FROM webhooks WHERE user_id = ? ORDER BY created_at DESC, id`), userID)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	out := []domain.Webhook{}
	for rows.Next() {
		wh, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		out = append(out, *wh)
	}
	return out, rows.Err()
}

// CreateWebhook inserts a webhook; the caller assigns the id.
func (s *Store) CreateWebhook(ctx context.Context, wh *domain.Webhook) (*domain.Webhook, error) {
	var secret sql.NullString
	if wh.Secret != "" {
		secret = sql.NullString{String: wh.Secret, Valid: true}
	}
	created, err := scanWebhook(s.db.QueryRowContext(ctx, s.rebind(
		`INSERT INTO webhooks (id, user_id, name, type, secret, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+webhookColumns),
		wh.ID, wh.UserID, wh.Name, string(wh.Type), secret, wh.Active, s.now()))
	if err != nil {
		return nil, fmt.Errorf("create webhook: %w", err)
	}
	return created, nil
}

// SetWebhookActive toggles whether deliveries are accepted.
func (s *Store) SetWebhookActive(ctx context.Context, webhookID string, active bool) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE webhooks SET active = ? WHERE id = ?`), active, webhookID)
	if err != nil {
		return fmt.Errorf("set webhook active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.ErrNotFound{Resource: "webhook", ID: webhookID}
	}
	return nil
}

// TouchWebhook records the time of the latest accepted delivery.
func (s *Store) TouchWebhook(ctx context.Context, webhookID string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`UPDATE webhooks SET last_used_at = ? WHERE id = ?`),
		at.UTC(), webhookID); err != nil {
		return fmt.Errorf("touch webhook: %w", err)
	}
	return nil
}

// AppendWebhookLog writes one delivery audit row.
func (s *Store) AppendWebhookLog(ctx context.Context, entry *domain.WebhookLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	err := s.db.QueryRowContext(ctx, s.rebind(
		`INSERT INTO webhook_logs
		   (webhook_id, status, http_status, request_body, response_body, error_message, processing_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`),
		entry.WebhookID, string(entry.Status), entry.HTTPStatus, entry.RequestBody, entry.ResponseBody,
		sql.NullString{String: entry.ErrorMessage, Valid: entry.ErrorMessage != ""},
		entry.ProcessingTimeMs, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("append webhook log: %w", err)
	}
	return nil
}

// ListWebhookLogs returns the most recent deliveries first.
func (s *Store) ListWebhookLogs(ctx context.Context, webhookID string, limit int) ([]domain.WebhookLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, webhook_id, status, http_status, request_body, response_body, error_message,
		        processing_time_ms, created_at
		   FROM webhook_logs WHERE webhook_id = ?
		  ORDER BY created_at DESC, id DESC LIMIT ?`), webhookID, limit)
	if err != nil {
		return nil, fmt.Errorf("list webhook logs: %w", err)
	}
	defer rows.Close()

	out := []domain.WebhookLog{}
	for rows.Next() {
		var (
			l                   domain.WebhookLog
			status              string
			req, resp, errorMsg sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.WebhookID, &status, &l.HTTPStatus, &req, &resp, &errorMsg,
			&l.ProcessingTimeMs, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook log: %w", err)
		}
		l.Status = domain.WebhookLogStatus(status)
		l.RequestBody = req.String
		l.ResponseBody = resp.String
		l.ErrorMessage = errorMsg.String
		out = append(out, l)
	}
	return out, rows.Err()
}
