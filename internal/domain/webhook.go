package domain

import "time"

// ============================================================
// Webhooks
// ============================================================

// WebhookType selects the payload processor.
type WebhookType string

const (
	WebhookTally    WebhookType = "tally"
	WebhookGeneric  WebhookType = "generic"
	WebhookBankFeed WebhookType = "bank_feed"
)

// Webhook is an inbound integration endpoint owned by a user.
type Webhook struct {
	ID         string      `json:"id"`
	UserID     string      `json:"userId"`
	Name       string      `json:"name"`
	Type       WebhookType `json:"type"`
	Secret     string      `json:"-"`
	Active     bool        `json:"active"`
	LastUsedAt *time.Time  `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// CreateWebhookRequest is the body of POST /v1/webhooks.
type CreateWebhookRequest struct {
	Name     string      `json:"name" validate:"required,max=200"`
	Type     WebhookType `json:"type" validate:"required"`
	NoSecret bool        `json:"noSecret,omitempty"`
}

// CreateWebhookResponse returns the generated secret exactly once.
type CreateWebhookResponse struct {
	Webhook
	Secret string `json:"secret,omitempty"`
	URL    string `json:"url"`
}

// WebhookLogStatus classifies a delivery outcome.
type WebhookLogStatus string

const (
	WebhookLogSuccess          WebhookLogStatus = "success"
	WebhookLogError            WebhookLogStatus = "error"
	WebhookLogInvalidSignature WebhookLogStatus = "invalid_signature"
)

// WebhookLog is the append-only audit row written for every delivery.
type WebhookLog struct {
	ID               int64            `json:"id"`
	WebhookID        string           `json:"webhookId"`
	Status           WebhookLogStatus `json:"status"`
	HTTPStatus       int              `json:"httpStatus"`
	RequestBody      string           `json:"requestBody"`
	ResponseBody     string           `json:"responseBody"`
	ErrorMessage     string           `json:"errorMessage,omitempty"`
	ProcessingTimeMs int64            `json:"processingTimeMs"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// WebhookDelivery is the outcome handed back to the HTTP layer.
type WebhookDelivery struct {
	HTTPStatus int
	Body       any
}
