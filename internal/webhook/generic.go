package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
)

// genericPayload is the documented JSON shape for custom integrations.
type genericPayload struct {
	Date        string `json:"date" validate:"required"`
	Amount      any    `json:"amount" validate:"required"`
	Type        string `json:"type" validate:"required"`
	Description string `json:"description" validate:"required,max=500"`
	Account     string `json:"account" validate:"required,max=200"`
	Category    string `json:"category" validate:"required,max=200"`
	ExternalID  string `json:"externalId,omitempty" validate:"omitempty,max=200"`
}

// genericEntry is a payload after structural validation.
type genericEntry struct {
	payload genericPayload
	date    string
	amount  domain.Amount
	typ     domain.TransactionType
}

// GenericProcessor handles plain JSON transactions. Numbers may be JSON
// numbers or US/European formatted strings.
type GenericProcessor struct{}

// NewGenericProcessor creates the generic JSON processor.
func NewGenericProcessor() *GenericProcessor { return &GenericProcessor{} }

func (p *GenericProcessor) Type() domain.WebhookType { return domain.WebhookGeneric }

func (p *GenericProcessor) Validate(raw []byte) error {
	_, err := p.parse(raw)
	return err
}

func (p *GenericProcessor) parse(raw []byte) (*genericEntry, error) {
	var pl genericPayload
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&pl); err != nil {
		return nil, &domain.ErrValidation{Message: "payload must be a JSON object: " + err.Error()}
	}
	pl.Description = strings.TrimSpace(pl.Description)
	pl.Account = strings.TrimSpace(pl.Account)
	pl.Category = strings.TrimSpace(pl.Category)
	if err := structError(&pl); err != nil {
		return nil, err
	}

	date, err := domain.ParseDate(pl.Date)
	if err != nil {
		return nil, err
	}
	amount, err := ParseAmount(pl.Amount, guessStyle(pl.Amount))
	if err != nil {
		return nil, err
	}
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	typ, err := ParseType(pl.Type)
	if err != nil {
		return nil, err
	}
	return &genericEntry{payload: pl, date: date, amount: amount, typ: typ}, nil
}

func (p *GenericProcessor) Process(ctx context.Context, raw []byte, env Env) (any, error) {
	entry, err := p.parse(raw)
	if err != nil {
		return nil, err
	}

	acct, err := resolveAccount(ctx, env, entry.payload.Account)
	if err != nil {
		return nil, err
	}
	cat, err := resolveCategory(ctx, env, entry.payload.Category)
	if err != nil {
		return nil, err
	}

	draft := domain.TransactionDraft{
		AccountID:   acct.ID,
		CategoryID:  cat.ID,
		Date:        entry.date,
		Amount:      entry.amount,
		Type:        entry.typ,
		Description: entry.payload.Description,
		Source:      domain.SourceWebhook,
	}
	if entry.payload.ExternalID != "" {
		ext := entry.payload.ExternalID
		draft.ExternalID = &ext
	}
	return env.Ledger.CreateTransaction(ctx, env.UserID, draft)
}

// guessStyle reads "12,50" and "1.234,56" the European way. A lone comma
// before exactly three digits ("1,234") is a US thousands group; anything
// else is read US style too.
func guessStyle(v any) NumberStyle {
	s, ok := v.(string)
	if !ok {
		return StyleUS
	}
	if strings.LastIndex(s, ",") <= strings.LastIndex(s, ".") {
		return StyleUS
	}
	if !strings.Contains(s, ".") && strings.Count(s, ",") == 1 && groupOfThree(s, ",") {
		return StyleUS
	}
	return StyleEU
}
