package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
)

const tallyFormResponse = "FORM_RESPONSE"

// tallyLabels maps a normalized question label to the transaction field it
// fills.
var tallyLabels = map[string]string{
	"date":             "date",
	"transaction date": "date",
	"amount":           "amount",
	"value":            "amount",
	"description":      "description",
	"note":             "description",
	"notes":            "description",
	"type":             "type",
	"transaction type": "type",
	"account":          "account",
	"category":         "category",
}

// TallyProcessor handles Tally form submissions. Questions are matched by
// label; choice answers are mapped from option ids to option text. Amounts
// are read European style.
type TallyProcessor struct{}

// NewTallyProcessor creates the Tally form processor.
func NewTallyProcessor() *TallyProcessor { return &TallyProcessor{} }

func (p *TallyProcessor) Type() domain.WebhookType { return domain.WebhookTally }

type tallyEntry struct {
	responseID  string
	date        string
	amount      domain.Amount
	typ         domain.TransactionType
	description string
	account     string
	category    string
}

func (p *TallyProcessor) Validate(raw []byte) error {
	_, err := p.parse(raw)
	return err
}

func (p *TallyProcessor) parse(raw []byte) (*tallyEntry, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &domain.ErrValidation{Message: "payload must be a JSON object: " + err.Error()}
	}

	eventType, err := jsonpath.Get("$.eventType", doc)
	if err != nil || eventType != tallyFormResponse {
		return nil, &domain.ErrValidation{Field: "eventType", Message: fmt.Sprintf("eventType must be %s", tallyFormResponse)}
	}

	rawFields, err := jsonpath.Get("$.data.fields[*]", doc)
	if err != nil {
		return nil, &domain.ErrValidation{Field: "data.fields", Message: "data.fields is required"}
	}
	fields, _ := rawFields.([]any)
	values := map[string]string{}
	for _, f := range fields {
		field, ok := f.(map[string]any)
		if !ok {
			continue
		}
		label, _ := field["label"].(string)
		target, ok := tallyLabels[strings.ToLower(strings.TrimSpace(label))]
		if !ok {
			continue
		}
		if _, seen := values[target]; seen {
			continue
		}
		if v := tallyAnswer(field); v != "" {
			values[target] = v
		}
	}

	for _, required := range []string{"date", "amount", "account", "category"} {
		if values[required] == "" {
			return nil, &domain.ErrValidation{Field: required, Message: fmt.Sprintf("form answer %q is required", required)}
		}
	}

	entry := &tallyEntry{
		description: values["description"],
		account:     values["account"],
		category:    values["category"],
		typ:         domain.TransactionExpense,
	}
	if id, err := jsonpath.Get("$.data.responseId", doc); err == nil {
		entry.responseID, _ = id.(string)
	}
	if entry.description == "" {
		entry.description = "Tally form submission"
	}
	if entry.date, err = domain.ParseDate(values["date"]); err != nil {
		return nil, err
	}
	if entry.amount, err = ParseAmount(values["amount"], StyleEU); err != nil {
		return nil, err
	}
	if err := requirePositive(entry.amount); err != nil {
		return nil, err
	}
	if t := values["type"]; t != "" {
		if entry.typ, err = ParseType(t); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// tallyAnswer renders a field value as text. Choice fields carry option ids
// that are resolved through the field's options.
func tallyAnswer(field map[string]any) string {
	switch v := field["value"].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(optionText(field, v))
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.6f", v), "0"), ".")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, optionText(field, s))
			}
		}
		return strings.TrimSpace(strings.Join(parts, ", "))
	default:
		return fmt.Sprint(v)
	}
}

func optionText(field map[string]any, id string) string {
	options, _ := field["options"].([]any)
	for _, o := range options {
		opt, ok := o.(map[string]any)
		if !ok {
			continue
		}
		if opt["id"] == id {
			if text, ok := opt["text"].(string); ok {
				return text
			}
		}
	}
	return id
}

func (p *TallyProcessor) Process(ctx context.Context, raw []byte, env Env) (any, error) {
	entry, err := p.parse(raw)
	if err != nil {
		return nil, err
	}

	acct, err := resolveAccount(ctx, env, entry.account)
	if err != nil {
		return nil, err
	}
	cat, err := resolveCategory(ctx, env, entry.category)
	if err != nil {
		return nil, err
	}

	draft := domain.TransactionDraft{
		AccountID:   acct.ID,
		CategoryID:  cat.ID,
		Date:        entry.date,
		Amount:      entry.amount,
		Type:        entry.typ,
		Description: entry.description,
		Source:      domain.SourceWebhook,
	}
	if entry.responseID != "" {
		ext := "tally:" + entry.responseID
		draft.ExternalID = &ext
	}
	return env.Ledger.CreateTransaction(ctx, env.UserID, draft)
}
