package webhook

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
)

// BankFeedProcessor accepts aggregator pushes. Unlike the other processors
// it stages transactions for review instead of writing the ledger.
type BankFeedProcessor struct{}

// NewBankFeedProcessor creates the aggregator push processor.
func NewBankFeedProcessor() *BankFeedProcessor { return &BankFeedProcessor{} }

func (p *BankFeedProcessor) Type() domain.WebhookType { return domain.WebhookBankFeed }

func (p *BankFeedProcessor) Validate(raw []byte) error {
	_, err := p.parse(raw)
	return err
}

func (p *BankFeedProcessor) parse(raw []byte) (*domain.BankFeed, error) {
	var feed domain.BankFeed
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&feed); err != nil {
		return nil, &domain.ErrValidation{Message: "payload must be a bank feed document: " + err.Error()}
	}
	if err := structError(&feed); err != nil {
		return nil, err
	}
	return &feed, nil
}

func (p *BankFeedProcessor) Process(ctx context.Context, raw []byte, env Env) (any, error) {
	feed, err := p.parse(raw)
	if err != nil {
		return nil, err
	}
	return env.Feeds.IngestFeed(ctx, env.UserID, feed)
}
