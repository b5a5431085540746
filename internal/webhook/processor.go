// Package webhook holds the payload processors behind POST /webhooks/{id}.
// Each processor owns its payload conventions and converges on the shared
// create-transaction primitive (or, for bank feeds, the staging ingester).
package webhook

import (
	"context"
	"sort"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/port"
)

// Env is what a processor may touch: the webhook owner and the
// collaborators scoped to that owner.
type Env struct {
	UserID    string
	Directory port.Directory
	Ledger    port.TransactionCreator
	Feeds     port.FeedIngester
}

// Processor validates and processes one payload type.
type Processor interface {
	Type() domain.WebhookType
	// Validate performs structural checks only and returns
	// *domain.ErrValidation on failure.
	Validate(raw []byte) error
	// Process runs the business logic and returns the created record.
	Process(ctx context.Context, raw []byte, env Env) (any, error)
}

// Registry maps webhook types to processors.
type Registry struct {
	processors map[domain.WebhookType]Processor
}

// NewRegistry registers the given processors; a later processor replaces an
// earlier one of the same type.
func NewRegistry(processors ...Processor) *Registry {
	r := &Registry{processors: make(map[domain.WebhookType]Processor, len(processors))}
	for _, p := range processors {
		r.processors[p.Type()] = p
	}
	return r
}

// DefaultRegistry returns every built-in processor.
func DefaultRegistry() *Registry {
	return NewRegistry(NewGenericProcessor(), NewTallyProcessor(), NewBankFeedProcessor())
}

// Lookup returns the processor for t.
func (r *Registry) Lookup(t domain.WebhookType) (Processor, bool) {
	p, ok := r.processors[t]
	return p, ok
}

// Types lists registered types in a stable order.
func (r *Registry) Types() []domain.WebhookType {
	out := make([]domain.WebhookType, 0, len(r.processors))
	for t := range r.processors {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
