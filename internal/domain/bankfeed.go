package domain

// ============================================================
// Bank aggregator feed
// ============================================================

// BankFeed is the aggregator document, both pushed by the bank_feed webhook
// and pulled by the sync client.
type BankFeed struct {
	Accounts []BankFeedAccount `json:"accounts" validate:"required,dive"`
}

// BankFeedAccount is one provider account with its recent transactions.
type BankFeedAccount struct {
	ID           string                `json:"id" validate:"required"`
	Name         string                `json:"name"`
	Currency     string                `json:"currency,omitempty"`
	Transactions []BankFeedTransaction `json:"transactions" validate:"dive"`
}

// BankFeedTransaction is one provider transaction. Amount is signed.
// Posted is either a unix timestamp or a calendar date.
type BankFeedTransaction struct {
	ID          string `json:"id" validate:"required"`
	Posted      any    `json:"posted" validate:"required"`
	Amount      Amount `json:"amount"`
	Description string `json:"description"`
	Payee       string `json:"payee,omitempty"`
}

// FeedSyncResult is the response of the bank_feed webhook and of the sync
// endpoint.
type FeedSyncResult struct {
	IngestResult
	UnmatchedAccounts []string `json:"unmatchedAccounts,omitempty"`
}
