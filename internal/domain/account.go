package domain

import "time"

// ============================================================
// Accounts & Categories
// ============================================================

// Account is a user-owned bank or cash account. Ownership of every staged
// and ledger row is resolved through its account.
type Account struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"userId"`
	Name       string    `json:"name"`
	ExternalID *string   `json:"externalId,omitempty"` // provider account id from the aggregator
	Currency   string    `json:"currency"`
	Balance    Amount    `json:"balance"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Category classifies ledger transactions.
type Category struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Type      string    `json:"type"` // income, expense
	CreatedAt time.Time `json:"createdAt"`
}

// ============================================================
// Ledger
// ============================================================

// TransactionType is the direction of a ledger row.
type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionIncome || t == TransactionExpense
}

// Transaction sources.
const (
	SourceManual   = "manual"
	SourceBankFeed = "bank_feed"
	SourceWebhook  = "webhook"
	SourceStaging  = "staging"
)

// Transaction is a permanent ledger row. Amount is always the magnitude;
// Type carries the direction.
type Transaction struct {
	ID          int64           `json:"id"`
	AccountID   int64           `json:"accountId"`
	CategoryID  int64           `json:"categoryId"`
	Date        string          `json:"date"` // YYYY-MM-DD
	Amount      Amount          `json:"amount"`
	Type        TransactionType `json:"type"`
	Description string          `json:"description"`
	ExternalID  *string         `json:"externalId,omitempty"`
	StagingID   *int64          `json:"stagingId,omitempty"`
	Source      string          `json:"source"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// TransactionDraft is the validated input of the shared create-transaction
// primitive used by approval and by webhook processors.
type TransactionDraft struct {
	AccountID   int64
	CategoryID  int64
	Date        string
	Amount      Amount
	Type        TransactionType
	Description string
	ExternalID  *string
	StagingID   *int64
	Source      string
}

// DateLayout is the canonical calendar date format of the ledger.
const DateLayout = "2006-01-02"
