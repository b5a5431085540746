package domain

import "time"

// ============================================================
// Recurring expenses
// ============================================================

// IntervalMonthly is the only recurrence interval currently supported.
const IntervalMonthly = "monthly"

// RecurringExpense is a user-declared expense expected every interval.
type RecurringExpense struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"userId"`
	CategoryID int64     `json:"categoryId"`
	AccountID  int64     `json:"accountId"`
	Name       string    `json:"name"`
	Amount     Amount    `json:"amount"`
	Interval   string    `json:"interval"`
	DayOfMonth int       `json:"dayOfMonth"`
	StartDate  string    `json:"startDate"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RecurringExpenseRequest is the body of POST /v1/recurring.
type RecurringExpenseRequest struct {
	CategoryID int64  `json:"categoryId" validate:"required,gt=0"`
	AccountID  int64  `json:"accountId" validate:"required,gt=0"`
	Name       string `json:"name" validate:"required,max=200"`
	Amount     Amount `json:"amount"`
	Interval   string `json:"interval" validate:"omitempty,oneof=monthly"`
	DayOfMonth int    `json:"dayOfMonth" validate:"required,min=1,max=31"`
	StartDate  string `json:"startDate" validate:"required"`
	Active     *bool  `json:"active,omitempty"`
}

// CheckStatus is the outcome of one expected occurrence.
type CheckStatus string

const (
	CheckMatched CheckStatus = "matched"
	CheckMissing CheckStatus = "missing"
	CheckDue     CheckStatus = "due"
)

// RecurringCheck reports whether one expected occurrence was found in the
// ledger.
type RecurringCheck struct {
	RecurringExpenseID    int64       `json:"recurringExpenseId"`
	Name                  string      `json:"name"`
	AccountID             int64       `json:"accountId"`
	CategoryID            int64       `json:"categoryId"`
	ExpectedDate          string      `json:"expectedDate"`
	ExpectedAmount        Amount      `json:"expectedAmount"`
	ExpectedAmountDisplay string      `json:"expectedAmountDisplay"`
	Status                CheckStatus `json:"status"`
	TransactionID         *int64      `json:"transactionId,omitempty"`
	MatchedDate           string      `json:"matchedDate,omitempty"`
	MatchedAmount         *Amount     `json:"matchedAmount,omitempty"`
	DaysOffset            int         `json:"daysOffset"`
	DaysOverdue           int         `json:"daysOverdue"`
}

// MatchResult is the matcher output: every check, plus the reverse index
// used by the transaction table to show reconciliation status.
type MatchResult struct {
	Checks              []RecurringCheck         `json:"checks"`
	MatchedTransactions map[int64]RecurringCheck `json:"matchedTransactions"`
}
