package domain

import "time"

// ============================================================
// Staging
// ============================================================

// StagingStatus is the lifecycle state of a staged candidate.
type StagingStatus string

const (
	StagingPending    StagingStatus = "pending"
	StagingDismissed  StagingStatus = "dismissed"
	StagingReconciled StagingStatus = "reconciled"
)

// Valid reports whether s is a known status.
func (s StagingStatus) Valid() bool {
	switch s {
	case StagingPending, StagingDismissed, StagingReconciled:
		return true
	}
	return false
}

// StagedTransaction is an imported candidate waiting for review.
// Amount is signed: negative means money left the account.
type StagedTransaction struct {
	ID            int64         `json:"id"`
	UserID        string        `json:"userId"`
	AccountID     int64         `json:"accountId"`
	Date          string        `json:"date"`
	Amount        Amount        `json:"amount"`
	Description   string        `json:"description"`
	ExternalID    *string       `json:"externalId,omitempty"`
	Status        StagingStatus `json:"status"`
	Source        string        `json:"source"`
	TransactionID *int64        `json:"transactionId,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// StagingFilter narrows ListStaging. An empty Status means pending;
// StatusAll disables the status filter.
type StagingFilter struct {
	AccountID *int64
	Status    string
}

// StatusAll is the list filter value that returns every status.
const StatusAll = "all"

// StagingCandidate is one incoming row before it is staged.
type StagingCandidate struct {
	Date        string  `json:"date" validate:"required"`
	Amount      Amount  `json:"amount"`
	Description string  `json:"description"`
	ExternalID  *string `json:"externalId,omitempty"`
}

// StageRequest is the body of POST /v1/accounts/{accountId}/staging.
type StageRequest struct {
	Candidates []StagingCandidate `json:"candidates" validate:"required,min=1,dive"`
}

// IngestResult summarizes one ingestion batch.
type IngestResult struct {
	Staged  int                 `json:"staged"`
	Skipped int                 `json:"skipped"`
	Rows    []StagedTransaction `json:"rows"`
	Errors  []string            `json:"errors,omitempty"`
}

// Merge folds another batch result into r.
func (r *IngestResult) Merge(o *IngestResult) {
	if o == nil {
		return
	}
	r.Staged += o.Staged
	r.Skipped += o.Skipped
	r.Rows = append(r.Rows, o.Rows...)
	r.Errors = append(r.Errors, o.Errors...)
}

// ============================================================
// Approval
// ============================================================

// ApproveRequest overrides the staged values on promotion. CategoryID is
// kept raw so that both JSON numbers and numeric strings are accepted and
// validated by the service.
type ApproveRequest struct {
	CategoryID  any     `json:"categoryId"`
	Description *string `json:"description,omitempty"`
	Date        *string `json:"date,omitempty"`
	Amount      *Amount `json:"amount,omitempty"`
}

// BulkApproveItem is one element of POST /v1/staging/bulk-approve.
type BulkApproveItem struct {
	ID int64 `json:"id"`
	ApproveRequest
}

// BulkApproveRequest is the body of POST /v1/staging/bulk-approve.
type BulkApproveRequest struct {
	Items []BulkApproveItem `json:"items"`
}

// BulkIDsRequest is the body of bulk-dismiss and bulk-delete.
type BulkIDsRequest struct {
	IDs []int64 `json:"ids"`
}

// BulkItemResult is the per-item outcome of a bulk operation.
type BulkItemResult struct {
	ID          int64        `json:"id"`
	Success     bool         `json:"success"`
	Error       string       `json:"error,omitempty"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

// BulkResult is the response of every bulk endpoint.
type BulkResult struct {
	Results   []BulkItemResult `json:"results"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
}
