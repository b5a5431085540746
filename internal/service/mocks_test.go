package service_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
)

// --- Mocks ---

// memStore implements every storage port in memory.
type memStore struct {
	mu         sync.Mutex
	accounts   map[int64]*domain.Account
	categories map[int64]*domain.Category
	staging    map[int64]*domain.StagedTransaction
	ledger     []domain.Transaction
	recurring  []domain.RecurringExpense
	webhooks   map[string]*domain.Webhook
	logs       []domain.WebhookLog
	nextID     int64

	getAccountCalls int
	promoteErr      error
}

func newMemStore() *memStore {
	return &memStore{
		accounts:   map[int64]*domain.Account{},
		categories: map[int64]*domain.Category{},
		staging:    map[int64]*domain.StagedTransaction{},
		webhooks:   map[string]*domain.Webhook{},
		nextID:     100,
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addAccount(id int64, userID, name string) {
	m.accounts[id] = &domain.Account{ID: id, UserID: userID, Name: name, Currency: "USD", Balance: domain.MustAmount("0")}
}

func (m *memStore) addCategory(id int64, userID, name string) {
	m.categories[id] = &domain.Category{ID: id, UserID: userID, Name: name, Type: "expense"}
}

func (m *memStore) ListAccounts(_ context.Context, userID string) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Account
	for _, a := range m.accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) GetAccount(_ context.Context, id int64) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getAccountCalls++
	a, ok := m.accounts[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: fmt.Sprint(id)}
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) FindAccountByName(_ context.Context, userID, name string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.UserID == userID && strings.EqualFold(a.Name, strings.TrimSpace(name)) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "account", ID: name}
}

func (m *memStore) FindAccountByExternalID(_ context.Context, userID, ext string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.UserID == userID && a.ExternalID != nil && *a.ExternalID == ext {
			cp := *a
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "account", ID: ext}
}

func (m *memStore) ListCategories(_ context.Context, userID string) ([]domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Category
	for _, c := range m.categories {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) GetCategory(_ context.Context, id int64) (*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "category", ID: fmt.Sprint(id)}
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) FindCategoryByName(_ context.Context, userID, name string) (*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.UserID == userID && strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "category", ID: name}
}

func (m *memStore) ListStaging(_ context.Context, userID string, f domain.StagingFilter) ([]domain.StagedTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := f.Status
	if status == "" {
		status = string(domain.StagingPending)
	}
	var out []domain.StagedTransaction
	for _, r := range m.staging {
		if r.UserID != userID || (f.AccountID != nil && r.AccountID != *f.AccountID) {
			continue
		}
		if status != domain.StatusAll && string(r.Status) != status {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) GetStaging(_ context.Context, id int64) (*domain.StagedTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.staging[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "staged transaction", ID: fmt.Sprint(id)}
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) InsertStaging(_ context.Context, row *domain.StagedTransaction) (*domain.StagedTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row.ExternalID != nil {
		for _, r := range m.staging {
			if r.AccountID == row.AccountID && r.ExternalID != nil && *r.ExternalID == *row.ExternalID {
				return nil, nil
			}
		}
		for _, t := range m.ledger {
			if t.AccountID == row.AccountID && t.ExternalID != nil && *t.ExternalID == *row.ExternalID {
				return nil, nil
			}
		}
	}
	cp := *row
	cp.ID = m.id()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.staging[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memStore) TransitionStaging(_ context.Context, id int64, from, to domain.StagingStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.staging[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	return true, nil
}

func (m *memStore) DeleteStaging(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.staging[id]; !ok {
		return false, nil
	}
	delete(m.staging, id)
	return true, nil
}

func (m *memStore) insertLedger(d *domain.TransactionDraft) (*domain.Transaction, error) {
	if d.ExternalID != nil {
		for _, t := range m.ledger {
			if t.AccountID == d.AccountID && t.ExternalID != nil && *t.ExternalID == *d.ExternalID {
				return nil, &domain.ErrConflict{Message: "duplicate external id"}
			}
		}
	}
	tx := domain.Transaction{
		ID: m.id(), AccountID: d.AccountID, CategoryID: d.CategoryID, Date: d.Date,
		Amount: d.Amount, Type: d.Type, Description: d.Description,
		ExternalID: d.ExternalID, StagingID: d.StagingID, Source: d.Source,
	}
	m.ledger = append(m.ledger, tx)
	a := m.accounts[d.AccountID]
	a.Balance = domain.NewAmount(a.Balance.Add(domain.Signed(d.Amount, d.Type).Decimal))
	return &tx, nil
}

func (m *memStore) CreateTransaction(_ context.Context, d *domain.TransactionDraft) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLedger(d)
}

func (m *memStore) PromoteStaging(_ context.Context, id int64, d *domain.TransactionDraft) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.promoteErr != nil {
		return nil, m.promoteErr
	}
	r, ok := m.staging[id]
	if !ok || r.Status != domain.StagingPending {
		return nil, &domain.ErrConflict{Message: "staged transaction is no longer pending"}
	}
	sid := id
	d.StagingID = &sid
	tx, err := m.insertLedger(d)
	if err != nil {
		return nil, err
	}
	r.Status = domain.StagingReconciled
	r.TransactionID = &tx.ID
	return tx, nil
}

func (m *memStore) ListExpenseTransactions(_ context.Context, userID, from, to string) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, t := range m.ledger {
		if a := m.accounts[t.AccountID]; a == nil || a.UserID != userID {
			continue
		}
		if t.Type == domain.TransactionExpense && t.Date >= from && t.Date <= to {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) ListRecurringExpenses(_ context.Context, userID string, activeOnly bool) ([]domain.RecurringExpense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RecurringExpense
	for _, e := range m.recurring {
		if e.UserID == userID && (!activeOnly || e.Active) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) CreateRecurringExpense(_ context.Context, e *domain.RecurringExpense) (*domain.RecurringExpense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	cp.ID = m.id()
	m.recurring = append(m.recurring, cp)
	return &cp, nil
}

func (m *memStore) GetWebhook(_ context.Context, id string) (*domain.Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wh, ok := m.webhooks[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "webhook", ID: id}
	}
	cp := *wh
	return &cp, nil
}

func (m *memStore) ListWebhooks(_ context.Context, userID string) ([]domain.Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Webhook
	for _, wh := range m.webhooks {
		if wh.UserID == userID {
			out = append(out, *wh)
		}
	}
	return out, nil
}

func (m *memStore) CreateWebhook(_ context.Context, wh *domain.Webhook) (*domain.Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *wh
	m.webhooks[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memStore) SetWebhookActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wh, ok := m.webhooks[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "webhook", ID: id}
	}
	wh.Active = active
	return nil
}

func (m *memStore) TouchWebhook(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if wh, ok := m.webhooks[id]; ok {
		wh.LastUsedAt = &at
	}
	return nil
}

func (m *memStore) AppendWebhookLog(ctx context.Context, e *domain.WebhookLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	cp.ID = m.id()
	m.logs = append(m.logs, cp)
	return nil
}

func (m *memStore) ListWebhookLogs(_ context.Context, id string, limit int) ([]domain.WebhookLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WebhookLog
	for i := len(m.logs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.logs[i].WebhookID == id {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

func (m *memStore) ledgerLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ledger)
}

func (m *memStore) balance(accountID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[accountID].Balance.String()
}

type mockFetcher struct {
	feed  *domain.BankFeed
	err   error
	since time.Time
}

func (f *mockFetcher) FetchFeed(_ context.Context, _ string, since time.Time) (*domain.BankFeed, error) {
	f.since = since
	return f.feed, f.err
}

var errBoom = errors.New("boom")

func strPtr(s string) *string { return &s }

func nopLogger() *zap.Logger { return zap.NewNop() }
