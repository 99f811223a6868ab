package banking

import (
	"context"
	"sort"
	"time"

	"github.com/verone/backoffice/internal/email"
	"github.com/verone/backoffice/internal/qonto"
)

type MockExpense struct {
	TransactionID   string
	NormalizedLabel string
	AmountCents     int64
}

// MockRepository keeps transactions and expenses in memory. WithinTx applies
// the writes only when fn succeeds.
type MockRepository struct {
	Transactions map[string]Transaction
	Expenses     map[string]MockExpense
	LastSync     time.Time
	FailExpense  error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		Transactions: map[string]Transaction{},
		Expenses:     map[string]MockExpense{},
	}
}

func (m *MockRepository) LastSyncedAt(context.Context) (time.Time, error) {
	return m.LastSync, nil
}

func (m *MockRepository) List(_ context.Context, filter ListFilter) ([]Transaction, int, error) {
	txs := []Transaction{}
	for _, t := range m.Transactions {
		if filter.Side == "" || t.Side == filter.Side {
			txs = append(txs, t)
		}
	}
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].EmittedAt.Equal(txs[j].EmittedAt) {
			return txs[i].EmittedAt.After(txs[j].EmittedAt)
		}
		return txs[i].TransactionID < txs[j].TransactionID
	})
	total := len(txs)
	start := (filter.Page - 1) * filter.Limit
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return txs[start:end], total, nil
}

func (m *MockRepository) WithinTx(_ context.Context, fn func(Store) error) error {
	st := &mockStore{repo: m, transactions: map[string]Transaction{}, expenses: map[string]MockExpense{}}
	for k, v := range m.Transactions {
		st.transactions[k] = v
	}
	for k, v := range m.Expenses {
		st.expenses[k] = v
	}
	if err := fn(st); err != nil {
		return err
	}
	m.Transactions = st.transactions
	m.Expenses = st.expenses
	return nil
}

type mockStore struct {
	repo         *MockRepository
	transactions map[string]Transaction
	expenses     map[string]MockExpense
}

func (s *mockStore) UpsertTransaction(_ context.Context, t Transaction) (bool, error) {
	_, exists := s.transactions[t.TransactionID]
	s.transactions[t.TransactionID] = t
	return !exists, nil
}

func (s *mockStore) InsertExpense(_ context.Context, t Transaction, normalizedLabel string) (bool, error) {
	if s.repo.FailExpense != nil {
		return false, s.repo.FailExpense
	}
	if _, exists := s.expenses[t.TransactionID]; exists {
		return false, nil
	}
	s.expenses[t.TransactionID] = MockExpense{TransactionID: t.TransactionID, NormalizedLabel: normalizedLabel, AmountCents: t.AmountCents}
	return true, nil
}

// MockSource returns Transactions and remembers the since it was asked for.
type MockSource struct {
	Transactions []qonto.Transaction
	Err          error
	Since        time.Time
	Entered      chan struct{}
	Block        chan struct{}
}

func (m *MockSource) ListTransactions(_ context.Context, since time.Time) ([]qonto.Transaction, error) {
	m.Since = since
	if m.Entered != nil {
		m.Entered <- struct{}{}
	}
	if m.Block != nil {
		<-m.Block
	}
	return m.Transactions, m.Err
}

type queuedEmail struct {
	To   string
	Data email.EmailData
}

type MockEmailSender struct {
	Queued []queuedEmail
}

func (m *MockEmailSender) QueueEmail(to string, data email.EmailData) {
	m.Queued = append(m.Queued, queuedEmail{To: to, Data: data})
}

type MockLabelCache struct {
	Invalidations int
}

func (m *MockLabelCache) InvalidateLabels() {
	m.Invalidations++
}
