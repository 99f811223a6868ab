package reconciliation

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// MockRepository is an in-memory Repository. WithinTx works on a copy of the
// reconciliations and invoice statuses and keeps it only when fn succeeds.
type MockRepository struct {
	Invoices        map[uuid.UUID]*Invoice
	Transactions    map[string]*BankTransaction
	Reconciliations []Reconciliation
	FailInsert      error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		Invoices:     map[uuid.UUID]*Invoice{},
		Transactions: map[string]*BankTransaction{},
	}
}

func (m *MockRepository) FindInvoice(_ context.Context, invoiceID uuid.UUID) (*Invoice, error) {
	inv, ok := m.Invoices[invoiceID]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	copied := *inv
	return &copied, nil
}

func (m *MockRepository) isReconciled(transactionID string) bool {
	for _, rec := range m.Reconciliations {
		if rec.TransactionID == transactionID {
			return true
		}
	}
	return false
}

func (m *MockRepository) ListCandidates(_ context.Context, totalCents int64, limit int) ([]BankTransaction, error) {
	txs := []BankTransaction{}
	for _, t := range m.Transactions {
		if t.Side == sideCredit && !m.isReconciled(t.TransactionID) && withinTolerance(t.AmountCents, totalCents) {
			txs = append(txs, *t)
		}
	}
	distance := func(t BankTransaction) int64 {
		if t.AmountCents > totalCents {
			return t.AmountCents - totalCents
		}
		return totalCents - t.AmountCents
	}
	sort.Slice(txs, func(i, j int) bool {
		if distance(txs[i]) != distance(txs[j]) {
			return distance(txs[i]) < distance(txs[j])
		}
		return txs[i].EmittedAt.After(txs[j].EmittedAt)
	})
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (m *MockRepository) ListForInvoice(_ context.Context, invoiceID uuid.UUID) ([]Reconciliation, error) {
	recs := []Reconciliation{}
	for _, rec := range m.Reconciliations {
		if rec.InvoiceID == invoiceID {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func (m *MockRepository) WithinTx(_ context.Context, fn func(Store) error) error {
	st := &mockStore{
		repo:            m,
		reconciliations: append([]Reconciliation(nil), m.Reconciliations...),
		statuses:        map[uuid.UUID]string{},
	}
	if err := fn(st); err != nil {
		return err
	}
	m.Reconciliations = st.reconciliations
	for id, status := range st.statuses {
		m.Invoices[id].Status = status
	}
	return nil
}

type mockStore struct {
	repo            *MockRepository
	reconciliations []Reconciliation
	statuses        map[uuid.UUID]string
}

func (s *mockStore) LockInvoice(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error) {
	return s.repo.FindInvoice(ctx, invoiceID)
}

func (s *mockStore) FindTransaction(_ context.Context, transactionID string) (*BankTransaction, error) {
	t, ok := s.repo.Transactions[transactionID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	copied := *t
	return &copied, nil
}

func (s *mockStore) FindByTransaction(_ context.Context, transactionID string) (*Reconciliation, error) {
	for _, rec := range s.reconciliations {
		if rec.TransactionID == transactionID {
			copied := rec
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *mockStore) Insert(_ context.Context, rec *Reconciliation) error {
	if s.repo.FailInsert != nil {
		return s.repo.FailInsert
	}
	s.reconciliations = append(s.reconciliations, *rec)
	return nil
}

func (s *mockStore) Delete(_ context.Context, invoiceID uuid.UUID, transactionID string) (bool, error) {
	for i, rec := range s.reconciliations {
		if rec.InvoiceID == invoiceID && rec.TransactionID == transactionID {
			s.reconciliations = append(s.reconciliations[:i], s.reconciliations[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *mockStore) ReconciledTotal(_ context.Context, invoiceID uuid.UUID) (int64, error) {
	var total int64
	for _, rec := range s.reconciliations {
		if rec.InvoiceID == invoiceID {
			total += rec.AmountCents
		}
	}
	return total, nil
}

func (s *mockStore) SetInvoiceStatus(_ context.Context, invoiceID uuid.UUID, status string) error {
	s.statuses[invoiceID] = status
	return nil
}
