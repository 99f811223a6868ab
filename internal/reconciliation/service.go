package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/verone/backoffice/internal/logger"
)

var (
	ErrInvoiceNotFound        = errors.New("invoice not found")
	ErrInvoiceCancelled       = errors.New("invoice is cancelled")
	ErrTransactionNotFound    = errors.New("bank transaction not found")
	ErrTransactionRequired    = errors.New("transaction_id is required")
	ErrNotCreditTransaction   = errors.New("only credit transactions can pay an invoice")
	ErrTransactionReconciled  = errors.New("bank transaction is already reconciled with another invoice")
	ErrReconciliationNotFound = errors.New("reconciliation not found")
)

type Service interface {
	ListCandidates(ctx context.Context, invoiceID uuid.UUID) ([]Candidate, error)
	ListReconciliations(ctx context.Context, invoiceID uuid.UUID) ([]Reconciliation, error)
	Reconcile(ctx context.Context, invoiceID uuid.UUID, transactionID string, userID *uuid.UUID) (*Reconciliation, error)
	Unreconcile(ctx context.Context, invoiceID uuid.UUID, transactionID string) (string, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewReconciliationService(repo Repository) Service {
	return &service{repo: repo, now: time.Now}
}

func (s *service) ListCandidates(ctx context.Context, invoiceID uuid.UUID) ([]Candidate, error) {
	invoice, err := s.repo.FindInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.ListCandidates(ctx, invoice.TotalCents, maxCandidates)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	candidates := make([]Candidate, 0, len(txs))
	for _, t := range txs {
		if t.Side != sideCredit || !withinTolerance(t.AmountCents, invoice.TotalCents) {
			continue
		}
		candidates = append(candidates, Candidate{
			BankTransaction: t,
			ExactMatch:      t.AmountCents == invoice.TotalCents,
			DifferenceCents: t.AmountCents - invoice.TotalCents,
		})
	}
	return candidates, nil
}

func (s *service) ListReconciliations(ctx context.Context, invoiceID uuid.UUID) ([]Reconciliation, error) {
	if _, err := s.repo.FindInvoice(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListForInvoice(ctx, invoiceID)
}

// Reconcile links a credit transaction to an invoice. Repeating the same pair
// returns the existing link unchanged. The invoice turns paid once the linked
// credits cover its total.
func (s *service) Reconcile(ctx context.Context, invoiceID uuid.UUID, transactionID string, userID *uuid.UUID) (*Reconciliation, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, ErrTransactionRequired
	}

	var result *Reconciliation
	err := s.repo.WithinTx(ctx, func(st Store) error {
		invoice, err := st.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status == InvoiceCancelled {
			return ErrInvoiceCancelled
		}

		existing, err := st.FindByTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.InvoiceID != invoiceID {
				return ErrTransactionReconciled
			}
			existing.AlreadyReconciled = true
			existing.InvoiceStatus = invoice.Status
			result = existing
			return nil
		}

		tx, err := st.FindTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if tx.Side != sideCredit {
			return ErrNotCreditTransaction
		}

		rec := &Reconciliation{
			InvoiceID:     invoiceID,
			TransactionID: tx.TransactionID,
			AmountCents:   tx.AmountCents,
			ReconciledBy:  userID,
			ReconciledAt:  s.now(),
		}
		if err := st.Insert(ctx, rec); err != nil {
			return err
		}

		status, err := s.settle(ctx, st, invoice)
		if err != nil {
			return err
		}
		rec.InvoiceStatus = status
		result = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadyReconciled {
		logger.L.Info("invoice reconciled",
			"invoiceID", invoiceID,
			"transactionID", transactionID,
			"amountCents", result.AmountCents,
			"invoiceStatus", result.InvoiceStatus)
	}
	return result, nil
}

// Unreconcile removes a link and reopens the invoice when the remaining
// credits no longer cover it. It returns the resulting invoice status.
func (s *service) Unreconcile(ctx context.Context, invoiceID uuid.UUID, transactionID string) (string, error) {
	var status string
	err := s.repo.WithinTx(ctx, func(st Store) error {
		invoice, err := st.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		deleted, err := st.Delete(ctx, invoiceID, transactionID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrReconciliationNotFound
		}
		status, err = s.settle(ctx, st, invoice)
		return err
	})
	if err != nil {
		return "", err
	}
	logger.L.Info("invoice reconciliation removed", "invoiceID", invoiceID, "transactionID", transactionID, "invoiceStatus", status)
	return status, nil
}

// settle recomputes the invoice status from the reconciled total.
func (s *service) settle(ctx context.Context, st Store, invoice *Invoice) (string, error) {
	if invoice.Status == InvoiceCancelled {
		return invoice.Status, nil
	}
	total, err := st.ReconciledTotal(ctx, invoice.ID)
	if err != nil {
		return "", err
	}
	status := InvoiceUnpaid
	if total >= invoice.TotalCents {
		status = InvoicePaid
	}
	if status != invoice.Status {
		if err := st.SetInvoiceStatus(ctx, invoice.ID, status); err != nil {
			return "", err
		}
	}
	return status, nil
}
