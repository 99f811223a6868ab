package reconciliation

import (
	"time"

	"github.com/google/uuid"
)

const (
	InvoiceUnpaid    = "unpaid"
	InvoicePaid      = "paid"
	InvoiceCancelled = "cancelled"

	sideCredit = "credit"

	// tolerancePercent bounds how far a candidate's amount may be from the
	// invoice total.
	tolerancePercent = 10
	maxCandidates    = 50
)

type Invoice struct {
	ID             uuid.UUID `json:"id"`
	Number         string    `json:"number"`
	OrganisationID uuid.UUID `json:"organisation_id"`
	TotalCents     int64     `json:"total_cents"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
}

type BankTransaction struct {
	TransactionID string     `json:"transaction_id"`
	AmountCents   int64      `json:"amount_cents"`
	Currency      string     `json:"currency"`
	Side          string     `json:"side"`
	Label         string     `json:"label"`
	EmittedAt     time.Time  `json:"emitted_at"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
	Status        string     `json:"status"`
	Reference     string     `json:"reference"`
}

type Candidate struct {
	BankTransaction
	ExactMatch      bool  `json:"exact_match"`
	DifferenceCents int64 `json:"difference_cents"`
}

type Reconciliation struct {
	InvoiceID         uuid.UUID  `json:"invoice_id"`
	TransactionID     string     `json:"transaction_id"`
	AmountCents       int64      `json:"amount_cents"`
	ReconciledBy      *uuid.UUID `json:"reconciled_by,omitempty"`
	ReconciledAt      time.Time  `json:"reconciled_at"`
	AlreadyReconciled bool       `json:"already_reconciled"`
	InvoiceStatus     string     `json:"invoice_status"`
}

// withinTolerance reports whether amount is no further than 10% from total.
func withinTolerance(amount, total int64) bool {
	diff := amount - total
	if diff < 0 {
		diff = -diff
	}
	return diff*100 <= total*tolerancePercent
}
