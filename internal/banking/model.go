package banking

import (
	"time"

	"github.com/verone/backoffice/internal/qonto"
)

const (
	SideCredit = "credit"
	SideDebit  = "debit"

	defaultPageSize = 50
	maxPageSize     = 200

	// syncOverlap re-reads the tail of the previous run; upserts make it harmless.
	syncOverlap = 24 * time.Hour
)

type Transaction struct {
	TransactionID string     `json:"transaction_id"`
	AmountCents   int64      `json:"amount_cents"`
	Currency      string     `json:"currency"`
	Side          string     `json:"side"`
	Label         string     `json:"label"`
	EmittedAt     time.Time  `json:"emitted_at"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
	Status        string     `json:"status"`
	Reference     string     `json:"reference"`
	SyncedAt      time.Time  `json:"synced_at"`
}

func fromQonto(t qonto.Transaction) Transaction {
	currency := t.Currency
	if currency == "" {
		currency = "EUR"
	}
	return Transaction{
		TransactionID: t.TransactionID,
		AmountCents:   t.AmountCents,
		Currency:      currency,
		Side:          t.Side,
		Label:         t.Label,
		EmittedAt:     t.EmittedAt.UTC(),
		SettledAt:     t.SettledAt,
		Status:        t.Status,
		Reference:     t.Reference,
	}
}

type SyncResult struct {
	Since           time.Time `json:"since"`
	Fetched         int       `json:"fetched"`
	Inserted        int       `json:"inserted"`
	Updated         int       `json:"updated"`
	Skipped         int       `json:"skipped"`
	ExpensesCreated int       `json:"expenses_created"`
}

type ListFilter struct {
	Side  string
	Limit int
	Page  int
}

type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	Page         int           `json:"page"`
	Limit        int           `json:"limit"`
	Total        int           `json:"total"`
}
