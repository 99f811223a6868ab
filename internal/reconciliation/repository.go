package reconciliation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	database "github.com/verone/backoffice/db"
)

// Store holds the queries that run inside a reconciliation transaction.
type Store interface {
	LockInvoice(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error)
	FindTransaction(ctx context.Context, transactionID string) (*BankTransaction, error)
	FindByTransaction(ctx context.Context, transactionID string) (*Reconciliation, error)
	Insert(ctx context.Context, rec *Reconciliation) error
	Delete(ctx context.Context, invoiceID uuid.UUID, transactionID string) (bool, error)
	ReconciledTotal(ctx context.Context, invoiceID uuid.UUID) (int64, error)
	SetInvoiceStatus(ctx context.Context, invoiceID uuid.UUID, status string) error
}

type Repository interface {
	FindInvoice(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error)
	ListCandidates(ctx context.Context, totalCents int64, limit int) ([]BankTransaction, error)
	ListForInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Reconciliation, error)
	WithinTx(ctx context.Context, fn func(Store) error) error
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type reconciliationRepository struct {
	db *sql.DB
}

func NewReconciliationRepository(db *sql.DB) Repository {
	return &reconciliationRepository{db: db}
}

func (r *reconciliationRepository) WithinTx(ctx context.Context, fn func(Store) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&store{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func scanInvoice(row *sql.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.OrganisationID, &inv.TotalCents, &inv.Currency, &inv.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

const invoiceColumns = `id, number, organisation_id, total_cents, currency, status`

func (r *reconciliationRepository) FindInvoice(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error) {
	return scanInvoice(r.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, invoiceID))
}

// ListCandidates returns unreconciled credits within tolerance of the total,
// closest first.
func (r *reconciliationRepository) ListCandidates(ctx context.Context, totalCents int64, limit int) ([]BankTransaction, error) {
	query := `
        SELECT t.transaction_id, t.amount_cents, t.currency, t.side, t.label, t.emitted_at, t.settled_at, t.status, t.reference
        FROM bank_transactions t
        WHERE t.side = 'credit'
          AND NOT EXISTS (SELECT 1 FROM invoice_reconciliations r WHERE r.transaction_id = t.transaction_id)
          AND ABS(t.amount_cents - $1) * 100 <= $1 * $2
        ORDER BY ABS(t.amount_cents - $1), t.emitted_at DESC
        LIMIT $3
    `
	rows, err := r.db.QueryContext(ctx, query, totalCents, tolerancePercent, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := []BankTransaction{}
	for rows.Next() {
		var t BankTransaction
		if err := rows.Scan(&t.TransactionID, &t.AmountCents, &t.Currency, &t.Side, &t.Label, &t.EmittedAt,
			&t.SettledAt, &t.Status, &t.Reference); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *reconciliationRepository) ListForInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Reconciliation, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT invoice_id, transaction_id, amount_cents, reconciled_by, reconciled_at
        FROM invoice_reconciliations
        WHERE invoice_id = $1
        ORDER BY reconciled_at`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs := []Reconciliation{}
	for rows.Next() {
		var rec Reconciliation
		if err := rows.Scan(&rec.InvoiceID, &rec.TransactionID, &rec.AmountCents, &rec.ReconciledBy, &rec.ReconciledAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type store struct {
	q queryer
}

func (s *store) LockInvoice(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error) {
	return scanInvoice(s.q.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, invoiceID))
}

func (s *store) FindTransaction(ctx context.Context, transactionID string) (*BankTransaction, error) {
	var t BankTransaction
	err := s.q.QueryRowContext(ctx, `
        SELECT transaction_id, amount_cents, currency, side, label, emitted_at, settled_at, status, reference
        FROM bank_transactions WHERE transaction_id = $1`, transactionID).Scan(
		&t.TransactionID, &t.AmountCents, &t.Currency, &t.Side, &t.Label, &t.EmittedAt, &t.SettledAt, &t.Status, &t.Reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *store) FindByTransaction(ctx context.Context, transactionID string) (*Reconciliation, error) {
	var rec Reconciliation
	err := s.q.QueryRowContext(ctx, `
        SELECT invoice_id, transaction_id, amount_cents, reconciled_by, reconciled_at
        FROM invoice_reconciliations WHERE transaction_id = $1`, transactionID).Scan(
		&rec.InvoiceID, &rec.TransactionID, &rec.AmountCents, &rec.ReconciledBy, &rec.ReconciledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *store) Insert(ctx context.Context, rec *Reconciliation) error {
	_, err := s.q.ExecContext(ctx, `
        INSERT INTO invoice_reconciliations (invoice_id, transaction_id, amount_cents, reconciled_by, reconciled_at)
        VALUES ($1, $2, $3, $4, $5)`, rec.InvoiceID, rec.TransactionID, rec.AmountCents, rec.ReconciledBy, rec.ReconciledAt)
	if database.IsUniqueViolation(err) {
		return ErrTransactionReconciled
	}
	if err != nil {
		return fmt.Errorf("insert reconciliation: %w", err)
	}
	return nil
}

func (s *store) Delete(ctx context.Context, invoiceID uuid.UUID, transactionID string) (bool, error) {
	result, err := s.q.ExecContext(ctx,
		`DELETE FROM invoice_reconciliations WHERE invoice_id = $1 AND transaction_id = $2`, invoiceID, transactionID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

func (s *store) ReconciledTotal(ctx context.Context, invoiceID uuid.UUID) (int64, error) {
	var total int64
	err := s.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM invoice_reconciliations WHERE invoice_id = $1`, invoiceID).Scan(&total)
	return total, err
}

func (s *store) SetInvoiceStatus(ctx context.Context, invoiceID uuid.UUID, status string) error {
	_, err := s.q.ExecContext(ctx, `UPDATE invoices SET status = $1 WHERE id = $2`, status, invoiceID)
	return err
}
