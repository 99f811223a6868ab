package invoicing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	database "github.com/verone/backoffice/db"
)

// DocumentKind names the Qonto document an order can be claimed for.
type DocumentKind string

const (
	DocumentQuote   DocumentKind = "quote"
	DocumentInvoice DocumentKind = "invoice"
)

// A claim older than documentClaimTTL is treated as abandoned.
const documentClaimTTL = 10 * time.Minute

type Repository interface {
	FindOrder(ctx context.Context, orderID uuid.UUID) (*SalesOrder, error)
	// ClaimDocument marks the order as having a document of this kind in
	// flight. Only one caller wins; the others get ErrQuoteExists,
	// ErrInvoiceExists or ErrDocumentInProgress.
	ClaimDocument(ctx context.Context, orderID uuid.UUID, kind DocumentKind) error
	ReleaseDocument(ctx context.Context, orderID uuid.UUID, kind DocumentKind) error
	// SetQuoteID stores the quote and releases the quote claim.
	SetQuoteID(ctx context.Context, orderID uuid.UUID, quoteID string) error
	// CreateInvoice stores the invoice and releases the invoice claim.
	CreateInvoice(ctx context.Context, invoice *Invoice) error
}

type orderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) Repository {
	return &orderRepository{db: db}
}

func (r *orderRepository) FindOrder(ctx context.Context, orderID uuid.UUID) (*SalesOrder, error) {
	query := `
        SELECT o.id, o.order_number, o.customer_id, c.name, COALESCE(c.qonto_client_id, ''), o.currency,
               o.shipping_cost_ht_cents, o.shipping_tax_rate, o.fees_ht_cents, o.fees_vat_rate,
               COALESCE(o.qonto_quote_id, '')
        FROM sales_orders o
        JOIN organisations c ON c.id = o.customer_id
        WHERE o.id = $1
    `
	var order SalesOrder
	err := r.db.QueryRowContext(ctx, query, orderID).Scan(
		&order.ID, &order.OrderNumber, &order.CustomerID, &order.CustomerName, &order.QontoClientID, &order.Currency,
		&order.ShippingCostHTCents, &order.ShippingTaxRate, &order.FeesHTCents, &order.FeesVATRate, &order.QontoQuoteID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT i.id, i.product_id, p.name, i.description, i.quantity, i.unit_price_ht_cents, i.tax_rate
        FROM sales_order_items i
        JOIN products p ON p.id = i.product_id
        WHERE i.sales_order_id = $1
        ORDER BY p.name, i.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName, &item.Description, &item.Quantity,
			&item.UnitPriceHTCents, &item.TaxRate); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}
	return &order, rows.Err()
}

const claimQuoteQuery = `
        UPDATE sales_orders SET quote_claimed_at = NOW()
        WHERE id = $1
          AND qonto_quote_id IS NULL
          AND (quote_claimed_at IS NULL OR quote_claimed_at < NOW() - make_interval(secs => $2))
    `

const claimInvoiceQuery = `
        UPDATE sales_orders o SET invoice_claimed_at = NOW()
        WHERE o.id = $1
          AND NOT EXISTS (SELECT 1 FROM invoices i WHERE i.sales_order_id = o.id AND i.status <> 'cancelled')
          AND (o.invoice_claimed_at IS NULL OR o.invoice_claimed_at < NOW() - make_interval(secs => $2))
    `

// ClaimDocument relies on the row lock taken by UPDATE: a concurrent claim
// waits, then re-checks the claimed_at column and matches no row.
func (r *orderRepository) ClaimDocument(ctx context.Context, orderID uuid.UUID, kind DocumentKind) error {
	query := claimQuoteQuery
	if kind == DocumentInvoice {
		query = claimInvoiceQuery
	}
	res, err := r.db.ExecContext(ctx, query, orderID, documentClaimTTL.Seconds())
	if err != nil {
		return fmt.Errorf("claim %s: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	return r.claimRefusal(ctx, orderID, kind)
}

// claimRefusal explains why a claim matched no row.
func (r *orderRepository) claimRefusal(ctx context.Context, orderID uuid.UUID, kind DocumentKind) error {
	var hasQuote, hasInvoice bool
	err := r.db.QueryRowContext(ctx, `
        SELECT o.qonto_quote_id IS NOT NULL,
               EXISTS(SELECT 1 FROM invoices i WHERE i.sales_order_id = o.id AND i.status <> 'cancelled')
        FROM sales_orders o
        WHERE o.id = $1`, orderID).Scan(&hasQuote, &hasInvoice)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	switch {
	case kind == DocumentQuote && hasQuote:
		return ErrQuoteExists
	case kind == DocumentInvoice && hasInvoice:
		return ErrInvoiceExists
	default:
		return ErrDocumentInProgress
	}
}

func (r *orderRepository) ReleaseDocument(ctx context.Context, orderID uuid.UUID, kind DocumentKind) error {
	query := `UPDATE sales_orders SET quote_claimed_at = NULL WHERE id = $1`
	if kind == DocumentInvoice {
		query = `UPDATE sales_orders SET invoice_claimed_at = NULL WHERE id = $1`
	}
	_, err := r.db.ExecContext(ctx, query, orderID)
	return err
}

func (r *orderRepository) SetQuoteID(ctx context.Context, orderID uuid.UUID, quoteID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sales_orders SET qonto_quote_id = $1, quote_claimed_at = NULL WHERE id = $2`, quoteID, orderID)
	return err
}

func (r *orderRepository) CreateInvoice(ctx context.Context, invoice *Invoice) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO invoices (id, number, sales_order_id, organisation_id, total_cents, currency, status, qonto_invoice_id, issued_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	_, err = tx.ExecContext(ctx, query, invoice.ID, invoice.Number, invoice.SalesOrderID, invoice.OrganisationID,
		invoice.TotalCents, invoice.Currency, invoice.Status, invoice.QontoInvoiceID, invoice.IssuedAt)
	if database.IsUniqueViolation(err) {
		return ErrInvoiceExists
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sales_orders SET invoice_claimed_at = NULL WHERE id = $1`, invoice.SalesOrderID); err != nil {
		return err
	}
	return tx.Commit()
}
