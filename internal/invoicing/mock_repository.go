package invoicing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/verone/backoffice/internal/qonto"
)

type claimKey struct {
	orderID uuid.UUID
	kind    DocumentKind
}

// MockOrderRepository keeps orders, invoices and document claims in memory.
type MockOrderRepository struct {
	Orders     map[uuid.UUID]*SalesOrder
	Invoices   []Invoice
	claims     map[claimKey]bool
	shouldFail bool
}

func (m *MockOrderRepository) FindOrder(_ context.Context, orderID uuid.UUID) (*SalesOrder, error) {
	if m.shouldFail {
		return nil, errors.New("repository error")
	}
	order, ok := m.Orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (m *MockOrderRepository) hasOpenInvoice(orderID uuid.UUID) bool {
	for _, invoice := range m.Invoices {
		if invoice.SalesOrderID == orderID && invoice.Status != "cancelled" {
			return true
		}
	}
	return false
}

func (m *MockOrderRepository) ClaimDocument(_ context.Context, orderID uuid.UUID, kind DocumentKind) error {
	order, ok := m.Orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if kind == DocumentQuote && order.QontoQuoteID != "" {
		return ErrQuoteExists
	}
	if kind == DocumentInvoice && m.hasOpenInvoice(orderID) {
		return ErrInvoiceExists
	}
	if m.claims == nil {
		m.claims = map[claimKey]bool{}
	}
	key := claimKey{orderID, kind}
	if m.claims[key] {
		return ErrDocumentInProgress
	}
	m.claims[key] = true
	return nil
}

func (m *MockOrderRepository) ReleaseDocument(_ context.Context, orderID uuid.UUID, kind DocumentKind) error {
	delete(m.claims, claimKey{orderID, kind})
	return nil
}

func (m *MockOrderRepository) Claimed(orderID uuid.UUID, kind DocumentKind) bool {
	return m.claims[claimKey{orderID, kind}]
}

func (m *MockOrderRepository) SetQuoteID(_ context.Context, orderID uuid.UUID, quoteID string) error {
	m.Orders[orderID].QontoQuoteID = quoteID
	delete(m.claims, claimKey{orderID, DocumentQuote})
	return nil
}

func (m *MockOrderRepository) CreateInvoice(_ context.Context, invoice *Invoice) error {
	if m.hasOpenInvoice(invoice.SalesOrderID) {
		return ErrInvoiceExists
	}
	m.Invoices = append(m.Invoices, *invoice)
	delete(m.claims, claimKey{invoice.SalesOrderID, DocumentInvoice})
	return nil
}

type MockQontoClient struct {
	Quotes   []qonto.QuoteRequest
	Invoices []qonto.InvoiceRequest
	Err      error
}

func (m *MockQontoClient) CreateQuote(_ context.Context, req qonto.QuoteRequest) (*qonto.Quote, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.Quotes = append(m.Quotes, req)
	return &qonto.Quote{ID: "quote-1", Number: "D-0001"}, nil
}

func (m *MockQontoClient) CreateClientInvoice(_ context.Context, req qonto.InvoiceRequest) (*qonto.Invoice, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.Invoices = append(m.Invoices, req)
	return &qonto.Invoice{ID: "invoice-1", Number: "F-0001"}, nil
}
