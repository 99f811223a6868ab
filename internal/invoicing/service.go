package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/verone/backoffice/internal/logger"
	"github.com/verone/backoffice/internal/qonto"
)

const (
	dateLayout       = "2006-01-02"
	quoteValidity    = 30 * 24 * time.Hour
	invoicePaymentIn = 30 * 24 * time.Hour
)

var (
	ErrOrderNotFound      = errors.New("sales order not found")
	ErrEmptyOrder         = errors.New("sales order has no items")
	ErrMissingClient      = errors.New("customer is not linked to a Qonto client")
	ErrQuoteExists        = errors.New("a quote was already created for this order")
	ErrInvoiceExists      = errors.New("an invoice already exists for this order")
	ErrZeroInvoiceAmount  = errors.New("invoice total must be positive")
	ErrDocumentInProgress = errors.New("a Qonto document is already being created for this order")
)

// QontoClient is the part of the Qonto API used for documents.
type QontoClient interface {
	CreateQuote(ctx context.Context, req qonto.QuoteRequest) (*qonto.Quote, error)
	CreateClientInvoice(ctx context.Context, req qonto.InvoiceRequest) (*qonto.Invoice, error)
}

type QuoteResult struct {
	OrderID    uuid.UUID    `json:"order_id"`
	QuoteID    string       `json:"quote_id"`
	Number     string       `json:"number"`
	QuoteURL   string       `json:"quote_url"`
	Lines      []qonto.Item `json:"lines"`
	TotalCents int64        `json:"total_cents"`
}

type Service interface {
	BuildQuote(ctx context.Context, orderID uuid.UUID) (*qonto.QuoteRequest, error)
	CreateQuote(ctx context.Context, orderID uuid.UUID) (*QuoteResult, error)
	CreateInvoice(ctx context.Context, orderID uuid.UUID) (*Invoice, error)
}

type service struct {
	repo  Repository
	qonto QontoClient
	now   func() time.Time
}

func NewInvoicingService(repo Repository, qontoClient QontoClient) Service {
	return &service{repo: repo, qonto: qontoClient, now: time.Now}
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID) (*SalesOrder, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(order.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	if order.QontoClientID == "" {
		return nil, ErrMissingClient
	}
	if order.Currency == "" {
		order.Currency = "EUR"
	}
	return order, nil
}

// BuildQuote returns the Qonto request for the order without sending it.
func (s *service) BuildQuote(ctx context.Context, orderID uuid.UUID) (*qonto.QuoteRequest, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.quoteRequest(order), nil
}

func (s *service) quoteRequest(order *SalesOrder) *qonto.QuoteRequest {
	now := s.now()
	return &qonto.QuoteRequest{
		ClientID:   order.QontoClientID,
		IssueDate:  now.Format(dateLayout),
		ExpiryDate: now.Add(quoteValidity).Format(dateLayout),
		Currency:   order.Currency,
		Header:     fmt.Sprintf("Commande %s", order.OrderNumber),
		Items:      BuildLines(order),
	}
}

func (s *service) CreateQuote(ctx context.Context, orderID uuid.UUID) (*QuoteResult, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.QontoQuoteID != "" {
		return nil, ErrQuoteExists
	}

	req := s.quoteRequest(order)
	total, err := TotalCents(req.Items)
	if err != nil {
		return nil, err
	}

	if s.qonto == nil {
		return nil, qonto.ErrNotConfigured
	}
	if err := s.repo.ClaimDocument(ctx, order.ID, DocumentQuote); err != nil {
		return nil, err
	}
	quote, err := s.qonto.CreateQuote(ctx, *req)
	if err != nil {
		s.release(ctx, order.ID, DocumentQuote)
		return nil, fmt.Errorf("create qonto quote: %w", err)
	}
	if err := s.repo.SetQuoteID(ctx, order.ID, quote.ID); err != nil {
		logger.L.Error("quote created in Qonto but not stored on order", "orderID", order.ID, "quoteID", quote.ID, "error", err)
		return nil, fmt.Errorf("store quote id: %w", err)
	}

	logger.L.Info("qonto quote created", "orderID", order.ID, "quoteID", quote.ID, "lines", len(req.Items))
	return &QuoteResult{
		OrderID:    order.ID,
		QuoteID:    quote.ID,
		Number:     quote.Number,
		QuoteURL:   quote.QuoteURL,
		Lines:      req.Items,
		TotalCents: total,
	}, nil
}

func (s *service) CreateInvoice(ctx context.Context, orderID uuid.UUID) (*Invoice, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	lines := BuildLines(order)
	total, err := TotalCents(lines)
	if err != nil {
		return nil, err
	}
	if total <= 0 {
		return nil, ErrZeroInvoiceAmount
	}

	if s.qonto == nil {
		return nil, qonto.ErrNotConfigured
	}
	if err := s.repo.ClaimDocument(ctx, order.ID, DocumentInvoice); err != nil {
		return nil, err
	}
	now := s.now()
	created, err := s.qonto.CreateClientInvoice(ctx, qonto.InvoiceRequest{
		ClientID:  order.QontoClientID,
		IssueDate: now.Format(dateLayout),
		DueDate:   now.Add(invoicePaymentIn).Format(dateLayout),
		Currency:  order.Currency,
		Status:    "draft",
		Items:     lines,
	})
	if err != nil {
		s.release(ctx, order.ID, DocumentInvoice)
		return nil, fmt.Errorf("create qonto invoice: %w", err)
	}

	number := created.Number
	if number == "" {
		number = "DRAFT-" + created.ID
	}
	invoice := &Invoice{
		ID:             uuid.New(),
		Number:         number,
		SalesOrderID:   order.ID,
		OrganisationID: order.CustomerID,
		TotalCents:     total,
		Currency:       order.Currency,
		Status:         "unpaid",
		QontoInvoiceID: created.ID,
		IssuedAt:       now,
	}
	if err := s.repo.CreateInvoice(ctx, invoice); err != nil {
		logger.L.Error("invoice created in Qonto but not stored", "orderID", order.ID, "qontoInvoiceID", created.ID, "error", err)
		return nil, err
	}
	return invoice, nil
}

// release lets the order be retried after Qonto refused the document.
func (s *service) release(ctx context.Context, orderID uuid.UUID, kind DocumentKind) {
	if err := s.repo.ReleaseDocument(ctx, orderID, kind); err != nil {
		logger.L.Error("failed to release document claim", "orderID", orderID, "kind", kind, "error", err)
	}
}
