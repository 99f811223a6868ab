package qonto

import (
	"context"
	"net/http"
)

type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// Item is one line of a quote or client invoice. Monetary values are decimal
// strings as Qonto expects them.
type Item struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Quantity    string `json:"quantity"`
	Unit        string `json:"unit,omitempty"`
	UnitPrice   Amount `json:"unit_price"`
	VATRate     string `json:"vat_rate"`
}

type QuoteRequest struct {
	ClientID   string `json:"client_id"`
	IssueDate  string `json:"issue_date"`
	ExpiryDate string `json:"expiry_date"`
	Currency   string `json:"currency"`
	Number     string `json:"number,omitempty"`
	Header     string `json:"header,omitempty"`
	Items      []Item `json:"items"`
}

type Quote struct {
	ID          string `json:"id"`
	Number      string `json:"number"`
	Status      string `json:"status"`
	QuoteURL    string `json:"quote_url"`
	TotalAmount Amount `json:"total_amount"`
}

type InvoiceRequest struct {
	ClientID  string `json:"client_id"`
	IssueDate string `json:"issue_date"`
	DueDate   string `json:"due_date"`
	Currency  string `json:"currency"`
	Status    string `json:"status,omitempty"`
	Items     []Item `json:"items"`
}

type Invoice struct {
	ID          string `json:"id"`
	Number      string `json:"number"`
	Status      string `json:"status"`
	InvoiceURL  string `json:"invoice_url"`
	TotalAmount Amount `json:"total_amount"`
}

func (c *Client) CreateQuote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	var resp struct {
		Quote Quote `json:"quote"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/quotes", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Quote, nil
}

func (c *Client) CreateClientInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	var resp struct {
		ClientInvoice Invoice `json:"client_invoice"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/client_invoices", req, &resp); err != nil {
		return nil, err
	}
	return &resp.ClientInvoice, nil
}
