package invoicing

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/verone/backoffice/internal/qonto"
)

var (
	defaultVATRate = decimal.RequireFromString("0.2")
	hundred        = decimal.NewFromInt(100)
)

type SalesOrder struct {
	ID                  uuid.UUID
	OrderNumber         string
	CustomerID          uuid.UUID
	CustomerName        string
	QontoClientID       string
	Currency            string
	ShippingCostHTCents int64
	ShippingTaxRate     decimal.NullDecimal
	FeesHTCents         int64
	FeesVATRate         decimal.NullDecimal
	QontoQuoteID        string
	Items               []OrderItem
}

type OrderItem struct {
	ID               uuid.UUID
	ProductID        uuid.UUID
	ProductName      string
	Description      string
	Quantity         int
	UnitPriceHTCents int64
	TaxRate          decimal.NullDecimal
}

type Invoice struct {
	ID             uuid.UUID `json:"id"`
	Number         string    `json:"number"`
	SalesOrderID   uuid.UUID `json:"sales_order_id"`
	OrganisationID uuid.UUID `json:"organisation_id"`
	TotalCents     int64     `json:"total_cents"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
	QontoInvoiceID string    `json:"qonto_invoice_id"`
	IssuedAt       time.Time `json:"issued_at"`
}

func rateOrDefault(rate decimal.NullDecimal) decimal.Decimal {
	if rate.Valid {
		return rate.Decimal
	}
	return defaultVATRate
}

func centsToAmount(cents int64, currency string) qonto.Amount {
	return qonto.Amount{Value: decimal.New(cents, -2).StringFixed(2), Currency: currency}
}

// BuildLines maps an order to Qonto lines: one per item, then shipping and
// fees when they are charged. Missing VAT rates fall back to 20%.
func BuildLines(order *SalesOrder) []qonto.Item {
	currency := order.Currency
	if currency == "" {
		currency = "EUR"
	}

	lines := make([]qonto.Item, 0, len(order.Items)+2)
	for _, item := range order.Items {
		title := item.ProductName
		if title == "" {
			title = item.Description
		}
		lines = append(lines, qonto.Item{
			Title:       title,
			Description: item.Description,
			Quantity:    strconv.Itoa(item.Quantity),
			Unit:        "unit",
			UnitPrice:   centsToAmount(item.UnitPriceHTCents, currency),
			VATRate:     rateOrDefault(item.TaxRate).String(),
		})
	}
	if order.ShippingCostHTCents > 0 {
		lines = append(lines, qonto.Item{
			Title:     "Frais de livraison",
			Quantity:  "1",
			UnitPrice: centsToAmount(order.ShippingCostHTCents, currency),
			VATRate:   rateOrDefault(order.ShippingTaxRate).String(),
		})
	}
	if order.FeesHTCents > 0 {
		lines = append(lines, qonto.Item{
			Title:     "Frais de service",
			Quantity:  "1",
			UnitPrice: centsToAmount(order.FeesHTCents, currency),
			VATRate:   rateOrDefault(order.FeesVATRate).String(),
		})
	}
	return lines
}

// TotalCents sums the lines including VAT, rounded to the cent per line.
func TotalCents(lines []qonto.Item) (int64, error) {
	total := decimal.Zero
	for i, line := range lines {
		quantity, err := decimal.NewFromString(line.Quantity)
		if err != nil {
			return 0, fmt.Errorf("line %d quantity: %w", i+1, err)
		}
		unit, err := decimal.NewFromString(line.UnitPrice.Value)
		if err != nil {
			return 0, fmt.Errorf("line %d unit price: %w", i+1, err)
		}
		vat, err := decimal.NewFromString(line.VATRate)
		if err != nil {
			return 0, fmt.Errorf("line %d vat rate: %w", i+1, err)
		}
		lineTotal := quantity.Mul(unit).Mul(decimal.NewFromInt(1).Add(vat)).Round(2)
		total = total.Add(lineTotal)
	}
	return total.Mul(hundred).IntPart(), nil
}
