package shipping

import (
	"time"

	"github.com/google/uuid"
)

const (
	MethodPacklink       = "packlink"
	MethodManualTracking = "manual_tracking"
	MethodManual         = "manual"

	stockReasonShipment = "shipment"
)

type Shipment struct {
	ID             uuid.UUID  `json:"id"`
	SalesOrderID   uuid.UUID  `json:"sales_order_id"`
	Method         string     `json:"method"`
	Carrier        string     `json:"carrier"`
	Service        string     `json:"service"`
	TrackingNumber string     `json:"tracking_number"`
	TrackingURL    string     `json:"tracking_url"`
	LabelURL       string     `json:"label_url"`
	CarrierRef     string     `json:"carrier_ref"`
	CostCents      int64      `json:"cost_cents"`
	Notes          string     `json:"notes"`
	ShippedAt      time.Time  `json:"shipped_at"`
	CreatedBy      *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	Parcels        []Parcel   `json:"parcels"`
}

type Parcel struct {
	ID          uuid.UUID    `json:"id"`
	Number      int          `json:"number"`
	WeightGrams int          `json:"weight_grams"`
	LengthCm    int          `json:"length_cm"`
	WidthCm     int          `json:"width_cm"`
	HeightCm    int          `json:"height_cm"`
	Items       []ParcelItem `json:"items"`
}

type ParcelItem struct {
	SalesOrderItemID uuid.UUID `json:"sales_order_item_id"`
	ProductID        uuid.UUID `json:"product_id"`
	Quantity         int       `json:"quantity"`
}

type Order struct {
	ID           uuid.UUID
	OrderNumber  string
	CustomerName string
	Items        []OrderItem
}

type OrderItem struct {
	ID              uuid.UUID
	ProductID       uuid.UUID
	Description     string
	Quantity        int
	QuantityShipped int
}

func (i OrderItem) Remaining() int {
	return i.Quantity - i.QuantityShipped
}

// ItemQuantity is a quantity of one sales order line.
type ItemQuantity struct {
	SalesOrderItemID uuid.UUID `json:"sales_order_item_id"`
	Quantity         int       `json:"quantity"`
}

type ParcelInput struct {
	WeightGrams int            `json:"weight_grams"`
	LengthCm    int            `json:"length_cm"`
	WidthCm     int            `json:"width_cm"`
	HeightCm    int            `json:"height_cm"`
	Items       []ItemQuantity `json:"items"`
}

// Address is a Packlink contact. Surname may be left empty, in which case the
// last word of Name is used.
type Address struct {
	Name       string `json:"name"`
	Surname    string `json:"surname"`
	Company    string `json:"company"`
	Street     string `json:"street"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
	Country    string `json:"country"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

// PacklinkDetails is required for the packlink method.
type PacklinkDetails struct {
	ServiceID int     `json:"service_id"`
	Recipient Address `json:"recipient"`
}

type ShipmentInput struct {
	Method         string           `json:"method"`
	Carrier        string           `json:"carrier"`
	Service        string           `json:"service"`
	TrackingNumber string           `json:"tracking_number"`
	TrackingURL    string           `json:"tracking_url"`
	CostCents      int64            `json:"cost_cents"`
	Notes          string           `json:"notes"`
	ShippedAt      *time.Time       `json:"shipped_at"`
	Items          []ItemQuantity   `json:"items"`
	Parcels        []ParcelInput    `json:"parcels"`
	Packlink       *PacklinkDetails `json:"packlink,omitempty"`
}
