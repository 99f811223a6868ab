package shipping

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	appErrors "github.com/verone/backoffice/internal/errors"
)

func (in ShipmentInput) normalize() ShipmentInput {
	in.Method = strings.ToLower(strings.TrimSpace(in.Method))
	in.Carrier = strings.TrimSpace(in.Carrier)
	in.Service = strings.TrimSpace(in.Service)
	in.TrackingNumber = strings.TrimSpace(in.TrackingNumber)
	in.TrackingURL = strings.TrimSpace(in.TrackingURL)
	in.Notes = strings.TrimSpace(in.Notes)
	return in
}

// parcelTotals sums the quantity of every sales order item across parcels.
func parcelTotals(parcels []ParcelInput) map[uuid.UUID]int {
	totals := map[uuid.UUID]int{}
	for _, p := range parcels {
		for _, it := range p.Items {
			totals[it.SalesOrderItemID] += it.Quantity
		}
	}
	return totals
}

// validate checks the input on its own: parcels, quantities, the parcel sums
// against the declared items and the fields each method needs.
func (in ShipmentInput) validate() error {
	ve := &appErrors.ValidationErrors{}

	switch in.Method {
	case MethodPacklink, MethodManualTracking, MethodManual:
	default:
		ve.Add(appErrors.NewValidationError("method must be one of packlink, manual_tracking, manual"))
	}

	if len(in.Parcels) == 0 {
		ve.Add(appErrors.NewValidationError("at least one parcel is required"))
	}
	for i, p := range in.Parcels {
		if len(p.Items) == 0 {
			ve.Add(appErrors.NewIndexedValidationError("parcel", i+1, "at least one item is required"))
		}
		for _, it := range p.Items {
			if it.Quantity <= 0 {
				ve.Add(appErrors.NewIndexedValidationError("parcel", i+1, "item quantities must be greater than zero"))
				break
			}
		}
		if p.WeightGrams < 0 || p.LengthCm < 0 || p.WidthCm < 0 || p.HeightCm < 0 {
			ve.Add(appErrors.NewIndexedValidationError("parcel", i+1, "dimensions cannot be negative"))
		}
	}

	declared := map[uuid.UUID]int{}
	if len(in.Items) == 0 {
		ve.Add(appErrors.NewValidationError("at least one item is required"))
	}
	for i, it := range in.Items {
		if it.Quantity <= 0 {
			ve.Add(appErrors.NewIndexedValidationError("item", i+1, "quantity must be greater than zero"))
		}
		if _, dup := declared[it.SalesOrderItemID]; dup {
			ve.Add(appErrors.NewIndexedValidationError("item", i+1, "item is listed twice"))
		}
		declared[it.SalesOrderItemID] += it.Quantity
	}

	totals := parcelTotals(in.Parcels)
	for id, qty := range declared {
		if totals[id] != qty {
			ve.Add(appErrors.NewValidationError(fmt.Sprintf(
				"parcels hold %d of item %s but %d are declared", totals[id], id, qty)))
		}
	}
	for id := range totals {
		if _, ok := declared[id]; !ok {
			ve.Add(appErrors.NewValidationError(fmt.Sprintf("item %s is in a parcel but not declared", id)))
		}
	}

	if in.Method == MethodManualTracking {
		if in.Carrier == "" {
			ve.Add(appErrors.NewValidationError("carrier is required for manual_tracking"))
		}
		if in.TrackingNumber == "" {
			ve.Add(appErrors.NewValidationError("tracking_number is required for manual_tracking"))
		}
	}
	if in.Method == MethodPacklink {
		switch {
		case in.Packlink == nil:
			ve.Add(appErrors.NewValidationError("packlink details are required for packlink"))
		case in.Packlink.ServiceID <= 0:
			ve.Add(appErrors.NewValidationError("packlink.service_id is required"))
		default:
			r := in.Packlink.Recipient
			if r.Name == "" || r.Street == "" || r.PostalCode == "" || r.City == "" || r.Country == "" {
				ve.Add(appErrors.NewValidationError("packlink.recipient needs name, street, postal_code, city and country"))
			}
		}
	}
	if in.CostCents < 0 {
		ve.Add(appErrors.NewValidationError("cost_cents cannot be negative"))
	}

	return ve.OrNil()
}

// validateAgainstOrder checks that every declared item belongs to the order
// and does not exceed what is left to ship.
func (in ShipmentInput) validateAgainstOrder(items []OrderItem) error {
	byID := make(map[uuid.UUID]OrderItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	ve := &appErrors.ValidationErrors{}
	for _, it := range in.Items {
		orderItem, ok := byID[it.SalesOrderItemID]
		if !ok {
			ve.Add(appErrors.NewValidationError(fmt.Sprintf("item %s does not belong to this order", it.SalesOrderItemID)))
			continue
		}
		if it.Quantity > orderItem.Remaining() {
			ve.Add(appErrors.NewValidationError(fmt.Sprintf(
				"item %s: %d requested but only %d left to ship", it.SalesOrderItemID, it.Quantity, orderItem.Remaining())))
		}
	}
	return ve.OrNil()
}
