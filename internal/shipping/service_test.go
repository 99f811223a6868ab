package shipping

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appErrors "github.com/verone/backoffice/internal/errors"
)

type fixture struct {
	repo     *MockRepository
	orderID  uuid.UUID
	chair    OrderItem
	lamp     OrderItem
	chairSKU uuid.UUID
	lampSKU  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     NewMockRepository(),
		orderID:  uuid.New(),
		chairSKU: uuid.New(),
		lampSKU:  uuid.New(),
	}
	f.chair = OrderItem{ID: uuid.New(), ProductID: f.chairSKU, Description: "Chaise Osaka", Quantity: 3}
	f.lamp = OrderItem{ID: uuid.New(), ProductID: f.lampSKU, Description: "Lampe Nara", Quantity: 2}
	f.repo.Orders[f.orderID] = &Order{
		ID:           f.orderID,
		OrderNumber:  "SO-2024-0042",
		CustomerName: "Maison Lumière",
		Items:        []OrderItem{f.chair, f.lamp},
	}
	f.repo.Stock[f.chairSKU] = 10
	f.repo.Stock[f.lampSKU] = 5
	return f
}

func (f *fixture) twoParcels(method string) ShipmentInput {
	return ShipmentInput{
		Method:         method,
		Carrier:        "Colissimo",
		TrackingNumber: "6A123456789",
		Items: []ItemQuantity{
			{SalesOrderItemID: f.chair.ID, Quantity: 3},
			{SalesOrderItemID: f.lamp.ID, Quantity: 2},
		},
		Parcels: []ParcelInput{
			{WeightGrams: 12000, LengthCm: 80, WidthCm: 60, HeightCm: 50, Items: []ItemQuantity{
				{SalesOrderItemID: f.chair.ID, Quantity: 2},
				{SalesOrderItemID: f.lamp.ID, Quantity: 1},
			}},
			{WeightGrams: 6500, LengthCm: 60, WidthCm: 40, HeightCm: 40, Items: []ItemQuantity{
				{SalesOrderItemID: f.chair.ID, Quantity: 1},
				{SalesOrderItemID: f.lamp.ID, Quantity: 1},
			}},
		},
	}
}

func (f *fixture) shipped(itemID uuid.UUID) int {
	for _, it := range f.repo.Orders[f.orderID].Items {
		if it.ID == itemID {
			return it.QuantityShipped
		}
	}
	return -1
}

func TestCreateShipment_MultiParcel(t *testing.T) {
	f := newFixture(t)
	svc := NewShipmentService(f.repo, nil)
	userID := uuid.New()

	shipment, err := svc.CreateShipment(context.Background(), f.orderID, f.twoParcels(MethodManualTracking), &userID)
	require.NoError(t, err)

	assert.Equal(t, MethodManualTracking, shipment.Method)
	assert.Equal(t, "Colissimo", shipment.Carrier)
	assert.Equal(t, &userID, shipment.CreatedBy)
	require.Len(t, shipment.Parcels, 2)
	assert.Equal(t, 1, shipment.Parcels[0].Number)
	assert.Equal(t, 2, shipment.Parcels[1].Number)
	assert.Equal(t, f.chairSKU, shipment.Parcels[0].Items[0].ProductID)

	assert.Equal(t, 3, f.shipped(f.chair.ID))
	assert.Equal(t, 2, f.shipped(f.lamp.ID))
	assert.Equal(t, 7, f.repo.Stock[f.chairSKU])
	assert.Equal(t, 3, f.repo.Stock[f.lampSKU])

	require.Len(t, f.repo.StockMovements, 2)
	for _, mv := range f.repo.StockMovements {
		assert.Equal(t, "shipment", mv.Reason)
		assert.Equal(t, shipment.ID, mv.ReferenceID)
		assert.Less(t, mv.Delta, 0)
	}

	require.Len(t, f.repo.Shipments, 1)
	assert.Len(t, f.repo.Shipments[0].Parcels, 2)
	assert.Len(t, f.repo.Shipments[0].Parcels[1].Items, 2)
}

func TestCreateShipment_PartialThenRest(t *testing.T) {
	f := newFixture(t)
	svc := NewShipmentService(f.repo, nil)
	ctx := context.Background()

	first := ShipmentInput{
		Method: MethodManual,
		Items:  []ItemQuantity{{SalesOrderItemID: f.chair.ID, Quantity: 2}},
		Parcels: []ParcelInput{{Items: []ItemQuantity{
			{SalesOrderItemID: f.chair.ID, Quantity: 1},
			{SalesOrderItemID: f.chair.ID, Quantity: 1},
		}}},
	}
	shipment, err := svc.CreateShipment(ctx, f.orderID, first, nil)
	require.NoError(t, err)
	require.Len(t, shipment.Parcels[0].Items, 1)
	assert.Equal(t, 2, shipment.Parcels[0].Items[0].Quantity)
	assert.Nil(t, shipment.CreatedBy)

	second := first
	second.Items = []ItemQuantity{{SalesOrderItemID: f.chair.ID, Quantity: 2}}
	_, err = svc.CreateShipment(ctx, f.orderID, second, nil)
	assert.True(t, appErrors.IsValidationErrors(err))
	assert.Equal(t, 2, f.shipped(f.chair.ID))

	third := ShipmentInput{
		Method:  MethodManual,
		Items:   []ItemQuantity{{SalesOrderItemID: f.chair.ID, Quantity: 1}},
		Parcels: []ParcelInput{{Items: []ItemQuantity{{SalesOrderItemID: f.chair.ID, Quantity: 1}}}},
	}
	_, err = svc.CreateShipment(ctx, f.orderID, third, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, f.shipped(f.chair.ID))

	shipments, err := svc.ListShipments(ctx, f.orderID)
	require.NoError(t, err)
	assert.Len(t, shipments, 2)
}

func TestCreateShipment_Validation(t *testing.T) {
	f := newFixture(t)
	svc := NewShipmentService(f.repo, nil)

	tests := []struct {
		name   string
		modify func(in *ShipmentInput)
		want   string
	}{
		{"unknown method", func(in *ShipmentInput) { in.Method = "pigeon" }, "method must be one of"},
		{"no parcels", func(in *ShipmentInput) { in.Parcels = nil }, "at least one parcel"},
		{"parcel sum differs", func(in *ShipmentInput) { in.Items[0].Quantity = 2 }, "parcels hold 3"},
		{"undeclared parcel item", func(in *ShipmentInput) { in.Items = in.Items[:1] }, "not declared"},
		{"duplicate item", func(in *ShipmentInput) { in.Items = append(in.Items, in.Items[0]) }, "listed twice"},
		{"missing tracking", func(in *ShipmentInput) { in.TrackingNumber = "  " }, "tracking_number is required"},
		{"negative dimension", func(in *ShipmentInput) { in.Parcels[0].HeightCm = -1 }, "cannot be negative"},
		{"zero quantity", func(in *ShipmentInput) { in.Parcels[1].Items[0].Quantity = 0 }, "greater than zero"},
		{"packlink without details", func(in *ShipmentInput) { in.Method = MethodPacklink }, "packlink details are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := f.twoParcels(MethodManualTracking)
			tt.modify(&in)
			_, err := svc.CreateShipment(context.Background(), f.orderID, in, nil)
			messages, ok := appErrors.AsValidationErrors(err)
			require.True(t, ok, "expected validation errors, got %v", err)
			assert.Contains(t, joinMessages(messages), tt.want)
		})
	}

	assert.Empty(t, f.repo.Shipments)
	assert.Equal(t, 0, f.shipped(f.chair.ID))
}

func joinMessages(messages []string) string {
	out := ""
	for _, m := range messages {
		out += m + "\n"
	}
	return out
}

func TestCreateShipment_ItemFromAnotherOrder(t *testing.T) {
	f := newFixture(t)
	svc := NewShipmentService(f.repo, nil)
	foreign := uuid.New()

	in := ShipmentInput{
		Method:  MethodManual,
		Items:   []ItemQuantity{{SalesOrderItemID: foreign, Quantity: 1}},
		Parcels: []ParcelInput{{Items: []ItemQuantity{{SalesOrderItemID: foreign, Quantity: 1}}}},
	}
	_, err := svc.CreateShipment(context.Background(), f.orderID, in, nil)
	messages, ok := appErrors.AsValidationErrors(err)
	require.True(t, ok)
	assert.Contains(t, messages[0], "does not belong to this order")
}

func TestCreateShipment_OrderNotFound(t *testing.T) {
	f := newFixture(t)
	svc := NewShipmentService(f.repo, nil)

	_, err := svc.CreateShipment(context.Background(), uuid.New(), f.twoParcels(MethodManual), nil)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = svc.ListShipments(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCreateShipment_RollsBackOnFailure(t *testing.T) {
	steps := map[string]func(r *MockRepository){
		"shipment":       func(r *MockRepository) { r.FailInsertShipment = errors.New("boom") },
		"parcel":         func(r *MockRepository) { r.FailInsertParcel = errors.New("boom") },
		"stock movement": func(r *MockRepository) { r.FailStockMovement = errors.New("boom") },
		"stock":          func(r *MockRepository) { r.FailDecrementStock = errors.New("boom") },
	}
	for name, inject := range steps {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			inject(f.repo)
			svc := NewShipmentService(f.repo, nil)

			_, err := svc.CreateShipment(context.Background(), f.orderID, f.twoParcels(MethodManualTracking), nil)
			require.Error(t, err)

			assert.Empty(t, f.repo.Shipments)
			assert.Empty(t, f.repo.StockMovements)
			assert.Equal(t, 0, f.shipped(f.chair.ID))
			assert.Equal(t, 0, f.shipped(f.lamp.ID))
			assert.Equal(t, 10, f.repo.Stock[f.chairSKU])
			assert.Equal(t, 5, f.repo.Stock[f.lampSKU])
		})
	}
}

// staleRepo serves an order snapshot taken before another shipment landed.
type staleRepo struct {
	*MockRepository
	snapshot *Order
}

func (s *staleRepo) FindOrder(context.Context, uuid.UUID) (*Order, error) {
	return cloneOrder(s.snapshot), nil
}

func TestCreateShipment_ConcurrentShipmentDetectedUnderLock(t *testing.T) {
	f := newFixture(t)
	repo := &staleRepo{MockRepository: f.repo, snapshot: cloneOrder(f.repo.Orders[f.orderID])}
	f.repo.Orders[f.orderID].Items[0].QuantityShipped = 2

	svc := NewShipmentService(repo, nil)
	in := ShipmentInput{
		Method:  MethodManual,
		Items:   []ItemQuantity{{SalesOrderItemID: f.chair.ID, Quantity: 3}},
		Parcels: []ParcelInput{{Items: []ItemQuantity{{SalesOrderItemID: f.chair.ID, Quantity: 3}}}},
	}
	_, err := svc.CreateShipment(context.Background(), f.orderID, in, nil)
	assert.ErrorIs(t, err, ErrOverShipment)
	assert.Equal(t, 2, f.shipped(f.chair.ID))
	assert.Empty(t, f.repo.Shipments)
}

func packlinkInput(f *fixture) ShipmentInput {
	in := f.twoParcels(MethodPacklink)
	in.Carrier, in.TrackingNumber = "", ""
	in.Packlink = &PacklinkDetails{
		ServiceID: 20149,
		Recipient: Address{Name: "Maison Lumière", Street: "12 rue des Arts", PostalCode: "69002", City: "Lyon", Country: "FR"},
	}
	return in
}

func TestCreateShipment_Packlink(t *testing.T) {
	f := newFixture(t)
	carrier := &MockCarrier{Result: &PacklinkShipment{
		Reference:      "FR2024PRO0000123",
		Carrier:        "DHL",
		Service:        "Express",
		TrackingNumber: "JD0140000123",
		TrackingURL:    "https://track.example/JD0140000123",
		LabelURL:       "https://labels.example/FR2024PRO0000123.pdf",
		CostCents:      4590,
	}}
	svc := NewShipmentService(f.repo, carrier)

	shipment, err := svc.CreateShipment(context.Background(), f.orderID, packlinkInput(f), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, carrier.Calls)
	assert.Equal(t, "SO-2024-0042", carrier.LastReq.CustomReference)
	assert.Equal(t, 20149, carrier.LastReq.ServiceID)
	assert.Equal(t, "DHL", shipment.Carrier)
	assert.Equal(t, "JD0140000123", shipment.TrackingNumber)
	assert.Equal(t, "FR2024PRO0000123", shipment.CarrierRef)
	assert.Equal(t, int64(4590), shipment.CostCents)
	assert.Equal(t, 3, f.shipped(f.chair.ID))
}

func TestCreateShipment_PacklinkFailureLeavesNothing(t *testing.T) {
	f := newFixture(t)
	carrier := &MockCarrier{Err: &PacklinkError{StatusCode: 422, Message: "invalid postal code"}}
	svc := NewShipmentService(f.repo, carrier)

	_, err := svc.CreateShipment(context.Background(), f.orderID, packlinkInput(f), nil)
	var packlinkErr *PacklinkError
	require.ErrorAs(t, err, &packlinkErr)
	assert.Equal(t, 422, packlinkErr.StatusCode)
	assert.Empty(t, f.repo.Shipments)
	assert.Equal(t, 0, f.shipped(f.chair.ID))
}

func TestCreateShipment_PacklinkNotConfigured(t *testing.T) {
	f := newFixture(t)
	svc := NewShipmentService(f.repo, nil)

	_, err := svc.CreateShipment(context.Background(), f.orderID, packlinkInput(f), nil)
	assert.ErrorIs(t, err, ErrPacklinkDisabled)
}

func TestCreateShipment_KeepsShippedAt(t *testing.T) {
	f := newFixture(t)
	svc := NewShipmentService(f.repo, nil)
	when := time.Date(2024, 5, 3, 14, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	in := f.twoParcels(MethodManual)
	in.ShippedAt = &when
	shipment, err := svc.CreateShipment(context.Background(), f.orderID, in, nil)
	require.NoError(t, err)
	assert.True(t, shipment.ShippedAt.Equal(when))
	assert.Equal(t, time.UTC, shipment.ShippedAt.Location())
	assert.Empty(t, shipment.TrackingNumber)
}
