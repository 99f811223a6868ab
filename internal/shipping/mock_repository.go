package shipping

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

type StockMovement struct {
	ProductID   uuid.UUID
	Delta       int
	Reason      string
	ReferenceID uuid.UUID
}

// MockRepository keeps orders, shipments and stock in memory. WithinTx works
// on a copy and keeps it only when fn succeeds. Fail* injects an error at the
// matching step.
type MockRepository struct {
	Orders         map[uuid.UUID]*Order
	Shipments      []Shipment
	Stock          map[uuid.UUID]int
	StockMovements []StockMovement

	FailInsertShipment error
	FailInsertParcel   error
	FailStockMovement  error
	FailDecrementStock error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		Orders: map[uuid.UUID]*Order{},
		Stock:  map[uuid.UUID]int{},
	}
}

func cloneOrder(o *Order) *Order {
	copied := *o
	copied.Items = append([]OrderItem(nil), o.Items...)
	return &copied
}

func (m *MockRepository) FindOrder(_ context.Context, orderID uuid.UUID) (*Order, error) {
	o, ok := m.Orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *MockRepository) ListShipments(_ context.Context, orderID uuid.UUID) ([]Shipment, error) {
	shipments := []Shipment{}
	for _, s := range m.Shipments {
		if s.SalesOrderID == orderID {
			shipments = append(shipments, s)
		}
	}
	sort.SliceStable(shipments, func(i, j int) bool {
		return shipments[i].ShippedAt.After(shipments[j].ShippedAt)
	})
	return shipments, nil
}

func (m *MockRepository) WithinTx(_ context.Context, fn func(Store) error) error {
	st := &mockStore{
		repo:      m,
		orders:    map[uuid.UUID]*Order{},
		stock:     map[uuid.UUID]int{},
		movements: append([]StockMovement(nil), m.StockMovements...),
		shipments: append([]Shipment(nil), m.Shipments...),
	}
	for id, o := range m.Orders {
		st.orders[id] = cloneOrder(o)
	}
	for id, qty := range m.Stock {
		st.stock[id] = qty
	}

	if err := fn(st); err != nil {
		return err
	}
	m.Orders = st.orders
	m.Stock = st.stock
	m.StockMovements = st.movements
	m.Shipments = st.shipments
	return nil
}

type mockStore struct {
	repo      *MockRepository
	orders    map[uuid.UUID]*Order
	stock     map[uuid.UUID]int
	movements []StockMovement
	shipments []Shipment
}

func (s *mockStore) LockOrderItems(_ context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return append([]OrderItem(nil), o.Items...), nil
}

func (s *mockStore) InsertShipment(_ context.Context, sh *Shipment) error {
	if s.repo.FailInsertShipment != nil {
		return s.repo.FailInsertShipment
	}
	copied := *sh
	copied.Parcels = []Parcel{}
	s.shipments = append(s.shipments, copied)
	return nil
}

func (s *mockStore) shipment(id uuid.UUID) *Shipment {
	for i := range s.shipments {
		if s.shipments[i].ID == id {
			return &s.shipments[i]
		}
	}
	return nil
}

func (s *mockStore) InsertParcel(_ context.Context, shipmentID uuid.UUID, p *Parcel) error {
	if s.repo.FailInsertParcel != nil {
		return s.repo.FailInsertParcel
	}
	sh := s.shipment(shipmentID)
	copied := *p
	copied.Items = []ParcelItem{}
	sh.Parcels = append(sh.Parcels, copied)
	return nil
}

func (s *mockStore) InsertParcelItem(_ context.Context, parcelID uuid.UUID, item ParcelItem) error {
	for i := range s.shipments {
		for j := range s.shipments[i].Parcels {
			p := &s.shipments[i].Parcels[j]
			if p.ID == parcelID {
				p.Items = append(p.Items, item)
				return nil
			}
		}
	}
	return nil
}

func (s *mockStore) MarkItemShipped(_ context.Context, itemID uuid.UUID, quantity int) error {
	for _, o := range s.orders {
		for i := range o.Items {
			if o.Items[i].ID != itemID {
				continue
			}
			if o.Items[i].QuantityShipped+quantity > o.Items[i].Quantity {
				return ErrOverShipment
			}
			o.Items[i].QuantityShipped += quantity
			return nil
		}
	}
	return ErrOverShipment
}

func (s *mockStore) RecordStockMovement(_ context.Context, productID uuid.UUID, delta int, reason string, referenceID uuid.UUID) error {
	if s.repo.FailStockMovement != nil {
		return s.repo.FailStockMovement
	}
	s.movements = append(s.movements, StockMovement{ProductID: productID, Delta: delta, Reason: reason, ReferenceID: referenceID})
	return nil
}

func (s *mockStore) DecrementStock(_ context.Context, productID uuid.UUID, quantity int) error {
	if s.repo.FailDecrementStock != nil {
		return s.repo.FailDecrementStock
	}
	s.stock[productID] -= quantity
	return nil
}

// MockCarrier records the last request and returns Result or Err.
type MockCarrier struct {
	Result  *PacklinkShipment
	Err     error
	Calls   int
	LastReq PacklinkShipmentRequest
}

func (m *MockCarrier) BuildRequest(order *Order, in ShipmentInput) PacklinkShipmentRequest {
	req := PacklinkShipmentRequest{CustomReference: order.OrderNumber}
	if in.Packlink != nil {
		req.ServiceID = in.Packlink.ServiceID
	}
	return req
}

func (m *MockCarrier) CreateShipment(_ context.Context, req PacklinkShipmentRequest) (*PacklinkShipment, error) {
	m.Calls++
	m.LastReq = req
	return m.Result, m.Err
}
