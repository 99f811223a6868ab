package shipping

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/verone/backoffice/internal/logger"
)

var (
	ErrOrderNotFound    = errors.New("sales order not found")
	ErrOverShipment     = errors.New("shipped quantity would exceed the ordered quantity")
	ErrPacklinkDisabled = errors.New("packlink is not configured")
)

// Carrier books a shipment with an external carrier platform.
type Carrier interface {
	BuildRequest(order *Order, in ShipmentInput) PacklinkShipmentRequest
	CreateShipment(ctx context.Context, req PacklinkShipmentRequest) (*PacklinkShipment, error)
}

type Service interface {
	CreateShipment(ctx context.Context, orderID uuid.UUID, input ShipmentInput, createdBy *uuid.UUID) (*Shipment, error)
	ListShipments(ctx context.Context, orderID uuid.UUID) ([]Shipment, error)
}

type service struct {
	repo     Repository
	packlink Carrier
	now      func() time.Time
}

// NewShipmentService accepts a nil carrier; packlink shipments are then refused.
func NewShipmentService(repo Repository, packlink Carrier) Service {
	return &service{repo: repo, packlink: packlink, now: time.Now}
}

func (s *service) CreateShipment(ctx context.Context, orderID uuid.UUID, input ShipmentInput, createdBy *uuid.UUID) (*Shipment, error) {
	input = input.normalize()
	if err := input.validate(); err != nil {
		return nil, err
	}

	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := input.validateAgainstOrder(order.Items); err != nil {
		return nil, err
	}

	shipment := s.newShipment(order, input, createdBy)

	if input.Method == MethodPacklink {
		if s.packlink == nil {
			return nil, ErrPacklinkDisabled
		}
		booked, err := s.packlink.CreateShipment(ctx, s.packlink.BuildRequest(order, input))
		if err != nil {
			if booked != nil && booked.Reference != "" {
				logger.L.Error("packlink shipment booked but details unavailable, cancel it manually",
					"order_id", orderID, "packlink_reference", booked.Reference, "error", err)
			}
			return nil, err
		}
		shipment.Carrier = booked.Carrier
		shipment.Service = booked.Service
		shipment.TrackingNumber = booked.TrackingNumber
		shipment.TrackingURL = booked.TrackingURL
		shipment.LabelURL = booked.LabelURL
		shipment.CarrierRef = booked.Reference
		shipment.CostCents = booked.CostCents
	}

	if err := s.repo.WithinTx(ctx, func(st Store) error {
		return persistShipment(ctx, st, shipment)
	}); err != nil {
		if shipment.CarrierRef != "" {
			logger.L.Error("shipment not saved after packlink booking, cancel it manually",
				"order_id", orderID, "packlink_reference", shipment.CarrierRef, "error", err)
		}
		return nil, err
	}

	logger.L.Info("shipment created", "order_id", orderID, "shipment_id", shipment.ID,
		"method", shipment.Method, "parcels", len(shipment.Parcels))
	return shipment, nil
}

func (s *service) newShipment(order *Order, input ShipmentInput, createdBy *uuid.UUID) *Shipment {
	products := make(map[uuid.UUID]uuid.UUID, len(order.Items))
	for _, it := range order.Items {
		products[it.ID] = it.ProductID
	}

	now := s.now().UTC()
	shippedAt := now
	if input.ShippedAt != nil {
		shippedAt = input.ShippedAt.UTC()
	}

	shipment := &Shipment{
		ID:           uuid.New(),
		SalesOrderID: order.ID,
		Method:       input.Method,
		CostCents:    input.CostCents,
		Notes:        input.Notes,
		ShippedAt:    shippedAt,
		CreatedBy:    createdBy,
		CreatedAt:    now,
	}
	if input.Method == MethodManualTracking {
		shipment.Carrier = input.Carrier
		shipment.Service = input.Service
		shipment.TrackingNumber = input.TrackingNumber
		shipment.TrackingURL = input.TrackingURL
	} else if input.Method == MethodManual {
		shipment.Carrier = input.Carrier
	}

	for i, p := range input.Parcels {
		parcel := Parcel{
			ID:          uuid.New(),
			Number:      i + 1,
			WeightGrams: p.WeightGrams,
			LengthCm:    p.LengthCm,
			WidthCm:     p.WidthCm,
			HeightCm:    p.HeightCm,
		}
		merged := map[uuid.UUID]int{}
		seq := []uuid.UUID{}
		for _, it := range p.Items {
			if _, ok := merged[it.SalesOrderItemID]; !ok {
				seq = append(seq, it.SalesOrderItemID)
			}
			merged[it.SalesOrderItemID] += it.Quantity
		}
		for _, id := range seq {
			parcel.Items = append(parcel.Items, ParcelItem{
				SalesOrderItemID: id,
				ProductID:        products[id],
				Quantity:         merged[id],
			})
		}
		shipment.Parcels = append(shipment.Parcels, parcel)
	}
	return shipment
}

// persistShipment writes the shipment, its parcels and items, then moves stock
// once per order item.
func persistShipment(ctx context.Context, st Store, shipment *Shipment) error {
	locked, err := st.LockOrderItems(ctx, shipment.SalesOrderID)
	if err != nil {
		return err
	}
	remaining := make(map[uuid.UUID]int, len(locked))
	for _, it := range locked {
		remaining[it.ID] = it.Remaining()
	}

	if err := st.InsertShipment(ctx, shipment); err != nil {
		return err
	}

	totals := map[uuid.UUID]ParcelItem{}
	for i := range shipment.Parcels {
		parcel := &shipment.Parcels[i]
		if err := st.InsertParcel(ctx, shipment.ID, parcel); err != nil {
			return err
		}
		for _, item := range parcel.Items {
			if err := st.InsertParcelItem(ctx, parcel.ID, item); err != nil {
				return err
			}
			total := totals[item.SalesOrderItemID]
			total.SalesOrderItemID = item.SalesOrderItemID
			total.ProductID = item.ProductID
			total.Quantity += item.Quantity
			totals[item.SalesOrderItemID] = total
		}
	}

	ids := make([]uuid.UUID, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	for _, id := range ids {
		item := totals[id]
		if item.Quantity > remaining[id] {
			return ErrOverShipment
		}
		if err := st.MarkItemShipped(ctx, id, item.Quantity); err != nil {
			return err
		}
		if err := st.RecordStockMovement(ctx, item.ProductID, -item.Quantity, stockReasonShipment, shipment.ID); err != nil {
			return err
		}
		if err := st.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) ListShipments(ctx context.Context, orderID uuid.UUID) ([]Shipment, error) {
	if _, err := s.repo.FindOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListShipments(ctx, orderID)
}
