package shipping

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	database "github.com/verone/backoffice/db"
)

// Store holds the writes of one shipment; they all commit or none do.
type Store interface {
	LockOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error)
	InsertShipment(ctx context.Context, s *Shipment) error
	InsertParcel(ctx context.Context, shipmentID uuid.UUID, p *Parcel) error
	InsertParcelItem(ctx context.Context, parcelID uuid.UUID, item ParcelItem) error
	MarkItemShipped(ctx context.Context, itemID uuid.UUID, quantity int) error
	RecordStockMovement(ctx context.Context, productID uuid.UUID, delta int, reason string, referenceID uuid.UUID) error
	DecrementStock(ctx context.Context, productID uuid.UUID, quantity int) error
}

type Repository interface {
	FindOrder(ctx context.Context, orderID uuid.UUID) (*Order, error)
	ListShipments(ctx context.Context, orderID uuid.UUID) ([]Shipment, error)
	WithinTx(ctx context.Context, fn func(Store) error) error
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type shipmentRepository struct {
	db *sql.DB
}

func NewShipmentRepository(db *sql.DB) Repository {
	return &shipmentRepository{db: db}
}

func (r *shipmentRepository) WithinTx(ctx context.Context, fn func(Store) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&store{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func loadOrderItems(ctx context.Context, q queryer, orderID uuid.UUID, forUpdate bool) ([]OrderItem, error) {
	query := `
		SELECT id, product_id, description, quantity, quantity_shipped
		FROM sales_order_items
		WHERE sales_order_id = $1
		ORDER BY id`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []OrderItem{}
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Description, &it.Quantity, &it.QuantityShipped); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *shipmentRepository) FindOrder(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	var o Order
	err := r.db.QueryRowContext(ctx, `
		SELECT so.id, so.order_number, org.name
		FROM sales_orders so
		JOIN organisations org ON org.id = so.customer_id
		WHERE so.id = $1`, orderID).Scan(&o.ID, &o.OrderNumber, &o.CustomerName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	o.Items, err = loadOrderItems(ctx, r.db, orderID, false)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListShipments loads shipments with their parcels and parcel items, newest first.
func (r *shipmentRepository) ListShipments(ctx context.Context, orderID uuid.UUID) ([]Shipment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sales_order_id, method, carrier, service, tracking_number, tracking_url, label_url,
		       carrier_ref, cost_cents, notes, shipped_at, created_by, created_at
		FROM shipments
		WHERE sales_order_id = $1
		ORDER BY shipped_at DESC, created_at DESC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shipments := []Shipment{}
	index := map[uuid.UUID]int{}
	for rows.Next() {
		var s Shipment
		if err := rows.Scan(&s.ID, &s.SalesOrderID, &s.Method, &s.Carrier, &s.Service, &s.TrackingNumber,
			&s.TrackingURL, &s.LabelURL, &s.CarrierRef, &s.CostCents, &s.Notes, &s.ShippedAt, &s.CreatedBy, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Parcels = []Parcel{}
		index[s.ID] = len(shipments)
		shipments = append(shipments, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(shipments) == 0 {
		return shipments, nil
	}

	parcelRows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.shipment_id, p.number, p.weight_grams, p.length_cm, p.width_cm, p.height_cm,
		       pi.sales_order_item_id, pi.product_id, pi.quantity
		FROM shipment_parcels p
		JOIN shipments s ON s.id = p.shipment_id
		LEFT JOIN parcel_items pi ON pi.parcel_id = p.id
		WHERE s.sales_order_id = $1
		ORDER BY p.shipment_id, p.number`, orderID)
	if err != nil {
		return nil, err
	}
	defer parcelRows.Close()

	parcelIndex := map[uuid.UUID]int{}
	for parcelRows.Next() {
		var (
			p         Parcel
			shipID    uuid.UUID
			itemID    uuid.NullUUID
			productID uuid.NullUUID
			qty       sql.NullInt64
		)
		if err := parcelRows.Scan(&p.ID, &shipID, &p.Number, &p.WeightGrams, &p.LengthCm, &p.WidthCm, &p.HeightCm,
			&itemID, &productID, &qty); err != nil {
			return nil, err
		}
		s := &shipments[index[shipID]]
		pi, seen := parcelIndex[p.ID]
		if !seen {
			p.Items = []ParcelItem{}
			pi = len(s.Parcels)
			parcelIndex[p.ID] = pi
			s.Parcels = append(s.Parcels, p)
		}
		if itemID.Valid {
			s.Parcels[pi].Items = append(s.Parcels[pi].Items, ParcelItem{
				SalesOrderItemID: itemID.UUID,
				ProductID:        productID.UUID,
				Quantity:         int(qty.Int64),
			})
		}
	}
	return shipments, parcelRows.Err()
}

type store struct {
	q queryer
}

func (s *store) LockOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	return loadOrderItems(ctx, s.q, orderID, true)
}

func (s *store) InsertShipment(ctx context.Context, sh *Shipment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO shipments (id, sales_order_id, method, carrier, service, tracking_number, tracking_url,
		                       label_url, carrier_ref, cost_cents, notes, shipped_at, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		sh.ID, sh.SalesOrderID, sh.Method, sh.Carrier, sh.Service, sh.TrackingNumber, sh.TrackingURL,
		sh.LabelURL, sh.CarrierRef, sh.CostCents, sh.Notes, sh.ShippedAt, sh.CreatedBy, sh.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert shipment: %w", err)
	}
	return nil
}

func (s *store) InsertParcel(ctx context.Context, shipmentID uuid.UUID, p *Parcel) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO shipment_parcels (id, shipment_id, number, weight_grams, length_cm, width_cm, height_cm)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, shipmentID, p.Number, p.WeightGrams, p.LengthCm, p.WidthCm, p.HeightCm)
	if err != nil {
		return fmt.Errorf("insert parcel %d: %w", p.Number, err)
	}
	return nil
}

func (s *store) InsertParcelItem(ctx context.Context, parcelID uuid.UUID, item ParcelItem) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO parcel_items (parcel_id, sales_order_item_id, product_id, quantity)
		VALUES ($1, $2, $3, $4)`,
		parcelID, item.SalesOrderItemID, item.ProductID, item.Quantity)
	if err != nil {
		return fmt.Errorf("insert parcel item: %w", err)
	}
	return nil
}

// MarkItemShipped fails with ErrOverShipment instead of letting
// quantity_shipped exceed the ordered quantity.
func (s *store) MarkItemShipped(ctx context.Context, itemID uuid.UUID, quantity int) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE sales_order_items
		SET quantity_shipped = quantity_shipped + $1
		WHERE id = $2 AND quantity_shipped + $1 <= quantity`, quantity, itemID)
	if err != nil {
		if database.IsCheckViolation(err) {
			return ErrOverShipment
		}
		return fmt.Errorf("update shipped quantity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOverShipment
	}
	return nil
}

func (s *store) RecordStockMovement(ctx context.Context, productID uuid.UUID, delta int, reason string, referenceID uuid.UUID) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO stock_movements (product_id, quantity_delta, reason, reference_id)
		VALUES ($1, $2, $3, $4)`, productID, delta, reason, referenceID)
	if err != nil {
		return fmt.Errorf("insert stock movement: %w", err)
	}
	return nil
}

func (s *store) DecrementStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE products SET stock_quantity = stock_quantity - $1 WHERE id = $2`, quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("decrement stock: product %s not found", productID)
	}
	return nil
}
