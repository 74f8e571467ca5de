package postgres

import (
	"context"

	"easyfuel/internal/domain"
	"easyfuel/internal/types"
)

const orderColumns = `
    id, customer_id, supplier_id, driver_id, fuel_type, quantity_ml,
    pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
    fuel_cents, delivery_cents, service_cents, total_cents, currency,
    fulfillment_mode, payment_method, payment_status, status, status_version,
    created_at, dispatched_at, offered_at, assigned_at, picked_up_at, en_route_at,
    delivered_at, cancelled_at, refunded_at, cancellation_reason`

func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	_, err := s.q.Exec(ctx, `
        INSERT INTO orders (`+orderColumns+`) VALUES (
            $1, $2, $3, $4, $5, $6,
            $7, $8, $9, $10,
            $11, $12, $13, $14, $15,
            $16, $17, $18, $19, $20,
            $21, $22, $23, $24, $25, $26,
            $27, $28, $29, $30
        )`,
		string(o.ID), string(o.CustomerID), toStringPtr(o.SupplierID), toStringPtr(o.DriverID), o.FuelType, int64(o.Quantity),
		o.Pickup.Lat, o.Pickup.Lng, o.Dropoff.Lat, o.Dropoff.Lng,
		o.Price.Fuel, o.Price.Delivery, o.Price.Service, o.Price.Total, o.Currency,
		string(o.Mode), o.PaymentMethod, string(o.PaymentStatus), string(o.Status), o.StatusVersion,
		o.CreatedAt, o.DispatchedAt, o.OfferedAt, o.AssignedAt, o.PickedUpAt, o.EnRouteAt,
		o.DeliveredAt, o.CancelledAt, o.RefundedAt, o.CancelReason,
	)
	return mapWriteErr(err, "create order "+string(o.ID))
}

func (s *Store) GetOrder(ctx context.Context, id types.ID) (*domain.Order, error) {
	row := s.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
	o, err := scanOrder(row)
	if err != nil {
		return nil, notFound(err, "order "+string(id))
	}
	return o, nil
}

func (s *Store) UpdateOrder(ctx context.Context, o *domain.Order, from domain.OrderStatus, version int) (bool, error) {
	tag, err := s.q.Exec(ctx, `
        UPDATE orders
        SET status = $1,
            status_version = status_version + 1,
            driver_id = $2,
            payment_status = $3,
            dispatched_at = $4,
            offered_at = $5,
            assigned_at = $6,
            picked_up_at = $7,
            en_route_at = $8,
            delivered_at = $9,
            cancelled_at = $10,
            refunded_at = $11,
            cancellation_reason = $12
        WHERE id = $13 AND status = $14 AND status_version = $15`,
		string(o.Status),
		toStringPtr(o.DriverID),
		string(o.PaymentStatus),
		o.DispatchedAt, o.OfferedAt, o.AssignedAt, o.PickedUpAt, o.EnRouteAt,
		o.DeliveredAt, o.CancelledAt, o.RefundedAt,
		o.CancelReason,
		string(o.ID),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	o.StatusVersion = version + 1
	return true, nil
}

func (s *Store) AppendOrderEvent(ctx context.Context, e *domain.OrderEvent) error {
	return s.q.QueryRow(ctx, `
        INSERT INTO order_state_events (
            order_id, from_status, to_status, actor_type, actor_id, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id`,
		string(e.OrderID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	).Scan(&e.ID)
}

func (s *Store) ListOrderEvents(ctx context.Context, orderID types.ID) ([]*domain.OrderEvent, error) {
	rows, err := s.q.Query(ctx, `
        SELECT id, order_id, from_status, to_status, actor_type, actor_id, created_at
        FROM order_state_events
        WHERE order_id = $1
        ORDER BY id`, string(orderID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.OrderEvent
	for rows.Next() {
		var e domain.OrderEvent
		var oid, from, to string
		var actorID *string
		if err := rows.Scan(&e.ID, &oid, &from, &to, &e.ActorType, &actorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.OrderID = types.ID(oid)
		e.FromStatus = domain.OrderStatus(from)
		e.ToStatus = domain.OrderStatus(to)
		e.ActorID = fromStringPtr(actorID)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *Store) ListOrdersForParty(ctx context.Context, userID types.ID) ([]*domain.Order, error) {
	rows, err := s.q.Query(ctx, `SELECT `+orderColumns+` FROM orders
        WHERE (customer_id = $1 OR driver_id = $1 OR supplier_id = $1)
          AND status NOT IN ('delivered', 'cancelled', 'refunded')
        ORDER BY created_at`, string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var id, customerID, mode, paymentStatus, status string
	var supplierID, driverID *string
	var quantity int64

	err := row.Scan(
		&id, &customerID, &supplierID, &driverID, &o.FuelType, &quantity,
		&o.Pickup.Lat, &o.Pickup.Lng, &o.Dropoff.Lat, &o.Dropoff.Lng,
		&o.Price.Fuel, &o.Price.Delivery, &o.Price.Service, &o.Price.Total, &o.Currency,
		&mode, &o.PaymentMethod, &paymentStatus, &status, &o.StatusVersion,
		&o.CreatedAt, &o.DispatchedAt, &o.OfferedAt, &o.AssignedAt, &o.PickedUpAt, &o.EnRouteAt,
		&o.DeliveredAt, &o.CancelledAt, &o.RefundedAt, &o.CancelReason,
	)
	if err != nil {
		return nil, err
	}
	o.ID = types.ID(id)
	o.CustomerID = types.ID(customerID)
	o.SupplierID = fromStringPtr(supplierID)
	o.DriverID = fromStringPtr(driverID)
	o.Quantity = types.Millilitres(quantity)
	o.Mode = domain.FulfillmentMode(mode)
	o.PaymentStatus = domain.PaymentStatus(paymentStatus)
	o.Status = domain.OrderStatus(status)
	return &o, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func fromStringPtr(v *string) *types.ID {
	if v == nil {
		return nil
	}
	id := types.ID(*v)
	return &id
}
