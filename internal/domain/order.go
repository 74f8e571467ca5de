// README: Order aggregate, status definitions and the transition table.
package domain

import (
	"time"

	"easyfuel/internal/types"
)

type OrderStatus string

const (
	OrderNone            OrderStatus = "none"
	OrderCreated         OrderStatus = "created"
	OrderPendingDispatch OrderStatus = "pending_dispatch"
	OrderOffered         OrderStatus = "offered"
	OrderAssigned        OrderStatus = "assigned"
	OrderPickedUp        OrderStatus = "picked_up"
	OrderEnRoute         OrderStatus = "en_route"
	OrderDelivered       OrderStatus = "delivered"
	OrderCancelled       OrderStatus = "cancelled"
	OrderRefunded        OrderStatus = "refunded"
)

type FulfillmentMode string

const (
	FulfillmentDirect FulfillmentMode = "direct"
	FulfillmentDepot  FulfillmentMode = "depot"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Price holds every component in cents. Total is always derived, never accepted from a client.
type Price struct {
	Fuel     int64
	Delivery int64
	Service  int64
	Total    int64
}

func NewPrice(fuel, delivery, service int64) Price {
	return Price{Fuel: fuel, Delivery: delivery, Service: service, Total: fuel + delivery + service}
}

func (p Price) Valid() bool {
	return p.Fuel >= 0 && p.Delivery >= 0 && p.Service >= 0 && p.Total == p.Fuel+p.Delivery+p.Service
}

type Order struct {
	ID            types.ID
	CustomerID    types.ID
	SupplierID    *types.ID
	DriverID      *types.ID
	FuelType      string
	Quantity      types.Millilitres
	Pickup        types.Point
	Dropoff       types.Point
	Price         Price
	Currency      string
	Mode          FulfillmentMode
	PaymentMethod string
	PaymentStatus PaymentStatus
	Status        OrderStatus
	StatusVersion int
	CreatedAt     time.Time
	DispatchedAt  *time.Time
	OfferedAt     *time.Time
	AssignedAt    *time.Time
	PickedUpAt    *time.Time
	EnRouteAt     *time.Time
	DeliveredAt   *time.Time
	CancelledAt   *time.Time
	RefundedAt    *time.Time
	CancelReason  *string
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.SupplierID = cloneID(o.SupplierID)
	cp.DriverID = cloneID(o.DriverID)
	cp.DispatchedAt = cloneTime(o.DispatchedAt)
	cp.OfferedAt = cloneTime(o.OfferedAt)
	cp.AssignedAt = cloneTime(o.AssignedAt)
	cp.PickedUpAt = cloneTime(o.PickedUpAt)
	cp.EnRouteAt = cloneTime(o.EnRouteAt)
	cp.DeliveredAt = cloneTime(o.DeliveredAt)
	cp.CancelledAt = cloneTime(o.CancelledAt)
	cp.RefundedAt = cloneTime(o.RefundedAt)
	if o.CancelReason != nil {
		r := *o.CancelReason
		cp.CancelReason = &r
	}
	return &cp
}

func (o *Order) IsDriver(id types.ID) bool {
	return o.DriverID != nil && *o.DriverID == id
}

func (o *Order) IsSupplier(id types.ID) bool {
	return o.SupplierID != nil && *o.SupplierID == id
}

// Stamp records the transition timestamp for the target status.
func (o *Order) Stamp(to OrderStatus, at time.Time) {
	t := at
	switch to {
	case OrderPendingDispatch:
		o.DispatchedAt = &t
	case OrderOffered:
		o.OfferedAt = &t
	case OrderAssigned:
		o.AssignedAt = &t
	case OrderPickedUp:
		o.PickedUpAt = &t
	case OrderEnRoute:
		o.EnRouteAt = &t
	case OrderDelivered:
		o.DeliveredAt = &t
	case OrderCancelled:
		o.CancelledAt = &t
	case OrderRefunded:
		o.RefundedAt = &t
	}
}

// OrderEvent is the audit row appended for every applied transition.
type OrderEvent struct {
	ID         int64
	OrderID    types.ID
	FromStatus OrderStatus
	ToStatus   OrderStatus
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

const (
	ActorCustomer = "customer"
	ActorDriver   = "driver"
	ActorSupplier = "supplier"
	ActorAdmin    = "admin"
	ActorSystem   = "system"
)

// AllowedTransitions represents the order state flow (diagram) as code.
var AllowedTransitions = map[OrderStatus][]OrderStatus{
	OrderCreated:         {OrderPendingDispatch, OrderCancelled},
	OrderPendingDispatch: {OrderOffered, OrderCancelled},
	OrderOffered:         {OrderAssigned, OrderPendingDispatch, OrderCancelled},
	OrderAssigned:        {OrderPickedUp, OrderCancelled},
	OrderPickedUp:        {OrderEnRoute, OrderCancelled},
	OrderEnRoute:         {OrderDelivered, OrderCancelled},
	OrderDelivered:       {OrderRefunded},
	OrderCancelled:       {OrderRefunded},
}

func CanTransition(from, to OrderStatus) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the order has finished its delivery lifecycle.
// Refund remains reachable from delivered and cancelled.
func IsTerminal(s OrderStatus) bool {
	switch s {
	case OrderDelivered, OrderCancelled, OrderRefunded:
		return true
	}
	return false
}

func cloneID(v *types.ID) *types.ID {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
