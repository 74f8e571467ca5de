// README: JSON views of domain records returned by the API.
package handlers

import (
	"time"

	"easyfuel/internal/domain"
	"easyfuel/internal/types"
)

type pointView struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p pointView) point() types.Point { return types.Point{Lat: p.Lat, Lng: p.Lng} }

type priceView struct {
	FuelCents     int64  `json:"fuel_cents"`
	DeliveryCents int64  `json:"delivery_cents"`
	ServiceCents  int64  `json:"service_cents"`
	TotalCents    int64  `json:"total_cents"`
	Currency      string `json:"currency"`
}

type orderView struct {
	ID            types.ID   `json:"id"`
	CustomerID    types.ID   `json:"customer_id"`
	SupplierID    *types.ID  `json:"supplier_id,omitempty"`
	DriverID      *types.ID  `json:"driver_id,omitempty"`
	FuelType      string     `json:"fuel_type"`
	Litres        string     `json:"litres"`
	Pickup        pointView  `json:"pickup"`
	Dropoff       pointView  `json:"dropoff"`
	Price         priceView  `json:"price"`
	Mode          string     `json:"mode"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	PaymentStatus string     `json:"payment_status"`
	Status        string     `json:"status"`
	StatusVersion int        `json:"status_version"`
	CreatedAt     time.Time  `json:"created_at"`
	AssignedAt    *time.Time `json:"assigned_at,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	CancelReason  *string    `json:"cancel_reason,omitempty"`
}

func newOrderView(o *domain.Order) orderView {
	return orderView{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		SupplierID: o.SupplierID,
		DriverID:   o.DriverID,
		FuelType:   o.FuelType,
		Litres:     o.Quantity.String(),
		Pickup:     pointView{Lat: o.Pickup.Lat, Lng: o.Pickup.Lng},
		Dropoff:    pointView{Lat: o.Dropoff.Lat, Lng: o.Dropoff.Lng},
		Price: priceView{
			FuelCents:     o.Price.Fuel,
			DeliveryCents: o.Price.Delivery,
			ServiceCents:  o.Price.Service,
			TotalCents:    o.Price.Total,
			Currency:      o.Currency,
		},
		Mode:          string(o.Mode),
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: string(o.PaymentStatus),
		Status:        string(o.Status),
		StatusVersion: o.StatusVersion,
		CreatedAt:     o.CreatedAt,
		AssignedAt:    o.AssignedAt,
		DeliveredAt:   o.DeliveredAt,
		CancelledAt:   o.CancelledAt,
		CancelReason:  o.CancelReason,
	}
}

func orderViews(orders []*domain.Order) []orderView {
	out := make([]orderView, len(orders))
	for i, o := range orders {
		out[i] = newOrderView(o)
	}
	return out
}

type orderEventView struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	ActorType string    `json:"actor_type"`
	ActorID   *types.ID `json:"actor_id,omitempty"`
	At        time.Time `json:"at"`
}

type offerView struct {
	ID         types.ID   `json:"id"`
	OrderID    types.ID   `json:"order_id"`
	DriverID   types.ID   `json:"driver_id"`
	Status     string     `json:"status"`
	Round      int        `json:"round"`
	Attempt    int        `json:"attempt"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func newOfferView(of *domain.Offer) offerView {
	return offerView{
		ID:         of.ID,
		OrderID:    of.OrderID,
		DriverID:   of.DriverID,
		Status:     string(of.Status),
		Round:      of.Round,
		Attempt:    of.Attempt,
		ExpiresAt:  of.ExpiresAt,
		ResolvedAt: of.ResolvedAt,
	}
}

type evidenceView struct {
	Ref      string    `json:"ref"`
	SignerID types.ID  `json:"signer_id"`
	At       time.Time `json:"at"`
}

func newEvidenceView(e *domain.Evidence) *evidenceView {
	if e == nil {
		return nil
	}
	return &evidenceView{Ref: e.Ref, SignerID: e.SignerID, At: e.At}
}

type depotView struct {
	OrderID           types.ID      `json:"order_id"`
	SupplierID        types.ID      `json:"supplier_id"`
	DriverID          types.ID      `json:"driver_id"`
	Status            string        `json:"status"`
	Version           int           `json:"version"`
	PaymentProof      *evidenceView `json:"payment_proof,omitempty"`
	PaymentAttempts   int           `json:"payment_attempts"`
	SupplierSignature *evidenceView `json:"supplier_signature,omitempty"`
	DriverSignature   *evidenceView `json:"driver_signature,omitempty"`
	RejectionReason   *string       `json:"rejection_reason,omitempty"`
	DisputeReason     *string       `json:"dispute_reason,omitempty"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

func newDepotView(d *domain.DepotOrder) depotView {
	return depotView{
		OrderID:           d.OrderID,
		SupplierID:        d.SupplierID,
		DriverID:          d.DriverID,
		Status:            string(d.Status),
		Version:           d.Version,
		PaymentProof:      newEvidenceView(d.PaymentProof),
		PaymentAttempts:   d.PaymentAttempts,
		SupplierSignature: newEvidenceView(d.SupplierSignature),
		DriverSignature:   newEvidenceView(d.DriverSignature),
		RejectionReason:   d.RejectionReason,
		DisputeReason:     d.DisputeReason,
		UpdatedAt:         d.UpdatedAt,
	}
}

type threadView struct {
	ID         types.ID  `json:"id"`
	OrderID    types.ID  `json:"order_id"`
	CustomerID types.ID  `json:"customer_id"`
	DriverID   types.ID  `json:"driver_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type messageView struct {
	ID        types.ID   `json:"id"`
	ThreadID  types.ID   `json:"thread_id"`
	SenderID  types.ID   `json:"sender_id"`
	Type      string     `json:"type"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

func newMessageView(m *domain.ChatMessage) messageView {
	return messageView{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		SenderID:  m.SenderID,
		Type:      string(m.Type),
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
		ReadAt:    m.ReadAt,
	}
}
