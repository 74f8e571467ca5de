// README: Closed set of realtime events. Every mutation kind has exactly one payload type.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"easyfuel/internal/domain"
	"easyfuel/internal/types"
)

type EventType string

const (
	TypeOrderStateChanged EventType = "order_state_changed"
	TypeOfferCreated      EventType = "offer_created"
	TypeOfferResolved     EventType = "offer_resolved"
	TypeDepotStateChanged EventType = "depot_state_changed"
	TypeChatMessage       EventType = "chat_message"
	TypeDispatchExhausted EventType = "dispatch_exhausted"
	TypeCatchUp           EventType = "catch_up"
)

// Payload is implemented only by the types in this file.
type Payload interface {
	Type() EventType
	Accept(v Visitor)
	payload()
}

// Visitor must handle every payload; adding a variant breaks every implementation until it does.
type Visitor interface {
	OrderStateChanged(p *OrderStateChanged)
	OfferCreated(p *OfferCreated)
	OfferResolved(p *OfferResolved)
	DepotStateChanged(p *DepotStateChanged)
	ChatMessagePosted(p *ChatMessagePosted)
	DispatchExhausted(p *DispatchExhausted)
	CatchUp(p *CatchUp)
}

type Event struct {
	OrderID  types.ID
	ThreadID types.ID
	At       time.Time
	Payload  Payload
}

type OrderStateChanged struct {
	From       domain.OrderStatus `json:"from"`
	To         domain.OrderStatus `json:"to"`
	Version    int                `json:"version"`
	CustomerID types.ID           `json:"customerId"`
	DriverID   types.ID           `json:"driverId,omitempty"`
	SupplierID types.ID           `json:"supplierId,omitempty"`
	ActorType  string             `json:"actorType"`
}

type OfferCreated struct {
	OfferID   types.ID          `json:"offerId"`
	DriverID  types.ID          `json:"driverId"`
	Attempt   int               `json:"attempt"`
	ExpiresAt time.Time         `json:"expiresAt"`
	FuelType  string            `json:"fuelType"`
	Quantity  types.Millilitres `json:"quantityMl"`
	Pickup    types.Point       `json:"pickup"`
	Dropoff   types.Point       `json:"dropoff"`
}

type OfferResolved struct {
	OfferID    types.ID           `json:"offerId"`
	DriverID   types.ID           `json:"driverId"`
	CustomerID types.ID           `json:"customerId"`
	Status     domain.OfferStatus `json:"status"`
}

type DepotStateChanged struct {
	From       domain.DepotStatus `json:"from"`
	To         domain.DepotStatus `json:"to"`
	Version    int                `json:"version"`
	CustomerID types.ID           `json:"customerId"`
	DriverID   types.ID           `json:"driverId"`
	SupplierID types.ID           `json:"supplierId"`
}

type ChatMessagePosted struct {
	MessageID   types.ID           `json:"messageId"`
	SenderID    types.ID           `json:"senderId"`
	RecipientID types.ID           `json:"recipientId"`
	MessageType domain.MessageType `json:"messageType"`
	Body        string             `json:"body"`
}

type DispatchExhausted struct {
	CustomerID types.ID `json:"customerId"`
	Attempts   int      `json:"attempts"`
}

// CatchUp tells a freshly connected session to pull its snapshot before trusting pushes.
type CatchUp struct {
	UserID       types.ID   `json:"userId"`
	ActiveOrders []types.ID `json:"activeOrders"`
}

func (*OrderStateChanged) Type() EventType { return TypeOrderStateChanged }
func (*OfferCreated) Type() EventType      { return TypeOfferCreated }
func (*OfferResolved) Type() EventType     { return TypeOfferResolved }
func (*DepotStateChanged) Type() EventType { return TypeDepotStateChanged }
func (*ChatMessagePosted) Type() EventType { return TypeChatMessage }
func (*DispatchExhausted) Type() EventType { return TypeDispatchExhausted }
func (*CatchUp) Type() EventType           { return TypeCatchUp }

func (p *OrderStateChanged) Accept(v Visitor) { v.OrderStateChanged(p) }
func (p *OfferCreated) Accept(v Visitor)      { v.OfferCreated(p) }
func (p *OfferResolved) Accept(v Visitor)     { v.OfferResolved(p) }
func (p *DepotStateChanged) Accept(v Visitor) { v.DepotStateChanged(p) }
func (p *ChatMessagePosted) Accept(v Visitor) { v.ChatMessagePosted(p) }
func (p *DispatchExhausted) Accept(v Visitor) { v.DispatchExhausted(p) }
func (p *CatchUp) Accept(v Visitor)           { v.CatchUp(p) }

func (*OrderStateChanged) payload() {}
func (*OfferCreated) payload()      {}
func (*OfferResolved) payload()     {}
func (*DepotStateChanged) payload() {}
func (*ChatMessagePosted) payload() {}
func (*DispatchExhausted) payload() {}
func (*CatchUp) payload()           {}

// Envelope is the wire form sent to sessions and over the relay.
type Envelope struct {
	Type     EventType       `json:"type"`
	OrderID  types.ID        `json:"orderId,omitempty"`
	ThreadID types.ID        `json:"threadId,omitempty"`
	At       time.Time       `json:"at"`
	Payload  json.RawMessage `json:"payload"`
}

func Encode(e Event) ([]byte, error) {
	body, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", e.Payload.Type(), err)
	}
	return json.Marshal(Envelope{
		Type:     e.Payload.Type(),
		OrderID:  e.OrderID,
		ThreadID: e.ThreadID,
		At:       e.At,
		Payload:  body,
	})
}

func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}
	var p Payload
	switch env.Type {
	case TypeOrderStateChanged:
		p = &OrderStateChanged{}
	case TypeOfferCreated:
		p = &OfferCreated{}
	case TypeOfferResolved:
		p = &OfferResolved{}
	case TypeDepotStateChanged:
		p = &DepotStateChanged{}
	case TypeChatMessage:
		p = &ChatMessagePosted{}
	case TypeDispatchExhausted:
		p = &DispatchExhausted{}
	case TypeCatchUp:
		p = &CatchUp{}
	default:
		return Event{}, fmt.Errorf("unknown event type %q", env.Type)
	}
	if err := json.Unmarshal(env.Payload, p); err != nil {
		return Event{}, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return Event{OrderID: env.OrderID, ThreadID: env.ThreadID, At: env.At, Payload: p}, nil
}
