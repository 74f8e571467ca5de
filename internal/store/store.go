// README: State Store contract consumed by every state machine.
//
// All mutual exclusion goes through the conditional updates below: an Update*
// call only applies when the record is still at the expected status and
// version, and reports false otherwise. InTx groups several of them so they
// commit or fail together.
package store

import (
	"context"
	"time"

	"easyfuel/internal/domain"
	"easyfuel/internal/types"
)

type Tx interface {
	OrderRepo
	OfferRepo
	DepotRepo
	ChatRepo
}

type Store interface {
	Tx
	// InTx runs fn in a single transaction. A non-nil error from fn rolls everything back.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

type OrderRepo interface {
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id types.ID) (*domain.Order, error)
	// UpdateOrder writes o only if the stored row is still at (from, version).
	// On success o.StatusVersion is advanced to version+1.
	UpdateOrder(ctx context.Context, o *domain.Order, from domain.OrderStatus, version int) (bool, error)
	AppendOrderEvent(ctx context.Context, e *domain.OrderEvent) error
	ListOrderEvents(ctx context.Context, orderID types.ID) ([]*domain.OrderEvent, error)
	// ListOrdersForParty returns non-terminal orders where userID is customer, driver or supplier.
	ListOrdersForParty(ctx context.Context, userID types.ID) ([]*domain.Order, error)
}

type OfferRepo interface {
	// CreateOffer fails with domain.ErrConflict if the order already has a pending offer.
	CreateOffer(ctx context.Context, of *domain.Offer) error
	GetOffer(ctx context.Context, id types.ID) (*domain.Offer, error)
	// PendingOffer returns domain.ErrNotFound when the order has no live offer.
	PendingOffer(ctx context.Context, orderID types.ID) (*domain.Offer, error)
	ListOffers(ctx context.Context, orderID types.ID) ([]*domain.Offer, error)
	// ResolveOffer moves a pending offer to a terminal status. False when it is no longer pending.
	ResolveOffer(ctx context.Context, id types.ID, to domain.OfferStatus, at time.Time) (bool, error)
	ListDueOffers(ctx context.Context, now time.Time, limit int) ([]*domain.Offer, error)
	ListPendingOffers(ctx context.Context, limit int) ([]*domain.Offer, error)
	ListPendingOffersForDriver(ctx context.Context, driverID types.ID) ([]*domain.Offer, error)
}

type DepotRepo interface {
	CreateDepotOrder(ctx context.Context, d *domain.DepotOrder) error
	GetDepotOrder(ctx context.Context, orderID types.ID) (*domain.DepotOrder, error)
	// UpdateDepotOrder writes d only if the stored row is still at (from, version).
	UpdateDepotOrder(ctx context.Context, d *domain.DepotOrder, from domain.DepotStatus, version int) (bool, error)
}

type ChatRepo interface {
	// GetOrCreateThread inserts t unless the order already has a thread, in which
	// case the stored thread is returned. created reports which happened.
	GetOrCreateThread(ctx context.Context, t *domain.ChatThread) (thread *domain.ChatThread, created bool, err error)
	GetThread(ctx context.Context, id types.ID) (*domain.ChatThread, error)
	GetThreadByOrder(ctx context.Context, orderID types.ID) (*domain.ChatThread, error)
	AppendMessage(ctx context.Context, m *domain.ChatMessage) error
	ListMessages(ctx context.Context, threadID types.ID, limit int) ([]*domain.ChatMessage, error)
	// MarkRead flags every unread message in the thread not sent by readerID.
	MarkRead(ctx context.Context, threadID, readerID types.ID, at time.Time) (int, error)
}
