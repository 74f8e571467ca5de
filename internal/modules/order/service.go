// README: Order service implements the order lifecycle on top of the State Store.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"easyfuel/internal/domain"
	"easyfuel/internal/modules/pricing"
	"easyfuel/internal/realtime"
	"easyfuel/internal/store"
	"easyfuel/internal/types"
)

type Quoter interface {
	Quote(ctx context.Context, fuelType string, qty types.Millilitres, pickup, dropoff types.Point) (pricing.Quote, error)
}

type Service struct {
	store   store.Store
	pricing Quoter
	events  realtime.Publisher
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(st store.Store, quoter Quoter, events realtime.Publisher, logger *slog.Logger) *Service {
	if events == nil {
		events = realtime.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   st,
		pricing: quoter,
		events:  events,
		logger:  logger.With("component", "order"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*domain.Order, error) {
	if cmd.CustomerID == "" || cmd.FuelType == "" {
		return nil, fmt.Errorf("customer and fuel type are required: %w", domain.ErrBadRequest)
	}
	qty, err := types.ParseLitres(cmd.Litres)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	mode := cmd.Mode
	if mode == "" {
		mode = domain.FulfillmentDirect
	}
	if mode != domain.FulfillmentDirect && mode != domain.FulfillmentDepot {
		return nil, fmt.Errorf("fulfillment mode %q: %w", mode, domain.ErrBadRequest)
	}
	if mode == domain.FulfillmentDepot && cmd.SupplierID == "" {
		return nil, fmt.Errorf("depot orders need a supplier: %w", domain.ErrBadRequest)
	}

	quote, err := s.pricing.Quote(ctx, cmd.FuelType, qty, cmd.Pickup, cmd.Dropoff)
	if err != nil {
		return nil, err
	}

	now := s.now()
	o := &domain.Order{
		ID:            types.ID(uuid.NewString()),
		CustomerID:    cmd.CustomerID,
		FuelType:      cmd.FuelType,
		Quantity:      qty,
		Pickup:        cmd.Pickup,
		Dropoff:       cmd.Dropoff,
		Price:         quote.Price,
		Currency:      quote.Currency,
		Mode:          mode,
		PaymentMethod: cmd.PaymentMethod,
		PaymentStatus: domain.PaymentPending,
		Status:        domain.OrderCreated,
		StatusVersion: 0,
		CreatedAt:     now,
	}
	if cmd.SupplierID != "" {
		supplier := cmd.SupplierID
		o.SupplierID = &supplier
	}
	actor := domain.Actor{Type: domain.ActorCustomer, ID: cmd.CustomerID}

	err = s.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}
		return tx.AppendOrderEvent(ctx, &domain.OrderEvent{
			OrderID:    o.ID,
			FromStatus: domain.OrderNone,
			ToStatus:   domain.OrderCreated,
			ActorType:  actor.Type,
			ActorID:    actor.IDPtr(),
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("order created", "order_id", o.ID, "total", types.Cents(o.Price.Total), "mode", o.Mode)
	s.events.Publish(ctx, StateChanged(o, domain.OrderNone, actor, now))
	return o, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*domain.Order, error) {
	return s.store.GetOrder(ctx, id)
}

// View returns the order if actor is one of its parties or an admin.
func (s *Service) View(ctx context.Context, id types.ID, actor domain.Actor) (*domain.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(o, actor) {
		return nil, fmt.Errorf("order %s for %s: %w", id, actor.ID, domain.ErrNotAuthorized)
	}
	return o, nil
}

func (s *Service) History(ctx context.Context, id types.ID, actor domain.Actor) ([]*domain.OrderEvent, error) {
	if _, err := s.View(ctx, id, actor); err != nil {
		return nil, err
	}
	return s.store.ListOrderEvents(ctx, id)
}

// ListForParty backs the reconnect snapshot.
func (s *Service) ListForParty(ctx context.Context, userID types.ID) ([]*domain.Order, error) {
	return s.store.ListOrdersForParty(ctx, userID)
}

func (s *Service) ActiveOrderIDs(ctx context.Context, userID types.ID) ([]types.ID, error) {
	orders, err := s.store.ListOrdersForParty(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	return ids, nil
}

func (s *Service) PickUp(ctx context.Context, cmd TransitionCommand) (*domain.Order, error) {
	return s.driverStep(ctx, cmd, domain.OrderPickedUp)
}

func (s *Service) StartRoute(ctx context.Context, cmd TransitionCommand) (*domain.Order, error) {
	return s.driverStep(ctx, cmd, domain.OrderEnRoute)
}

func (s *Service) Deliver(ctx context.Context, cmd TransitionCommand) (*domain.Order, error) {
	return s.driverStep(ctx, cmd, domain.OrderDelivered)
}

func (s *Service) driverStep(ctx context.Context, cmd TransitionCommand, to domain.OrderStatus) (*domain.Order, error) {
	var o *domain.Order
	var from domain.OrderStatus
	now := s.now()

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		o, err = tx.GetOrder(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if !o.IsDriver(cmd.Actor.ID) {
			return fmt.Errorf("order %s is not assigned to %s: %w", o.ID, cmd.Actor.ID, domain.ErrNotAuthorized)
		}
		if err := checkVersion(o, cmd.ExpectedVersion); err != nil {
			return err
		}
		if to == domain.OrderPickedUp && o.Mode == domain.FulfillmentDepot && o.Status == domain.OrderAssigned {
			d, err := tx.GetDepotOrder(ctx, o.ID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			if d == nil || d.Status != domain.DepotCompleted {
				return fmt.Errorf("order %s depot handover not completed: %w", o.ID, domain.ErrInvalidTransition)
			}
		}
		from = o.Status
		return Apply(ctx, tx, o, to, cmd.Actor, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("order transition", "order_id", o.ID, "from", from, "to", to, "driver_id", cmd.Actor.ID)
	s.events.Publish(ctx, StateChanged(o, from, cmd.Actor, now))
	return o, nil
}

// Cancel supersedes any live offer in the same transaction as the status change.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*domain.Order, error) {
	var o *domain.Order
	var from domain.OrderStatus
	var superseded *domain.Offer
	now := s.now()

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		o, err = tx.GetOrder(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if !canCancel(o, cmd.Actor) {
			return fmt.Errorf("cancel order %s by %s %s: %w", o.ID, cmd.Actor.Type, cmd.Actor.ID, domain.ErrNotAuthorized)
		}
		if err := checkVersion(o, cmd.ExpectedVersion); err != nil {
			return err
		}
		if domain.IsTerminal(o.Status) {
			return fmt.Errorf("order %s already %s: %w", o.ID, o.Status, domain.ErrInvalidTransition)
		}

		pending, err := tx.PendingOffer(ctx, o.ID)
		switch {
		case err == nil:
			ok, err := tx.ResolveOffer(ctx, pending.ID, domain.OfferSuperseded, now)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("offer %s resolved concurrently: %w", pending.ID, domain.ErrConflict)
			}
			pending.Status = domain.OfferSuperseded
			pending.ResolvedAt = &now
			superseded = pending
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		if cmd.Reason != "" {
			reason := cmd.Reason
			o.CancelReason = &reason
		}
		from = o.Status
		return Apply(ctx, tx, o, domain.OrderCancelled, cmd.Actor, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order cancelled", "order_id", o.ID, "from", from, "actor", cmd.Actor.Type, "reason", cmd.Reason)
	s.events.Publish(ctx, StateChanged(o, from, cmd.Actor, now))
	if superseded != nil {
		s.events.Publish(ctx, realtime.Event{OrderID: o.ID, At: now, Payload: &realtime.OfferResolved{
			OfferID:    superseded.ID,
			DriverID:   superseded.DriverID,
			CustomerID: o.CustomerID,
			Status:     domain.OfferSuperseded,
		}})
	}
	return o, nil
}

// RecordPayment marks the order paid. The status does not move; the version does.
func (s *Service) RecordPayment(ctx context.Context, cmd TransitionCommand) (*domain.Order, error) {
	if cmd.Actor.Type != domain.ActorAdmin && cmd.Actor.Type != domain.ActorSystem {
		return nil, fmt.Errorf("record payment by %s: %w", cmd.Actor.Type, domain.ErrNotAuthorized)
	}
	var o *domain.Order
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		o, err = tx.GetOrder(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if err := checkVersion(o, cmd.ExpectedVersion); err != nil {
			return err
		}
		if o.PaymentStatus != domain.PaymentPending || o.Status == domain.OrderRefunded {
			return fmt.Errorf("order %s payment is %s: %w", o.ID, o.PaymentStatus, domain.ErrInvalidTransition)
		}
		o.PaymentStatus = domain.PaymentPaid
		ok, err := tx.UpdateOrder(ctx, o, o.Status, o.StatusVersion)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("order %s: %w", o.ID, domain.ErrConflict)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment recorded", "order_id", o.ID, "total", types.Cents(o.Price.Total))
	return o, nil
}

func (s *Service) Refund(ctx context.Context, cmd TransitionCommand) (*domain.Order, error) {
	if !cmd.Actor.IsAdmin() {
		return nil, fmt.Errorf("refund by %s: %w", cmd.Actor.Type, domain.ErrNotAuthorized)
	}
	var o *domain.Order
	var from domain.OrderStatus
	now := s.now()

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		o, err = tx.GetOrder(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if err := checkVersion(o, cmd.ExpectedVersion); err != nil {
			return err
		}
		if o.PaymentStatus != domain.PaymentPaid {
			return fmt.Errorf("order %s payment is %s: %w", o.ID, o.PaymentStatus, domain.ErrInvalidTransition)
		}
		o.PaymentStatus = domain.PaymentRefunded
		from = o.Status
		return Apply(ctx, tx, o, domain.OrderRefunded, cmd.Actor, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("order refunded", "order_id", o.ID, "from", from)
	s.events.Publish(ctx, StateChanged(o, from, cmd.Actor, now))
	return o, nil
}

func canView(o *domain.Order, a domain.Actor) bool {
	return a.IsAdmin() || o.CustomerID == a.ID || o.IsDriver(a.ID) || o.IsSupplier(a.ID)
}

// canCancel: admins at any point, the customer and the assigned driver only before pickup.
func canCancel(o *domain.Order, a domain.Actor) bool {
	if a.IsAdmin() || a.Type == domain.ActorSystem {
		return true
	}
	beforePickup := o.Status == domain.OrderCreated || o.Status == domain.OrderPendingDispatch ||
		o.Status == domain.OrderOffered || o.Status == domain.OrderAssigned
	if o.CustomerID == a.ID {
		return beforePickup || domain.IsTerminal(o.Status)
	}
	if o.IsDriver(a.ID) {
		return o.Status == domain.OrderAssigned
	}
	return false
}
