// README: Depot fulfillment service: supplier and driver handover steps for depot orders.
package depot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"easyfuel/internal/domain"
	"easyfuel/internal/realtime"
	"easyfuel/internal/store"
	"easyfuel/internal/types"
)

type Config struct {
	// MaxPaymentAttempts caps proof submissions; 0 means unlimited.
	MaxPaymentAttempts int
}

type Service struct {
	store  store.Store
	events realtime.Publisher
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func NewService(st store.Store, events realtime.Publisher, cfg Config, logger *slog.Logger) *Service {
	if events == nil {
		events = realtime.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		events: events,
		cfg:    cfg,
		logger: logger.With("component", "depot"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the depot record to the order's supplier, driver, customer or an admin.
func (s *Service) Get(ctx context.Context, orderID types.ID, actor domain.Actor) (*domain.DepotOrder, error) {
	d, err := s.store.GetDepotOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() || d.SupplierID == actor.ID || d.DriverID == actor.ID {
		return d, nil
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != actor.ID {
		return nil, fmt.Errorf("depot order %s for %s: %w", orderID, actor.ID, domain.ErrNotAuthorized)
	}
	return d, nil
}

func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*domain.DepotOrder, error) {
	st, ok := steps[cmd.Action]
	if !ok {
		return nil, fmt.Errorf("depot action %q: %w", cmd.Action, domain.ErrBadRequest)
	}
	if st.evidence && cmd.EvidenceRef == "" {
		return nil, fmt.Errorf("depot action %s needs evidence: %w", cmd.Action, domain.ErrBadRequest)
	}

	now := s.now()
	var d *domain.DepotOrder
	var o *domain.Order
	var from domain.DepotStatus

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		d, err = tx.GetDepotOrder(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		o, err = tx.GetOrder(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if err := authorize(d, st, cmd.Actor); err != nil {
			return fmt.Errorf("depot %s on %s: %w", cmd.Action, d.OrderID, err)
		}
		if cmd.ExpectedVersion != nil && *cmd.ExpectedVersion != d.Version {
			return fmt.Errorf("depot order %s observed v%d, now v%d: %w", d.OrderID, *cmd.ExpectedVersion, d.Version, domain.ErrConflict)
		}
		if o.Status != domain.OrderAssigned {
			return fmt.Errorf("depot %s while order %s is %s: %w", cmd.Action, o.ID, o.Status, domain.ErrInvalidTransition)
		}
		if d.Status != st.from {
			return fmt.Errorf("depot %s from %s: %w", cmd.Action, d.Status, domain.ErrInvalidTransition)
		}
		prev := d.Status
		for _, next := range st.path {
			if !domain.CanTransitionDepot(prev, next) || !domain.DepotMonotonic(prev, next) {
				return fmt.Errorf("depot %s -> %s: %w", prev, next, domain.ErrInvalidTransition)
			}
			prev = next
		}
		if err := s.apply(d, cmd, now); err != nil {
			return err
		}

		from = d.Status
		version := d.Version
		d.Status = st.path[len(st.path)-1]
		d.UpdatedAt = now
		ok, err := tx.UpdateDepotOrder(ctx, d, from, version)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("depot order %s at %s v%d: %w", d.OrderID, from, version, domain.ErrConflict)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("depot transition", "order_id", d.OrderID, "action", cmd.Action, "from", from, "to", d.Status, "actor_id", cmd.Actor.ID)
	s.events.Publish(ctx, realtime.Event{OrderID: d.OrderID, At: now, Payload: &realtime.DepotStateChanged{
		From:       from,
		To:         d.Status,
		Version:    d.Version,
		CustomerID: o.CustomerID,
		DriverID:   d.DriverID,
		SupplierID: d.SupplierID,
	}})
	return d, nil
}

// apply sets the evidence and timestamps an action carries, after its guards pass.
func (s *Service) apply(d *domain.DepotOrder, cmd TransitionCommand, now time.Time) error {
	t := now
	evidence := &domain.Evidence{Ref: cmd.EvidenceRef, SignerID: cmd.Actor.ID, At: now}

	switch cmd.Action {
	case ActionAccept:
		d.AcceptedAt = &t
	case ActionReject:
		if cmd.Reason != "" {
			reason := cmd.Reason
			d.RejectionReason = &reason
		}
	case ActionSubmitPayment:
		if d.PaymentProof != nil {
			return fmt.Errorf("depot order %s already has a proof awaiting review: %w", d.OrderID, domain.ErrInvalidTransition)
		}
		if s.cfg.MaxPaymentAttempts > 0 && d.PaymentAttempts >= s.cfg.MaxPaymentAttempts {
			return fmt.Errorf("depot order %s used %d payment attempts: %w", d.OrderID, d.PaymentAttempts, domain.ErrInvalidTransition)
		}
		d.PaymentProof = evidence
		d.PaymentAttempts++
		d.DisputeReason = nil
	case ActionVerifyPayment:
		if d.PaymentProof == nil {
			return fmt.Errorf("depot order %s has no payment proof: %w", d.OrderID, domain.ErrInvalidTransition)
		}
		d.PaidAt = &t
	case ActionDisputePayment:
		if d.PaymentProof == nil {
			return fmt.Errorf("depot order %s has no payment proof: %w", d.OrderID, domain.ErrInvalidTransition)
		}
		d.PaymentProof = nil
		reason := cmd.Reason
		if reason == "" {
			reason = "payment proof disputed"
		}
		d.DisputeReason = &reason
	case ActionSupplierSign:
		d.SupplierSignature = evidence
		d.ReadyAt = &t
	case ActionRelease:
		if d.PaidAt == nil || d.SupplierSignature == nil {
			return fmt.Errorf("depot order %s release needs payment and supplier signature: %w", d.OrderID, domain.ErrInvalidTransition)
		}
	case ActionDriverSign:
		d.DriverSignature = evidence
		d.ReleasedAt = &t
		completed := now
		d.CompletedAt = &completed
	}
	return nil
}

func authorize(d *domain.DepotOrder, st step, a domain.Actor) error {
	switch st.actor {
	case domain.ActorSupplier:
		if a.ID == d.SupplierID {
			return nil
		}
	case domain.ActorDriver:
		if a.ID == d.DriverID {
			return nil
		}
	}
	return fmt.Errorf("%s %s is not the %s: %w", a.Type, a.ID, st.actor, domain.ErrNotAuthorized)
}
