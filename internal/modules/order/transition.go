package order

import (
	"context"
	"fmt"
	"time"

	"easyfuel/internal/domain"
	"easyfuel/internal/realtime"
	"easyfuel/internal/store"
)

// Apply moves o to `to` inside tx: guard, compare-and-swap on (status, version)
// and the audit row. Fields the caller set on o before the call are persisted
// with the new status. o reflects the stored row on success.
func Apply(ctx context.Context, tx store.Tx, o *domain.Order, to domain.OrderStatus, actor domain.Actor, at time.Time) error {
	from, version := o.Status, o.StatusVersion
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("order %s %s -> %s: %w", o.ID, from, to, domain.ErrInvalidTransition)
	}
	o.Status = to
	o.Stamp(to, at)
	ok, err := tx.UpdateOrder(ctx, o, from, version)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("order %s at %s v%d: %w", o.ID, from, version, domain.ErrConflict)
	}
	return tx.AppendOrderEvent(ctx, &domain.OrderEvent{
		OrderID:    o.ID,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actor.Type,
		ActorID:    actor.IDPtr(),
		CreatedAt:  at,
	})
}

// StateChanged builds the event published after o moved from `from`.
func StateChanged(o *domain.Order, from domain.OrderStatus, actor domain.Actor, at time.Time) realtime.Event {
	p := &realtime.OrderStateChanged{
		From:       from,
		To:         o.Status,
		Version:    o.StatusVersion,
		CustomerID: o.CustomerID,
		ActorType:  actor.Type,
	}
	if o.DriverID != nil {
		p.DriverID = *o.DriverID
	}
	if o.SupplierID != nil {
		p.SupplierID = *o.SupplierID
	}
	return realtime.Event{OrderID: o.ID, At: at, Payload: p}
}

func checkVersion(o *domain.Order, expected *int) error {
	if expected != nil && *expected != o.StatusVersion {
		return fmt.Errorf("order %s observed v%d, now v%d: %w", o.ID, *expected, o.StatusVersion, domain.ErrConflict)
	}
	return nil
}
