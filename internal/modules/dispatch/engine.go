// README: Dispatch offer engine. One live offer per order, expiry by persisted deadline.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"easyfuel/internal/domain"
	"easyfuel/internal/modules/order"
	"easyfuel/internal/realtime"
	"easyfuel/internal/store"
	"easyfuel/internal/types"
)

const timerFireTimeout = 30 * time.Second

type Engine struct {
	store      store.Store
	candidates CandidateSource
	events     realtime.Publisher
	reporter   ExhaustionReporter
	clock      Clock
	cfg        Config
	logger     *slog.Logger

	mu     sync.Mutex
	timers map[types.ID]Timer
}

type Option func(*Engine)

func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func NewEngine(st store.Store, candidates CandidateSource, events realtime.Publisher, reporter ExhaustionReporter, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if events == nil {
		events = realtime.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OfferTTL <= 0 {
		cfg.OfferTTL = DefaultOfferTTL
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 100
	}
	e := &Engine{
		store:      st,
		candidates: candidates,
		events:     events,
		reporter:   reporter,
		clock:      realClock{},
		cfg:        cfg,
		logger:     logger.With("component", "dispatch"),
		timers:     make(map[types.ID]Timer),
	}
	if e.reporter == nil {
		e.reporter = NewEventReporter(events, logger)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// outcome collects what a committed transaction changed so side effects run after commit.
type outcome struct {
	events    []realtime.Event
	resolved  types.ID
	created   *domain.Offer
	exhausted *domain.Order
	attempts  int
	noop      bool
}

// RequestDispatch starts (or restarts after exhaustion) the offer sequence for an order.
func (e *Engine) RequestDispatch(ctx context.Context, orderID types.ID, actor domain.Actor) (*domain.Offer, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.Type != domain.ActorSystem && o.CustomerID != actor.ID {
		return nil, fmt.Errorf("dispatch order %s by %s: %w", o.ID, actor.ID, domain.ErrNotAuthorized)
	}
	if o.Status != domain.OrderCreated && o.Status != domain.OrderPendingDispatch {
		return nil, fmt.Errorf("dispatch order %s in %s: %w", o.ID, o.Status, domain.ErrInvalidTransition)
	}
	cands, err := e.candidates.Candidates(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("candidates for order %s: %w", o.ID, err)
	}

	now := e.clock.Now()
	var out outcome
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		out = outcome{}
		cur, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if cur.Status == domain.OrderCreated {
			if err := e.transition(ctx, tx, cur, domain.OrderPendingDispatch, actor, now, &out); err != nil {
				return err
			}
		}
		if cur.Status != domain.OrderPendingDispatch {
			return fmt.Errorf("dispatch order %s in %s: %w", cur.ID, cur.Status, domain.ErrInvalidTransition)
		}
		if live, err := tx.PendingOffer(ctx, cur.ID); err == nil {
			return fmt.Errorf("order %s already has live offer %s: %w", cur.ID, live.ID, domain.ErrConflict)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return e.offerNext(ctx, tx, cur, newRound, cands, actor, now, &out)
	})
	if err != nil {
		return nil, err
	}
	e.commit(ctx, out)
	if out.exhausted != nil {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrExhausted)
	}
	return out.created, nil
}

func (e *Engine) Resolve(ctx context.Context, offerID, driverID types.ID, decision domain.Decision) (*domain.Offer, error) {
	switch decision {
	case domain.DecisionAccept:
		return e.accept(ctx, offerID, driverID)
	case domain.DecisionReject:
		return e.reject(ctx, offerID, driverID)
	}
	return nil, fmt.Errorf("decision %q: %w", decision, domain.ErrBadRequest)
}

func (e *Engine) accept(ctx context.Context, offerID, driverID types.ID) (*domain.Offer, error) {
	now := e.clock.Now()
	actor := domain.Actor{Type: domain.ActorDriver, ID: driverID}
	var accepted *domain.Offer
	var out outcome

	err := e.store.InTx(ctx, func(tx store.Tx) error {
		out = outcome{}
		of, err := tx.GetOffer(ctx, offerID)
		if err != nil {
			return err
		}
		if err := checkResolvable(of, driverID, now); err != nil {
			return err
		}
		o, err := tx.GetOrder(ctx, of.OrderID)
		if err != nil {
			return err
		}
		if err := resolve(ctx, tx, of, domain.OfferAccepted, now); err != nil {
			return err
		}
		out.events = append(out.events, offerResolved(of, o))

		driver := of.DriverID
		o.DriverID = &driver
		if err := e.transition(ctx, tx, o, domain.OrderAssigned, actor, now, &out); err != nil {
			return err
		}

		if o.Mode == domain.FulfillmentDepot {
			if o.SupplierID == nil {
				return fmt.Errorf("depot order %s has no supplier: %w", o.ID, domain.ErrInvalidTransition)
			}
			d := &domain.DepotOrder{
				OrderID:    o.ID,
				SupplierID: *o.SupplierID,
				DriverID:   driver,
				Status:     domain.DepotPending,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := tx.CreateDepotOrder(ctx, d); err != nil {
				return err
			}
			out.events = append(out.events, realtime.Event{OrderID: o.ID, At: now, Payload: &realtime.DepotStateChanged{
				To:         domain.DepotPending,
				Version:    d.Version,
				CustomerID: o.CustomerID,
				DriverID:   driver,
				SupplierID: d.SupplierID,
			}})
		}
		out.resolved = of.ID
		accepted = of
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.commit(ctx, out)
	if avail, ok := e.candidates.(Availability); ok {
		if err := avail.SetUnavailable(ctx, driverID); err != nil {
			e.logger.Warn("mark driver unavailable", "driver_id", driverID, "err", err)
		}
	}
	e.logger.Info("offer accepted", "offer_id", accepted.ID, "order_id", accepted.OrderID, "driver_id", driverID)
	return accepted, nil
}

func (e *Engine) reject(ctx context.Context, offerID, driverID types.ID) (*domain.Offer, error) {
	of, err := e.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if of.DriverID != driverID {
		return nil, fmt.Errorf("offer %s is not for %s: %w", of.ID, driverID, domain.ErrNotAuthorized)
	}
	cands := e.candidatesFor(ctx, of.OrderID)

	now := e.clock.Now()
	actor := domain.Actor{Type: domain.ActorDriver, ID: driverID}
	var rejected *domain.Offer
	var out outcome

	err = e.store.InTx(ctx, func(tx store.Tx) error {
		out = outcome{}
		cur, err := tx.GetOffer(ctx, offerID)
		if err != nil {
			return err
		}
		if err := checkResolvable(cur, driverID, now); err != nil {
			return err
		}
		o, err := tx.GetOrder(ctx, cur.OrderID)
		if err != nil {
			return err
		}
		if err := resolve(ctx, tx, cur, domain.OfferRejected, now); err != nil {
			return err
		}
		out.events = append(out.events, offerResolved(cur, o))
		out.resolved = cur.ID
		rejected = cur
		if o.Status != domain.OrderOffered {
			return fmt.Errorf("order %s in %s with live offer %s: %w", o.ID, o.Status, cur.ID, domain.ErrConflict)
		}
		return e.offerNext(ctx, tx, o, cur.Round, cands, actor, now, &out)
	})
	if err != nil {
		return nil, err
	}
	e.commit(ctx, out)
	e.logger.Info("offer rejected", "offer_id", rejected.ID, "order_id", rejected.OrderID, "driver_id", driverID)
	return rejected, nil
}

// Expire is the timer and sweeper entry point. An offer that was already
// resolved, or whose deadline has not passed, is left alone. The returned error
// is domain.ErrExhausted when the expiry used up the candidates.
func (e *Engine) Expire(ctx context.Context, offerID types.ID) error {
	of, err := e.store.GetOffer(ctx, offerID)
	if err != nil {
		return err
	}
	now := e.clock.Now()
	if of.Status != domain.OfferPending || now.Before(of.ExpiresAt) {
		e.logger.Debug("offer expiry no-op", "offer_id", of.ID, "status", of.Status)
		return nil
	}
	cands := e.candidatesFor(ctx, of.OrderID)

	var out outcome
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		out = outcome{}
		cur, err := tx.GetOffer(ctx, offerID)
		if err != nil {
			return err
		}
		if cur.Status != domain.OfferPending {
			out.noop = true
			return nil
		}
		ok, err := tx.ResolveOffer(ctx, cur.ID, domain.OfferExpired, now)
		if err != nil {
			return err
		}
		if !ok {
			out.noop = true
			return nil
		}
		cur.Status = domain.OfferExpired
		cur.ResolvedAt = &now
		o, err := tx.GetOrder(ctx, cur.OrderID)
		if err != nil {
			return err
		}
		out.events = append(out.events, offerResolved(cur, o))
		out.resolved = cur.ID
		if o.Status != domain.OrderOffered {
			return nil
		}
		return e.offerNext(ctx, tx, o, cur.Round, cands, domain.System(), now, &out)
	})
	if err != nil {
		return err
	}
	if out.noop {
		e.logger.Debug("offer expiry lost to a concurrent resolution", "offer_id", offerID)
		return nil
	}
	e.commit(ctx, out)
	e.logger.Info("offer expired", "offer_id", offerID, "order_id", of.OrderID, "driver_id", of.DriverID)
	if out.exhausted != nil {
		return fmt.Errorf("order %s: %w", of.OrderID, domain.ErrExhausted)
	}
	return nil
}

// ExpireDue expires every pending offer whose persisted deadline has passed.
func (e *Engine) ExpireDue(ctx context.Context) (int, error) {
	due, err := e.store.ListDueOffers(ctx, e.clock.Now(), e.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, of := range due {
		err := e.Expire(ctx, of.ID)
		switch {
		case err == nil:
			n++
		case errors.Is(err, domain.ErrExhausted):
			n++
			e.logger.Info("expiry exhausted candidates", "order_id", of.OrderID)
		default:
			e.logger.Warn("expire offer", "offer_id", of.ID, "err", err)
		}
	}
	return n, nil
}

// Rearm restores in-process timers for every pending offer, e.g. after a restart.
func (e *Engine) Rearm(ctx context.Context) (int, error) {
	pending, err := e.store.ListPendingOffers(ctx, 0)
	if err != nil {
		return 0, err
	}
	for _, of := range pending {
		e.arm(of)
	}
	e.logger.Info("offer timers re-armed", "count", len(pending))
	return len(pending), nil
}

// Stop cancels every armed timer. The persisted deadlines stay authoritative.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
}

func (e *Engine) PendingForDriver(ctx context.Context, driverID types.ID) ([]*domain.Offer, error) {
	return e.store.ListPendingOffersForDriver(ctx, driverID)
}

// newRound asks offerNext to open a dispatch round after the latest one.
const newRound = 0

// offerNext offers o to the best candidate not yet tried in the given round.
// With none left the order falls back to pending_dispatch and is reported.
func (e *Engine) offerNext(ctx context.Context, tx store.Tx, o *domain.Order, round int, cands []types.ID, actor domain.Actor, now time.Time, out *outcome) error {
	previous, err := tx.ListOffers(ctx, o.ID)
	if err != nil {
		return err
	}
	if round == newRound {
		for _, of := range previous {
			round = max(round, of.Round)
		}
		round++
	}
	tried := make(map[types.ID]bool, len(previous))
	inRound := 0
	for _, of := range previous {
		if of.Round == round {
			tried[of.DriverID] = true
			inRound++
		}
	}

	var next types.ID
	if e.cfg.MaxOffers <= 0 || inRound < e.cfg.MaxOffers {
		for _, c := range cands {
			if tried[c] {
				continue
			}
			busy, err := tx.ListPendingOffersForDriver(ctx, c)
			if err != nil {
				return err
			}
			if len(busy) > 0 {
				continue
			}
			next = c
			break
		}
	}

	if next == "" {
		if o.Status == domain.OrderOffered {
			if err := e.transition(ctx, tx, o, domain.OrderPendingDispatch, domain.System(), now, out); err != nil {
				return err
			}
		}
		out.exhausted = o.Clone()
		out.attempts = inRound
		return nil
	}

	if o.Status == domain.OrderPendingDispatch {
		if err := e.transition(ctx, tx, o, domain.OrderOffered, actor, now, out); err != nil {
			return err
		}
	}
	of := &domain.Offer{
		ID:        types.ID(uuid.NewString()),
		OrderID:   o.ID,
		DriverID:  next,
		Status:    domain.OfferPending,
		Round:     round,
		Attempt:   len(previous) + 1,
		CreatedAt: now,
		ExpiresAt: now.Add(e.cfg.OfferTTL),
	}
	if err := tx.CreateOffer(ctx, of); err != nil {
		return err
	}
	out.created = of
	out.events = append(out.events, realtime.Event{OrderID: o.ID, At: now, Payload: &realtime.OfferCreated{
		OfferID:   of.ID,
		DriverID:  of.DriverID,
		Attempt:   of.Attempt,
		ExpiresAt: of.ExpiresAt,
		FuelType:  o.FuelType,
		Quantity:  o.Quantity,
		Pickup:    o.Pickup,
		Dropoff:   o.Dropoff,
	}})
	return nil
}

func (e *Engine) transition(ctx context.Context, tx store.Tx, o *domain.Order, to domain.OrderStatus, actor domain.Actor, now time.Time, out *outcome) error {
	from := o.Status
	if err := order.Apply(ctx, tx, o, to, actor, now); err != nil {
		return err
	}
	out.events = append(out.events, order.StateChanged(o, from, actor, now))
	return nil
}

// commit runs the side effects of a committed transaction: pushes, timers, reporting.
func (e *Engine) commit(ctx context.Context, out outcome) {
	for _, ev := range out.events {
		e.events.Publish(ctx, ev)
	}
	if out.resolved != "" {
		e.disarm(out.resolved)
	}
	if out.created != nil {
		e.arm(out.created)
		e.logger.Info("offer created", "offer_id", out.created.ID, "order_id", out.created.OrderID,
			"driver_id", out.created.DriverID, "attempt", out.created.Attempt, "expires_at", out.created.ExpiresAt)
	}
	if out.exhausted != nil {
		e.reporter.ReportExhausted(ctx, out.exhausted, out.attempts)
	}
}

// candidatesFor is used on re-offer paths where a ranking failure must not block the resolution.
func (e *Engine) candidatesFor(ctx context.Context, orderID types.ID) []types.ID {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		e.logger.Warn("load order for candidates", "order_id", orderID, "err", err)
		return nil
	}
	cands, err := e.candidates.Candidates(ctx, o)
	if err != nil {
		e.logger.Warn("candidate lookup failed", "order_id", orderID, "err", err)
		return nil
	}
	return cands
}

func (e *Engine) arm(of *domain.Offer) {
	d := of.ExpiresAt.Sub(e.clock.Now())
	if d < 0 {
		d = 0
	}
	id := of.ID
	t := e.clock.AfterFunc(d, func() { e.fire(id) })

	e.mu.Lock()
	if old, ok := e.timers[id]; ok {
		old.Stop()
	}
	e.timers[id] = t
	e.mu.Unlock()
}

func (e *Engine) disarm(id types.ID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.timers[id]; ok {
		t.Stop()
		delete(e.timers, id)
	}
}

func (e *Engine) fire(id types.ID) {
	e.mu.Lock()
	delete(e.timers, id)
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timerFireTimeout)
	defer cancel()
	err := e.Expire(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrExhausted):
		e.logger.Info("offer timer exhausted candidates", "offer_id", id)
	default:
		e.logger.Warn("offer timer", "offer_id", id, "err", err)
	}
}

func checkResolvable(of *domain.Offer, driverID types.ID, now time.Time) error {
	if of.DriverID != driverID {
		return fmt.Errorf("offer %s is not for %s: %w", of.ID, driverID, domain.ErrNotAuthorized)
	}
	if of.Status != domain.OfferPending {
		return fmt.Errorf("offer %s already %s: %w", of.ID, of.Status, domain.ErrInvalidTransition)
	}
	if !now.Before(of.ExpiresAt) {
		return fmt.Errorf("offer %s expired at %s: %w", of.ID, of.ExpiresAt.Format(time.RFC3339), domain.ErrInvalidTransition)
	}
	return nil
}

func resolve(ctx context.Context, tx store.Tx, of *domain.Offer, to domain.OfferStatus, now time.Time) error {
	ok, err := tx.ResolveOffer(ctx, of.ID, to, now)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("offer %s resolved concurrently: %w", of.ID, domain.ErrConflict)
	}
	of.Status = to
	of.ResolvedAt = &now
	return nil
}

func offerResolved(of *domain.Offer, o *domain.Order) realtime.Event {
	return realtime.Event{OrderID: of.OrderID, At: *of.ResolvedAt, Payload: &realtime.OfferResolved{
		OfferID:    of.ID,
		DriverID:   of.DriverID,
		CustomerID: o.CustomerID,
		Status:     of.Status,
	}}
}
