package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"easyfuel/internal/domain"
	"easyfuel/internal/realtime"
	"easyfuel/internal/store"
	"easyfuel/internal/types"
)

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs due timers on the calling goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Publish(_ context.Context, e realtime.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) count(t realtime.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Payload.Type() == t {
			n++
		}
	}
	return n
}

type reportRecorder struct {
	mu     sync.Mutex
	orders []types.ID
}

func (r *reportRecorder) ReportExhausted(_ context.Context, o *domain.Order, _ int) {
	r.mu.Lock()
	r.orders = append(r.orders, o.ID)
	r.mu.Unlock()
}

type fixture struct {
	store    *store.Memory
	clock    *fakeClock
	events   *recorder
	reports  *reportRecorder
	engine   *Engine
	drivers  []types.ID
	customer domain.Actor
}

func newFixture(t *testing.T, drivers ...types.ID) *fixture {
	t.Helper()
	f := &fixture{
		store:    store.NewMemory(),
		clock:    newFakeClock(),
		events:   &recorder{},
		reports:  &reportRecorder{},
		drivers:  drivers,
		customer: domain.Actor{Type: domain.ActorCustomer, ID: "c1"},
	}
	cands := CandidateFunc(func(context.Context, *domain.Order) ([]types.ID, error) {
		return f.drivers, nil
	})
	f.engine = NewEngine(f.store, cands, f.events, f.reports, Config{OfferTTL: 15 * time.Minute}, nil, WithClock(f.clock))
	return f
}

func (f *fixture) newOrder(t *testing.T, id types.ID, mode domain.FulfillmentMode) {
	t.Helper()
	o := &domain.Order{
		ID:            id,
		CustomerID:    "c1",
		FuelType:      "diesel",
		Quantity:      500000,
		Price:         domain.NewPrice(1050000, 35000, 22050),
		Currency:      types.DefaultCurrency,
		Mode:          mode,
		PaymentStatus: domain.PaymentPending,
		Status:        domain.OrderCreated,
		CreatedAt:     f.clock.Now(),
	}
	if mode == domain.FulfillmentDepot {
		s := types.ID("s1")
		o.SupplierID = &s
	}
	require.NoError(t, f.store.CreateOrder(context.Background(), o))
}

func (f *fixture) order(t *testing.T, id types.ID) *domain.Order {
	t.Helper()
	o, err := f.store.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (f *fixture) pendingCount(t *testing.T, id types.ID) int {
	t.Helper()
	offers, err := f.store.ListOffers(context.Background(), id)
	require.NoError(t, err)
	n := 0
	for _, of := range offers {
		if of.Status == domain.OfferPending {
			n++
		}
	}
	return n
}

func TestRequestDispatchOffersFirstCandidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "d1", "d2", "d3")
	f.newOrder(t, "o1", domain.FulfillmentDirect)

	of, err := f.engine.RequestDispatch(ctx, "o1", f.customer)
	require.NoError(t, err)
	assert.Equal(t, types.ID("d1"), of.DriverID)
	assert.Equal(t, 1, of.Attempt)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), of.ExpiresAt)

	o := f.order(t, "o1")
	assert.Equal(t, domain.OrderOffered, o.Status)
	assert.Equal(t, 2, o.StatusVersion)
	assert.Equal(t, 1, f.pendingCount(t, "o1"))
	assert.Equal(t, 1, f.events.count(realtime.TypeOfferCreated))
	assert.Equal(t, 2, f.events.count(realtime.TypeOrderStateChanged))

	_, err = f.engine.RequestDispatch(ctx, "o1", f.customer)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.engine.RequestDispatch(ctx, "o1", domain.Actor{Type: domain.ActorCustomer, ID: "c2"})
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestAcceptAssignsOrderAtomically(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "d1", "d2")
	f.newOrder(t, "o1", domain.FulfillmentDepot)

	of, err := f.engine.RequestDispatch(ctx, "o1", f.customer)
	require.NoError(t, err)

	got, err := f.engine.Resolve(ctx, of.ID, "d1", domain.DecisionAccept)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferAccepted, got.Status)

	o := f.order(t, "o1")
	assert.Equal(t, domain.OrderAssigned, o.Status)
	require.NotNil(t, o.DriverID)
	assert.Equal(t, types.ID("d1"), *o.DriverID)
	assert.Equal(t, 0, f.pendingCount(t, "o1"))

	d, err := f.store.GetDepotOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.DepotPending, d.Status)
	assert.Equal(t, types.ID("s1"), d.SupplierID)
	assert.Equal(t, types.ID("d1"), d.DriverID)

	_, err = f.engine.Resolve(ctx, of.ID, "d1", domain.DecisionAccept)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestAcceptFailureLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "d1")
	f.newOrder(t, "o1", domain.FulfillmentDepot)

	of, err := f.engine.RequestDispatch(ctx, "o1", f.customer)
	require.NoError(t, err)

	// A depot order that already exists makes the insert fail inside the transaction.
	now := f.clock.Now()
	require.NoError(t, f.store.CreateDepotOrder(ctx, &domain.DepotOrder{
		OrderID: "o1", SupplierID: "s1", DriverID: "dX", Status: domain.DepotPending, CreatedAt: now, UpdatedAt: now,
	}))

	_, err = f.engine.Resolve(ctx, of.ID, "d1", domain.DecisionAccept)
	require.Error(t, err)

	cur, err := f.store.GetOffer(ctx, of.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferPending, cur.Status)
	assert.Equal(t, domain.OrderOffered, f.order(t, "o1").Status)
}

func TestRejectReoffersWithoutGap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "d1", "d2")
	f.newOrder(t, "o1", domain.FulfillmentDirect)

	first, err := f.engine.RequestDispatch(ctx, "o1", f.customer)
	require.NoError(t, err)

	_, err = f.engine.Resolve(ctx, first.ID, "d2", domain.DecisionReject)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	got, err := f.engine.Resolve(ctx, first.ID, "d1", domain.DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferRejected, got.Status)

	assert.Equal(t, domain.OrderOffered, f.order(t, "o1").Status)
	live, err := f.store.PendingOffer(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, types.ID("d2"), live.DriverID)
	assert.Equal(t, 2, live.Attempt)
}

func TestExpiryOffersNextCandidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "dA", "dB")
	f.newOrder(t, "o1", domain.FulfillmentDirect)

	first, err := f.engine.RequestDispatch(ctx, "o1", f.customer)
	require.NoError(t, err)

	f.clock.Advance(14 * time.Minute)
	cur, err := f.store.GetOffer(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferPending, cur.Status)

	f.clock.Advance(time.Minute)
	cur, err = f.store.GetOffer(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferExpired, cur.Status)

	assert.Equal(t, domain.OrderOffered, f.order(t, "o1").Status)
	live, err := f.store.PendingOffer(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, types.ID("dB"), live.DriverID)
	assert.Equal(t, 1, f.pendingCount(t, "o1"))
}

func TestExpireAfterAcceptIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "d1", "d2")
	f.newOrder(t, "o1", domain.FulfillmentDirect)

	of, err := f.engine.RequestDispatch(ctx, "o1", f.customer)
	require.NoError(t, err)
	_, err = f.engine.Resolve(ctx, of.ID, "d1", domain.DecisionAccept)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.engine.Expire(ctx, of.ID))
	require.NoError(t, f.engine.Expire(ctx, of.ID))

	cur, err := f.store.GetOffer(ctx, of.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferAccepted, cur.Status)
	assert.Equal(t, domain.OrderAssigned, f.order(t, "o1").Status)
}

func TestEarlyExpireIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "d1", "d2")
	f.newOrder(t, "o1", domain.FulfillmentDirect)

	of, err := f.engine.RequestDispatch(ctx, "o1", f.customer)
	require.NoError(t, err)
	require.NoError(t, f.engine.Expire(ctx, of.ID))

	cur, err := f.store.GetOffer(ctx, of.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferPending, cur.Status)
}

func TestAcceptAfterDeadlineIsInvalid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "d1")
	f.newOrder(t, "o1", domain.FulfillmentDirect)

	of, err := f.engine.RequestDispatch(ctx, "o1", f.customer)
	require.NoError(t, err)

	// Deadline passed but no timer ran yet.
	f.clock.mu.Lock()
	f.clock.now = f.clock.now.Add(16 * time.Minute)
	f.clock.mu.Unlock()

	_, err = f.engine.Resolve(ctx, of.ID, "d1", domain.DecisionAccept)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.OrderOffered, f.order(t, "o1").Status)
}

func TestExhaustionReturnsOrderToPendingDispatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "d1")
	f.newOrder(t, "o1", domain.FulfillmentDirect)

	of, err := f.engine.RequestDispatch(ctx, "o1", f.customer)
	require.NoError(t, err)

	_, err = f.engine.Resolve(ctx, of.ID, "d1", domain.DecisionReject)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderPendingDispatch, f.order(t, "o1").Status)
	assert.Equal(t, 0, f.pendingCount(t, "o1"))
	assert.Equal(t, []types.ID{"o1"}, f.reports.orders)

	// Re-dispatch opens a new round, so d1 may be asked again.
	next, err := f.engine.RequestDispatch(ctx, "o1", domain.Actor{Type: domain.ActorAdmin, ID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, types.ID("d1"), next.DriverID)
	assert.Equal(t, 2, next.Round)
	assert.Equal(t, 2, next.Attempt)
	assert.Equal(t, domain.OrderOffered, f.order(t, "o1").Status)
}

func TestRedispatchAfterCappedRoundReachesUntriedDriver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "d1", "d2")
	cands := CandidateFunc(func(context.Context, *domain.Order) ([]types.ID, error) { return f.drivers, nil })
	f.engine = NewEngine(f.store, cands, f.events, f.reports, Config{OfferTTL: 15 * time.Minute, MaxOffers: 1}, nil, WithClock(f.clock))
	f.newOrder(t, "o1", domain.FulfillmentDirect)

	first, err := f.engine.RequestDispatch(ctx, "o1", f.customer)
	require.NoError(t, err)
	assert.Equal(t, types.ID("d1"), first.DriverID)
	assert.Equal(t, 1, first.Round)

	f.clock.Advance(16 * time.Minute)
	assert.Equal(t, domain.OrderPendingDispatch, f.order(t, "o1").Status)
	assert.Len(t, f.reports.orders, 1)

	admin := domain.Actor{Type: domain.ActorAdmin, ID: "a1"}
	second, err := f.engine.RequestDispatch(ctx, "o1", admin)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, types.ID("d1"), second.DriverID)
	assert.Equal(t, 2, second.Round)

	// The cap applies per round: rejecting in round 2 exhausts it, round 3 moves on.
	_, err = f.engine.Resolve(ctx, second.ID, "d1", domain.DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPendingDispatch, f.order(t, "o1").Status)

	f.drivers = []types.ID{"d2"}
	third, err := f.engine.RequestDispatch(ctx, "o1", admin)
	require.NoError(t, err)
	assert.Equal(t, types.ID("d2"), third.DriverID)
	assert.Equal(t, 3, third.Round)
	assert.Equal(t, 1, f.pendingCount(t, "o1"))
}

func TestRoundExcludesDriversAlreadyAsked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "d1", "d2")
	f.newOrder(t, "o1", domain.FulfillmentDirect)

	first, err := f.engine.RequestDispatch(ctx, "o1", f.customer)
	require.NoError(t, err)
	_, err = f.engine.Resolve(ctx, first.ID, "d1", domain.DecisionReject)
	require.NoError(t, err)

	live, err := f.store.PendingOffer(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, types.ID("d2"), live.DriverID)
	assert.Equal(t, 1, live.Round)

	_, err = f.engine.Resolve(ctx, live.ID, "d2", domain.DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPendingDispatch, f.order(t, "o1").Status)
}

func TestNoCandidatesAtAll(t *testing.T) {
	f := newFixture(t)
	f.newOrder(t, "o1", domain.FulfillmentDirect)

	_, err := f.engine.RequestDispatch(context.Background(), "o1", f.customer)
	assert.ErrorIs(t, err, domain.ErrExhausted)
	assert.Equal(t, domain.OrderPendingDispatch, f.order(t, "o1").Status)
	assert.Len(t, f.reports.orders, 1)
}

func TestBusyDriverIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "d1", "d2")
	f.newOrder(t, "o1", domain.FulfillmentDirect)
	f.newOrder(t, "o2", domain.FulfillmentDirect)

	first, err := f.engine.RequestDispatch(ctx, "o1", f.customer)
	require.NoError(t, err)
	second, err := f.engine.RequestDispatch(ctx, "o2", f.customer)
	require.NoError(t, err)

	assert.Equal(t, types.ID("d1"), first.DriverID)
	assert.Equal(t, types.ID("d2"), second.DriverID)
}

func TestConcurrentAcceptAndReject(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		f := newFixture(t, "d1", "d2")
		f.newOrder(t, "o1", domain.FulfillmentDirect)
		of, err := f.engine.RequestDispatch(ctx, "o1", f.customer)
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make(chan error, 2)
		for _, d := range []domain.Decision{domain.DecisionAccept, domain.DecisionReject} {
			wg.Add(1)
			go func(d domain.Decision) {
				defer wg.Done()
				_, err := f.engine.Resolve(ctx, of.ID, "d1", d)
				errs <- err
			}(d)
		}
		wg.Wait()
		close(errs)

		success := 0
		for err := range errs {
			if err == nil {
				success++
				continue
			}
			if !errors.Is(err, domain.ErrConflict) && !errors.Is(err, domain.ErrInvalidTransition) {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		require.Equal(t, 1, success)

		cur, err := f.store.GetOffer(ctx, of.ID)
		require.NoError(t, err)
		o := f.order(t, "o1")
		switch cur.Status {
		case domain.OfferAccepted:
			assert.Equal(t, domain.OrderAssigned, o.Status)
			assert.Equal(t, 0, f.pendingCount(t, "o1"))
		case domain.OfferRejected:
			assert.Equal(t, domain.OrderOffered, o.Status)
			assert.Equal(t, 1, f.pendingCount(t, "o1"))
		default:
			t.Fatalf("offer left in %s", cur.Status)
		}
	}
}

func TestSinglePendingOfferUnderConcurrentDispatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "d1", "d2", "d3", "d4")
	f.newOrder(t, "o1", domain.FulfillmentDirect)

	var wg sync.WaitGroup
	var mu sync.Mutex
	success := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.RequestDispatch(ctx, "o1", f.customer)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domain.ErrConflict) && !errors.Is(err, domain.ErrInvalidTransition) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, 1, f.pendingCount(t, "o1"))

	// Interleave rejections and sweeps; the invariant must hold after every step.
	for i := 0; i < 3; i++ {
		live, err := f.store.PendingOffer(ctx, "o1")
		require.NoError(t, err)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.engine.Resolve(ctx, live.ID, live.DriverID, domain.DecisionReject)
		}()
		go func() {
			defer wg.Done()
			_, _ = f.engine.ExpireDue(ctx)
		}()
		wg.Wait()
		assert.LessOrEqual(t, f.pendingCount(t, "o1"), 1)
	}
}

// checkOfferInvariants asserts the offer/order relationship for every order and driver.
func (f *fixture) checkOfferInvariants(t *testing.T, orders []types.ID) {
	t.Helper()
	ctx := context.Background()
	perDriver := map[types.ID]int{}
	for _, id := range orders {
		o := f.order(t, id)
		offers, err := f.store.ListOffers(ctx, id)
		require.NoError(t, err)
		pending, accepted := 0, 0
		for _, of := range offers {
			switch of.Status {
			case domain.OfferPending:
				pending++
				perDriver[of.DriverID]++
			case domain.OfferAccepted:
				accepted++
				require.NotNil(t, o.DriverID, "order %s has an accepted offer but no driver", id)
				assert.Equal(t, *o.DriverID, of.DriverID)
			}
		}
		require.LessOrEqual(t, pending, 1, "order %s", id)
		assert.Equal(t, o.Status == domain.OrderOffered, pending == 1, "order %s in %s with %d pending", id, o.Status, pending)
		if o.Status == domain.OrderAssigned {
			assert.Equal(t, 1, accepted, "order %s", id)
		} else {
			assert.Equal(t, 0, accepted, "order %s", id)
		}
	}
	for d, n := range perDriver {
		assert.LessOrEqual(t, n, 1, "driver %s holds %d pending offers", d, n)
	}
}

func TestOfferInvariantsUnderRandomInterleavings(t *testing.T) {
	orders := []types.ID{"o1", "o2", "o3"}
	admin := domain.Actor{Type: domain.ActorAdmin, ID: "a1"}

	for seed := int64(1); seed <= 25; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			ctx := context.Background()
			rng := rand.New(rand.NewSource(seed))
			f := newFixture(t, "d1", "d2", "d3", "d4")
			for _, id := range orders {
				f.newOrder(t, id, domain.FulfillmentDirect)
				_, err := f.engine.RequestDispatch(ctx, id, f.customer)
				if err != nil {
					require.ErrorIs(t, err, domain.ErrExhausted)
				}
			}
			f.checkOfferInvariants(t, orders)

			for step := 0; step < 30; step++ {
				var wg sync.WaitGroup
				for n := 1 + rng.Intn(4); n > 0; n-- {
					id := orders[rng.Intn(len(orders))]
					op := rng.Intn(4)
					wg.Add(1)
					go func() {
						defer wg.Done()
						switch op {
						case 0, 1:
							live, err := f.store.PendingOffer(ctx, id)
							if err != nil {
								return
							}
							decision := domain.DecisionReject
							if op == 0 {
								decision = domain.DecisionAccept
							}
							_, _ = f.engine.Resolve(ctx, live.ID, live.DriverID, decision)
						case 2:
							_, _ = f.engine.ExpireDue(ctx)
						case 3:
							_, _ = f.engine.RequestDispatch(ctx, id, admin)
						}
					}()
				}
				wg.Wait()
				f.checkOfferInvariants(t, orders)

				f.clock.Advance([]time.Duration{0, 5 * time.Minute, 16 * time.Minute}[rng.Intn(3)])
				f.checkOfferInvariants(t, orders)
			}
		})
	}
}

func TestExpireDueRecoversAfterRestart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "d1", "d2")
	f.newOrder(t, "o1", domain.FulfillmentDirect)

	first, err := f.engine.RequestDispatch(ctx, "o1", f.customer)
	require.NoError(t, err)

	// A new process: same store, no timers, clock past the deadline.
	clock := newFakeClock()
	clock.now = f.clock.Now().Add(20 * time.Minute)
	cands := CandidateFunc(func(context.Context, *domain.Order) ([]types.ID, error) { return f.drivers, nil })
	restarted := NewEngine(f.store, cands, f.events, f.reports, Config{}, nil, WithClock(clock))

	n, err := restarted.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cur, err := f.store.GetOffer(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferExpired, cur.Status)

	armed, err := restarted.Rearm(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, armed)

	// The stale timer from the first process fires late and must change nothing.
	f.engine.fire(first.ID)
	assert.Equal(t, 1, f.pendingCount(t, "o1"))
	restarted.Stop()
}
