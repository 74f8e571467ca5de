// README: In-memory State Store used by tests and single-process development runs.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"easyfuel/internal/domain"
	"easyfuel/internal/types"
)

// Memory keeps every record behind one mutex. InTx works on a deep copy and
// swaps it in on success, which gives all-or-nothing commits.
type Memory struct {
	mu   *sync.Mutex
	data *memData
}

type memData struct {
	orders        map[types.ID]*domain.Order
	orderEvents   []*domain.OrderEvent
	eventSeq      int64
	offers        map[types.ID]*domain.Offer
	offerSeq      []types.ID
	depot         map[types.ID]*domain.DepotOrder
	threads       map[types.ID]*domain.ChatThread
	threadByOrder map[types.ID]types.ID
	messages      map[types.ID][]*domain.ChatMessage
}

func NewMemory() *Memory {
	return &Memory{
		mu: &sync.Mutex{},
		data: &memData{
			orders:        make(map[types.ID]*domain.Order),
			offers:        make(map[types.ID]*domain.Offer),
			depot:         make(map[types.ID]*domain.DepotOrder),
			threads:       make(map[types.ID]*domain.ChatThread),
			threadByOrder: make(map[types.ID]types.ID),
			messages:      make(map[types.ID][]*domain.ChatMessage),
		},
	}
}

func (d *memData) clone() *memData {
	cp := &memData{
		orders:        make(map[types.ID]*domain.Order, len(d.orders)),
		orderEvents:   make([]*domain.OrderEvent, len(d.orderEvents)),
		eventSeq:      d.eventSeq,
		offers:        make(map[types.ID]*domain.Offer, len(d.offers)),
		offerSeq:      append([]types.ID(nil), d.offerSeq...),
		depot:         make(map[types.ID]*domain.DepotOrder, len(d.depot)),
		threads:       make(map[types.ID]*domain.ChatThread, len(d.threads)),
		threadByOrder: make(map[types.ID]types.ID, len(d.threadByOrder)),
		messages:      make(map[types.ID][]*domain.ChatMessage, len(d.messages)),
	}
	for k, v := range d.orders {
		cp.orders[k] = v.Clone()
	}
	// audit rows are append-only; sharing the pointers is safe
	copy(cp.orderEvents, d.orderEvents)
	for k, v := range d.offers {
		cp.offers[k] = v.Clone()
	}
	for k, v := range d.depot {
		cp.depot[k] = v.Clone()
	}
	for k, v := range d.threads {
		t := *v
		cp.threads[k] = &t
	}
	for k, v := range d.threadByOrder {
		cp.threadByOrder[k] = v
	}
	for k, msgs := range d.messages {
		out := make([]*domain.ChatMessage, len(msgs))
		for i, m := range msgs {
			c := *m
			out[i] = &c
		}
		cp.messages[k] = out
	}
	return cp
}

func (m *Memory) lock() func() {
	if m.mu == nil {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if m.mu == nil {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &Memory{data: m.data.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	m.data = tx.data
	return nil
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

func (m *Memory) CreateOrder(_ context.Context, o *domain.Order) error {
	defer m.lock()()
	if _, ok := m.data.orders[o.ID]; ok {
		return fmt.Errorf("order %s: %w", o.ID, domain.ErrConflict)
	}
	m.data.orders[o.ID] = o.Clone()
	return nil
}

func (m *Memory) GetOrder(_ context.Context, id types.ID) (*domain.Order, error) {
	defer m.lock()()
	o, ok := m.data.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return o.Clone(), nil
}

func (m *Memory) UpdateOrder(_ context.Context, o *domain.Order, from domain.OrderStatus, version int) (bool, error) {
	defer m.lock()()
	cur, ok := m.data.orders[o.ID]
	if !ok {
		return false, fmt.Errorf("order %s: %w", o.ID, domain.ErrNotFound)
	}
	if cur.Status != from || cur.StatusVersion != version {
		return false, nil
	}
	o.StatusVersion = version + 1
	m.data.orders[o.ID] = o.Clone()
	return true, nil
}

func (m *Memory) AppendOrderEvent(_ context.Context, e *domain.OrderEvent) error {
	defer m.lock()()
	m.data.eventSeq++
	c := *e
	c.ID = m.data.eventSeq
	e.ID = c.ID
	m.data.orderEvents = append(m.data.orderEvents, &c)
	return nil
}

func (m *Memory) ListOrderEvents(_ context.Context, orderID types.ID) ([]*domain.OrderEvent, error) {
	defer m.lock()()
	var out []*domain.OrderEvent
	for _, e := range m.data.orderEvents {
		if e.OrderID == orderID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *Memory) ListOrdersForParty(_ context.Context, userID types.ID) ([]*domain.Order, error) {
	defer m.lock()()
	var out []*domain.Order
	for _, o := range m.data.orders {
		if domain.IsTerminal(o.Status) {
			continue
		}
		if o.CustomerID == userID || o.IsDriver(userID) || o.IsSupplier(userID) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ---------------------------------------------------------------------------
// Offers
// ---------------------------------------------------------------------------

func (m *Memory) CreateOffer(_ context.Context, of *domain.Offer) error {
	defer m.lock()()
	if _, ok := m.data.offers[of.ID]; ok {
		return fmt.Errorf("offer %s: %w", of.ID, domain.ErrConflict)
	}
	if of.Status == domain.OfferPending {
		for _, id := range m.data.offerSeq {
			ex := m.data.offers[id]
			if ex.OrderID == of.OrderID && ex.Status == domain.OfferPending {
				return fmt.Errorf("order %s already has pending offer %s: %w", of.OrderID, ex.ID, domain.ErrConflict)
			}
		}
	}
	m.data.offers[of.ID] = of.Clone()
	m.data.offerSeq = append(m.data.offerSeq, of.ID)
	return nil
}

func (m *Memory) GetOffer(_ context.Context, id types.ID) (*domain.Offer, error) {
	defer m.lock()()
	of, ok := m.data.offers[id]
	if !ok {
		return nil, fmt.Errorf("offer %s: %w", id, domain.ErrNotFound)
	}
	return of.Clone(), nil
}

func (m *Memory) PendingOffer(_ context.Context, orderID types.ID) (*domain.Offer, error) {
	defer m.lock()()
	for _, id := range m.data.offerSeq {
		of := m.data.offers[id]
		if of.OrderID == orderID && of.Status == domain.OfferPending {
			return of.Clone(), nil
		}
	}
	return nil, fmt.Errorf("pending offer for order %s: %w", orderID, domain.ErrNotFound)
}

func (m *Memory) ListOffers(_ context.Context, orderID types.ID) ([]*domain.Offer, error) {
	defer m.lock()()
	var out []*domain.Offer
	for _, id := range m.data.offerSeq {
		if of := m.data.offers[id]; of.OrderID == orderID {
			out = append(out, of.Clone())
		}
	}
	return out, nil
}

func (m *Memory) ResolveOffer(_ context.Context, id types.ID, to domain.OfferStatus, at time.Time) (bool, error) {
	defer m.lock()()
	of, ok := m.data.offers[id]
	if !ok {
		return false, fmt.Errorf("offer %s: %w", id, domain.ErrNotFound)
	}
	if of.Status != domain.OfferPending {
		return false, nil
	}
	of.Status = to
	t := at
	of.ResolvedAt = &t
	return true, nil
}

func (m *Memory) ListDueOffers(_ context.Context, now time.Time, limit int) ([]*domain.Offer, error) {
	defer m.lock()()
	return m.filterOffers(limit, func(of *domain.Offer) bool {
		return of.Status == domain.OfferPending && !of.ExpiresAt.After(now)
	}), nil
}

func (m *Memory) ListPendingOffers(_ context.Context, limit int) ([]*domain.Offer, error) {
	defer m.lock()()
	return m.filterOffers(limit, func(of *domain.Offer) bool {
		return of.Status == domain.OfferPending
	}), nil
}

func (m *Memory) ListPendingOffersForDriver(_ context.Context, driverID types.ID) ([]*domain.Offer, error) {
	defer m.lock()()
	return m.filterOffers(0, func(of *domain.Offer) bool {
		return of.Status == domain.OfferPending && of.DriverID == driverID
	}), nil
}

func (m *Memory) filterOffers(limit int, keep func(*domain.Offer) bool) []*domain.Offer {
	var out []*domain.Offer
	for _, id := range m.data.offerSeq {
		of := m.data.offers[id]
		if !keep(of) {
			continue
		}
		out = append(out, of.Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Depot orders
// ---------------------------------------------------------------------------

func (m *Memory) CreateDepotOrder(_ context.Context, d *domain.DepotOrder) error {
	defer m.lock()()
	if _, ok := m.data.depot[d.OrderID]; ok {
		return fmt.Errorf("depot order %s: %w", d.OrderID, domain.ErrConflict)
	}
	m.data.depot[d.OrderID] = d.Clone()
	return nil
}

func (m *Memory) GetDepotOrder(_ context.Context, orderID types.ID) (*domain.DepotOrder, error) {
	defer m.lock()()
	d, ok := m.data.depot[orderID]
	if !ok {
		return nil, fmt.Errorf("depot order %s: %w", orderID, domain.ErrNotFound)
	}
	return d.Clone(), nil
}

func (m *Memory) UpdateDepotOrder(_ context.Context, d *domain.DepotOrder, from domain.DepotStatus, version int) (bool, error) {
	defer m.lock()()
	cur, ok := m.data.depot[d.OrderID]
	if !ok {
		return false, fmt.Errorf("depot order %s: %w", d.OrderID, domain.ErrNotFound)
	}
	if cur.Status != from || cur.Version != version {
		return false, nil
	}
	d.Version = version + 1
	m.data.depot[d.OrderID] = d.Clone()
	return true, nil
}

// ---------------------------------------------------------------------------
// Chat
// ---------------------------------------------------------------------------

func (m *Memory) GetOrCreateThread(_ context.Context, t *domain.ChatThread) (*domain.ChatThread, bool, error) {
	defer m.lock()()
	if id, ok := m.data.threadByOrder[t.OrderID]; ok {
		ex := *m.data.threads[id]
		return &ex, false, nil
	}
	c := *t
	m.data.threads[t.ID] = &c
	m.data.threadByOrder[t.OrderID] = t.ID
	out := c
	return &out, true, nil
}

func (m *Memory) GetThread(_ context.Context, id types.ID) (*domain.ChatThread, error) {
	defer m.lock()()
	t, ok := m.data.threads[id]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", id, domain.ErrNotFound)
	}
	c := *t
	return &c, nil
}

func (m *Memory) GetThreadByOrder(_ context.Context, orderID types.ID) (*domain.ChatThread, error) {
	defer m.lock()()
	id, ok := m.data.threadByOrder[orderID]
	if !ok {
		return nil, fmt.Errorf("thread for order %s: %w", orderID, domain.ErrNotFound)
	}
	c := *m.data.threads[id]
	return &c, nil
}

func (m *Memory) AppendMessage(_ context.Context, msg *domain.ChatMessage) error {
	defer m.lock()()
	if _, ok := m.data.threads[msg.ThreadID]; !ok {
		return fmt.Errorf("thread %s: %w", msg.ThreadID, domain.ErrNotFound)
	}
	c := *msg
	m.data.messages[msg.ThreadID] = append(m.data.messages[msg.ThreadID], &c)
	return nil
}

func (m *Memory) ListMessages(_ context.Context, threadID types.ID, limit int) ([]*domain.ChatMessage, error) {
	defer m.lock()()
	msgs := m.data.messages[threadID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*domain.ChatMessage, len(msgs))
	for i, msg := range msgs {
		c := *msg
		out[i] = &c
	}
	return out, nil
}

func (m *Memory) MarkRead(_ context.Context, threadID, readerID types.ID, at time.Time) (int, error) {
	defer m.lock()()
	n := 0
	for _, msg := range m.data.messages[threadID] {
		if msg.SenderID == readerID || msg.ReadAt != nil {
			continue
		}
		t := at
		msg.ReadAt = &t
		n++
	}
	return n, nil
}

var _ Store = (*Memory)(nil)
