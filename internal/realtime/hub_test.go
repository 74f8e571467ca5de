package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"easyfuel/internal/domain"
	"easyfuel/internal/types"
)

func orderEvent() Event {
	return Event{
		OrderID: "o1",
		At:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Payload: &OrderStateChanged{
			From:       domain.OrderOffered,
			To:         domain.OrderAssigned,
			Version:    3,
			CustomerID: "c1",
			DriverID:   "d1",
			SupplierID: "s1",
			ActorType:  domain.ActorDriver,
		},
	}
}

func TestRecipients(t *testing.T) {
	tests := []struct {
		name      string
		payload   Payload
		wantUsers []types.ID
		wantRoles []string
	}{
		{"order transition", orderEvent().Payload, []types.ID{"c1", "d1", "s1"}, nil},
		{"order without driver", &OrderStateChanged{CustomerID: "c1"}, []types.ID{"c1"}, nil},
		{"offer created", &OfferCreated{OfferID: "of1", DriverID: "d2"}, []types.ID{"d2"}, nil},
		{"offer resolved", &OfferResolved{OfferID: "of1", DriverID: "d2", CustomerID: "c1"}, []types.ID{"d2"}, nil},
		{"depot", &DepotStateChanged{CustomerID: "c1", DriverID: "d1", SupplierID: "s1"}, []types.ID{"c1", "d1", "s1"}, nil},
		{"chat", &ChatMessagePosted{SenderID: "c1", RecipientID: "d1"}, []types.ID{"d1"}, nil},
		{"exhausted", &DispatchExhausted{CustomerID: "c1"}, []types.ID{"c1"}, []string{RoleAdmin}},
		{"catch up", &CatchUp{UserID: "u9"}, []types.ID{"u9"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			aud := Recipients(Event{Payload: tt.payload})
			assert.ElementsMatch(t, tt.wantUsers, aud.Users)
			assert.ElementsMatch(t, tt.wantRoles, aud.Roles)
		})
	}
}

func TestHubDeliversOnlyToAudience(t *testing.T) {
	hub := NewHub(nil)
	customer := NewSession("c1", "customer", 4)
	customerTab := NewSession("c1", "customer", 4)
	stranger := NewSession("x1", "customer", 4)
	hub.Register(customer)
	hub.Register(customerTab)
	hub.Register(stranger)

	n := hub.Deliver(orderEvent())
	assert.Equal(t, 2, n)
	assert.Len(t, customer.Outbound(), 1)
	assert.Len(t, customerTab.Outbound(), 1)
	assert.Len(t, stranger.Outbound(), 0)

	env := <-customer.Outbound()
	e, err := Decode(env)
	require.NoError(t, err)
	got, ok := e.Payload.(*OrderStateChanged)
	require.True(t, ok)
	assert.Equal(t, domain.OrderAssigned, got.To)
	assert.Equal(t, types.ID("o1"), e.OrderID)
}

func TestHubAdminRoleReceivesExhaustionOnce(t *testing.T) {
	hub := NewHub(nil)
	// An admin who is also the customer must still get one copy.
	admin := NewSession("c1", RoleAdmin, 4)
	hub.Register(admin)

	n := hub.Deliver(Event{OrderID: "o1", Payload: &DispatchExhausted{CustomerID: "c1", Attempts: 3}})
	assert.Equal(t, 1, n)
	assert.Len(t, admin.Outbound(), 1)
}

func TestHubOverflowDropsWithoutBlocking(t *testing.T) {
	hub := NewHub(nil)
	s := NewSession("c1", "customer", 1)
	hub.Register(s)

	assert.Equal(t, 1, hub.Deliver(orderEvent()))
	done := make(chan int)
	go func() { done <- hub.Deliver(orderEvent()) }()
	select {
	case n := <-done:
		assert.Equal(t, 0, n)
	case <-time.After(time.Second):
		t.Fatal("deliver blocked on a full session")
	}
}

func TestHubUnregisterAndSweep(t *testing.T) {
	hub := NewHub(nil)
	fresh := NewSession("c1", "customer", 4)
	stale := NewSession("d1", "driver", 4)
	hub.Register(fresh)
	hub.Register(stale)

	now := time.Now()
	stale.Touch(now.Add(-2 * time.Minute))
	fresh.Touch(now)

	assert.Equal(t, 1, hub.Sweep(now, time.Minute))
	assert.Equal(t, 0, hub.Connected("d1"))
	assert.Equal(t, 1, hub.Connected("c1"))
	select {
	case <-stale.Done():
	default:
		t.Fatal("stale session not closed")
	}

	hub.Unregister(fresh)
	assert.Equal(t, 0, hub.Connected("c1"))
	assert.Equal(t, 0, hub.Deliver(orderEvent()))
}

type loopbackRelay struct {
	mu   sync.Mutex
	hub  *Hub
	sent int
	fail bool
}

func (r *loopbackRelay) Publish(_ context.Context, data []byte) error {
	r.mu.Lock()
	r.sent++
	fail := r.fail
	r.mu.Unlock()
	if fail {
		return errors.New("redis down")
	}
	r.hub.DeliverRaw(data)
	return nil
}

func TestHubRelayDeliversExactlyOnce(t *testing.T) {
	hub := NewHub(nil)
	relay := &loopbackRelay{hub: hub}
	hub.SetRelay(relay)
	s := NewSession("d1", "driver", 4)
	hub.Register(s)

	hub.Publish(context.Background(), orderEvent())
	assert.Equal(t, 1, relay.sent)
	assert.Len(t, s.Outbound(), 1)

	relay.fail = true
	hub.Publish(context.Background(), orderEvent())
	assert.Len(t, s.Outbound(), 2)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	raw, err := json.Marshal(Envelope{Type: "mystery", Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)
	_, err = Decode(raw)
	assert.Error(t, err)
}

type countingVisitor struct{ seen map[EventType]int }

func (v *countingVisitor) OrderStateChanged(p *OrderStateChanged) { v.seen[p.Type()]++ }
func (v *countingVisitor) OfferCreated(p *OfferCreated)           { v.seen[p.Type()]++ }
func (v *countingVisitor) OfferResolved(p *OfferResolved)         { v.seen[p.Type()]++ }
func (v *countingVisitor) DepotStateChanged(p *DepotStateChanged) { v.seen[p.Type()]++ }
func (v *countingVisitor) ChatMessagePosted(p *ChatMessagePosted) { v.seen[p.Type()]++ }
func (v *countingVisitor) DispatchExhausted(p *DispatchExhausted) { v.seen[p.Type()]++ }
func (v *countingVisitor) CatchUp(p *CatchUp)                     { v.seen[p.Type()]++ }

func TestVisitorSeesEveryVariant(t *testing.T) {
	all := []Payload{
		&OrderStateChanged{}, &OfferCreated{}, &OfferResolved{}, &DepotStateChanged{},
		&ChatMessagePosted{}, &DispatchExhausted{}, &CatchUp{},
	}
	v := &countingVisitor{seen: map[EventType]int{}}
	for _, p := range all {
		p.Accept(v)
	}
	assert.Len(t, v.seen, len(all))
}
