package chat

import (
	"context"
	"strings"
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

type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Publish(_ context.Context, e realtime.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func seedOrder(t *testing.T, st *store.Memory, status domain.OrderStatus, driver types.ID) {
	t.Helper()
	o := &domain.Order{
		ID: "o1", CustomerID: "c1", FuelType: "diesel", Quantity: 200000,
		Price: domain.NewPrice(420000, 35000, 8820), Mode: domain.FulfillmentDirect,
		PaymentStatus: domain.PaymentPending, Status: status, CreatedAt: time.Now().UTC(),
	}
	if driver != "" {
		o.DriverID = &driver
	}
	require.NoError(t, st.CreateOrder(context.Background(), o))
}

func setStatus(t *testing.T, st *store.Memory, to domain.OrderStatus) {
	t.Helper()
	ctx := context.Background()
	o, err := st.GetOrder(ctx, "o1")
	require.NoError(t, err)
	from := o.Status
	o.Status = to
	ok, err := st.UpdateOrder(ctx, o, from, o.StatusVersion)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPermit(t *testing.T) {
	d := types.ID("d1")
	tests := []struct {
		name    string
		status  domain.OrderStatus
		driver  *types.ID
		user    types.ID
		allowed bool
	}{
		{"customer while assigned", domain.OrderAssigned, &d, "c1", true},
		{"driver en route", domain.OrderEnRoute, &d, "d1", true},
		{"no driver yet", domain.OrderOffered, nil, "c1", false},
		{"stranger", domain.OrderAssigned, &d, "x1", false},
		{"other driver", domain.OrderAssigned, &d, "d2", false},
		{"delivered", domain.OrderDelivered, &d, "c1", false},
		{"cancelled", domain.OrderCancelled, &d, "d1", false},
		{"refunded", domain.OrderRefunded, &d, "c1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &domain.Order{ID: "o1", CustomerID: "c1", DriverID: tt.driver, Status: tt.status}
			err := Permit(o, tt.user)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrNotAuthorized)
			}
		})
	}
}

func TestThreadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedOrder(t, st, domain.OrderAssigned, "d1")
	svc := NewService(st, nil, nil)

	first, err := svc.GetOrCreateThread(ctx, "o1", "c1")
	require.NoError(t, err)
	second, err := svc.GetOrCreateThread(ctx, "o1", "d1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, types.ID("d1"), first.DriverID)

	var wg sync.WaitGroup
	ids := make(chan types.ID, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			th, err := svc.GetOrCreateThread(ctx, "o1", "c1")
			if err == nil {
				ids <- th.ID
			}
		}()
	}
	wg.Wait()
	close(ids)
	for id := range ids {
		assert.Equal(t, first.ID, id)
	}
}

func TestThreadNeedsDriver(t *testing.T) {
	st := store.NewMemory()
	seedOrder(t, st, domain.OrderPendingDispatch, "")
	svc := NewService(st, nil, nil)

	_, err := svc.GetOrCreateThread(context.Background(), "o1", "c1")
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestSendNotifiesOtherParticipantOnly(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedOrder(t, st, domain.OrderAssigned, "d1")
	rec := &recorder{}
	svc := NewService(st, rec, nil)

	th, err := svc.GetOrCreateThread(ctx, "o1", "c1")
	require.NoError(t, err)

	msg, err := svc.Send(ctx, SendCommand{ThreadID: th.ID, SenderID: "c1", Body: "  gate code is 4411  "})
	require.NoError(t, err)
	assert.Equal(t, "gate code is 4411", msg.Body)
	assert.Equal(t, domain.MessageText, msg.Type)

	require.Len(t, rec.events, 1)
	aud := realtime.Recipients(rec.events[0])
	assert.Equal(t, []types.ID{"d1"}, aud.Users)
	assert.Equal(t, th.ID, rec.events[0].ThreadID)

	_, err = svc.Send(ctx, SendCommand{ThreadID: th.ID, SenderID: "x1", Body: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	_, err = svc.Send(ctx, SendCommand{ThreadID: th.ID, SenderID: "c1", Body: "   "})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	_, err = svc.Send(ctx, SendCommand{ThreadID: th.ID, SenderID: "c1", Body: strings.Repeat("a", MaxBodyLength+1)})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	_, err = svc.Send(ctx, SendCommand{ThreadID: th.ID, SenderID: "c1", Type: domain.MessageSystem, Body: "spoof"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	_, err = svc.Send(ctx, SendCommand{ThreadID: "missing", SenderID: "c1", Body: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSendRejectedAfterDelivery(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedOrder(t, st, domain.OrderEnRoute, "d1")
	svc := NewService(st, nil, nil)

	th, err := svc.GetOrCreateThread(ctx, "o1", "d1")
	require.NoError(t, err)
	_, err = svc.Send(ctx, SendCommand{ThreadID: th.ID, SenderID: "d1", Body: "5 minutes away"})
	require.NoError(t, err)

	setStatus(t, st, domain.OrderDelivered)

	_, err = svc.Send(ctx, SendCommand{ThreadID: th.ID, SenderID: "c1", Body: "thanks!"})
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	_, err = svc.Messages(ctx, th.ID, "c1", 0)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	_, err = svc.GetOrCreateThread(ctx, "o1", "c1")
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestMessagesAndMarkRead(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedOrder(t, st, domain.OrderAssigned, "d1")
	svc := NewService(st, nil, nil)

	th, err := svc.GetOrCreateThread(ctx, "o1", "c1")
	require.NoError(t, err)
	for _, body := range []string{"on my way", "which gate?", "north"} {
		sender := types.ID("d1")
		if body == "north" {
			sender = "c1"
		}
		_, err := svc.Send(ctx, SendCommand{ThreadID: th.ID, SenderID: sender, Body: body})
		require.NoError(t, err)
	}

	msgs, err := svc.Messages(ctx, th.ID, "c1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "on my way", msgs[0].Body)

	n, err := svc.MarkRead(ctx, th.ID, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.MarkRead(ctx, th.ID, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = svc.MarkRead(ctx, th.ID, "x1")
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
}
