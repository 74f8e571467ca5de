// README: Process-local registry of open sessions and non-blocking fan-out.
package realtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"easyfuel/internal/types"
)

const DefaultSessionBuffer = 32

// Publisher is what state machines call after a committed mutation. It must not block.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type discard struct{}

func (discard) Publish(context.Context, Event) {}

// Discard drops every event.
var Discard Publisher = discard{}

// Relay forwards encoded envelopes to every instance, this one included.
type Relay interface {
	Publish(ctx context.Context, data []byte) error
}

type Session struct {
	UserID types.ID
	Role   string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	lastSeen  atomic.Int64
}

func NewSession(userID types.ID, role string, buffer int) *Session {
	if buffer <= 0 {
		buffer = DefaultSessionBuffer
	}
	s := &Session{
		UserID: userID,
		Role:   role,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
	s.Touch(time.Now())
	return s
}

func (s *Session) Outbound() <-chan []byte { return s.send }
func (s *Session) Done() <-chan struct{}   { return s.done }

// Touch records liveness (pong or inbound frame).
func (s *Session) Touch(at time.Time) { s.lastSeen.Store(at.UnixNano()) }

func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

func (s *Session) enqueue(msg []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

type Hub struct {
	mu     sync.RWMutex
	byUser map[types.ID]map[*Session]struct{}
	byRole map[string]map[*Session]struct{}
	relay  Relay
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		byUser: make(map[types.ID]map[*Session]struct{}),
		byRole: make(map[string]map[*Session]struct{}),
		logger: logger.With("component", "realtime.hub"),
	}
}

// SetRelay switches Publish to cross-instance mode. Local delivery then happens
// only when the relay echoes the message back through DeliverRaw.
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	h.relay = r
	h.mu.Unlock()
}

func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	add(h.byUser, s.UserID, s)
	if s.Role != "" {
		add(h.byRole, s.Role, s)
	}
	h.logger.Debug("session registered", "user_id", s.UserID, "role", s.Role)
}

func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	remove(h.byUser, s.UserID, s)
	remove(h.byRole, s.Role, s)
	h.mu.Unlock()
	s.Close()
}

func (h *Hub) Connected(userID types.ID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}

func (h *Hub) Publish(ctx context.Context, e Event) {
	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()
	if relay == nil {
		h.Deliver(e)
		return
	}
	data, err := Encode(e)
	if err != nil {
		h.logger.Error("encode event", "type", e.Payload.Type(), "err", err)
		return
	}
	if err := relay.Publish(ctx, data); err != nil {
		h.logger.Warn("relay publish failed, delivering locally", "type", e.Payload.Type(), "order_id", e.OrderID, "err", err)
		h.deliverEncoded(e, data)
	}
}

// Deliver pushes e to every local session in its audience and returns how many accepted it.
func (h *Hub) Deliver(e Event) int {
	data, err := Encode(e)
	if err != nil {
		h.logger.Error("encode event", "type", e.Payload.Type(), "err", err)
		return 0
	}
	return h.deliverEncoded(e, data)
}

// DeliverRaw is the relay subscription callback.
func (h *Hub) DeliverRaw(data []byte) int {
	e, err := Decode(data)
	if err != nil {
		h.logger.Warn("drop undecodable relay message", "err", err)
		return 0
	}
	return h.deliverEncoded(e, data)
}

func (h *Hub) deliverEncoded(e Event, data []byte) int {
	aud := Recipients(e)
	targets := make(map[*Session]struct{})

	h.mu.RLock()
	for _, u := range aud.Users {
		for s := range h.byUser[u] {
			targets[s] = struct{}{}
		}
	}
	for _, r := range aud.Roles {
		for s := range h.byRole[r] {
			targets[s] = struct{}{}
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for s := range targets {
		if s.enqueue(data) {
			delivered++
			continue
		}
		h.logger.Warn("session buffer full, event dropped",
			"user_id", s.UserID, "type", e.Payload.Type(), "order_id", e.OrderID)
	}
	return delivered
}

// Sweep drops sessions not seen since now-timeout.
func (h *Hub) Sweep(now time.Time, timeout time.Duration) int {
	var stale []*Session
	h.mu.RLock()
	for _, set := range h.byUser {
		for s := range set {
			if now.Sub(s.LastSeen()) > timeout {
				stale = append(stale, s)
			}
		}
	}
	h.mu.RUnlock()

	for _, s := range stale {
		h.Unregister(s)
		h.logger.Info("session heartbeat timeout", "user_id", s.UserID)
	}
	return len(stale)
}

func (h *Hub) RunHeartbeat(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.Sweep(now, timeout)
		}
	}
}

func add[K comparable](m map[K]map[*Session]struct{}, k K, s *Session) {
	set, ok := m[k]
	if !ok {
		set = make(map[*Session]struct{})
		m[k] = set
	}
	set[s] = struct{}{}
}

func remove[K comparable](m map[K]map[*Session]struct{}, k K, s *Session) {
	set, ok := m[k]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(m, k)
	}
}
