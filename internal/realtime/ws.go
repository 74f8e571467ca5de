package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"easyfuel/internal/types"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 25 * time.Second
	maxInbound = 4096
)

// ActiveOrders lists the orders a user should reconcile on connect.
type ActiveOrders interface {
	ActiveOrderIDs(ctx context.Context, userID types.ID) ([]types.ID, error)
}

type WSServer struct {
	hub      *Hub
	orders   ActiveOrders
	upgrader websocket.Upgrader
	buffer   int
}

func NewWSServer(hub *Hub, orders ActiveOrders, buffer int) *WSServer {
	return &WSServer{
		hub:    hub,
		orders: orders,
		buffer: buffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Serve upgrades the request and blocks until the connection closes. The
// first frame written is always a catch_up event.
func (s *WSServer) Serve(w http.ResponseWriter, r *http.Request, userID types.ID, role string) error {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := r.Context()
	sess := NewSession(userID, role, s.buffer)

	var active []types.ID
	if s.orders != nil {
		active, err = s.orders.ActiveOrderIDs(ctx, userID)
		if err != nil {
			s.hub.logger.Warn("catch-up order list failed", "user_id", userID, "err", err)
		}
	}
	hello, err := Encode(Event{
		At:      time.Now().UTC(),
		Payload: &CatchUp{UserID: userID, ActiveOrders: active},
	})
	if err != nil {
		return err
	}
	sess.send <- hello

	s.hub.Register(sess)
	defer s.hub.Unregister(sess)

	go s.readPump(conn, sess)
	return s.writePump(conn, sess)
}

func (s *WSServer) readPump(conn *websocket.Conn, sess *Session) {
	defer sess.Close()
	conn.SetReadLimit(maxInbound)
	conn.SetPongHandler(func(string) error {
		sess.Touch(time.Now())
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		sess.Touch(time.Now())
	}
}

func (s *WSServer) writePump(conn *websocket.Conn, sess *Session) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-sess.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return nil
		case msg := <-sess.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}
