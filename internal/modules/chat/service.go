// README: Chat service: one lazily created thread per order, gated on every call.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"easyfuel/internal/domain"
	"easyfuel/internal/realtime"
	"easyfuel/internal/store"
	"easyfuel/internal/types"
)

const (
	MaxBodyLength       = 4000
	DefaultHistoryLimit = 100
)

type SendCommand struct {
	ThreadID types.ID
	SenderID types.ID
	Type     domain.MessageType
	Body     string
}

type Service struct {
	store  store.Store
	events realtime.Publisher
	logger *slog.Logger
	now    func() time.Time
}

func NewService(st store.Store, events realtime.Publisher, logger *slog.Logger) *Service {
	if events == nil {
		events = realtime.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		events: events,
		logger: logger.With("component", "chat"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) GetOrCreateThread(ctx context.Context, orderID, requester types.ID) (*domain.ChatThread, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := Permit(o, requester); err != nil {
		return nil, err
	}
	t, created, err := s.store.GetOrCreateThread(ctx, &domain.ChatThread{
		ID:         types.ID(uuid.NewString()),
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		DriverID:   *o.DriverID,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("chat thread created", "thread_id", t.ID, "order_id", o.ID)
	}
	return t, nil
}

func (s *Service) Send(ctx context.Context, cmd SendCommand) (*domain.ChatMessage, error) {
	if cmd.Type == "" {
		cmd.Type = domain.MessageText
	}
	if !cmd.Type.Valid() || cmd.Type == domain.MessageSystem {
		return nil, fmt.Errorf("message type %q: %w", cmd.Type, domain.ErrBadRequest)
	}
	body := strings.TrimSpace(cmd.Body)
	if body == "" || utf8.RuneCountInString(body) > MaxBodyLength {
		return nil, fmt.Errorf("message body must be 1-%d characters: %w", MaxBodyLength, domain.ErrBadRequest)
	}

	var t *domain.ChatThread
	msg := &domain.ChatMessage{
		ID:        types.ID(uuid.NewString()),
		ThreadID:  cmd.ThreadID,
		SenderID:  cmd.SenderID,
		Type:      cmd.Type,
		Body:      body,
		CreatedAt: s.now(),
	}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		t, err = s.gate(ctx, tx, cmd.ThreadID, cmd.SenderID)
		if err != nil {
			return err
		}
		return tx.AppendMessage(ctx, msg)
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(ctx, realtime.Event{OrderID: t.OrderID, ThreadID: t.ID, At: msg.CreatedAt, Payload: &realtime.ChatMessagePosted{
		MessageID:   msg.ID,
		SenderID:    msg.SenderID,
		RecipientID: t.Other(msg.SenderID),
		MessageType: msg.Type,
		Body:        msg.Body,
	}})
	return msg, nil
}

func (s *Service) Messages(ctx context.Context, threadID, requester types.ID, limit int) ([]*domain.ChatMessage, error) {
	if _, err := s.gate(ctx, s.store, threadID, requester); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.store.ListMessages(ctx, threadID, limit)
}

func (s *Service) MarkRead(ctx context.Context, threadID, reader types.ID) (int, error) {
	if _, err := s.gate(ctx, s.store, threadID, reader); err != nil {
		return 0, err
	}
	return s.store.MarkRead(ctx, threadID, reader, s.now())
}

// gate loads the thread and re-checks the order at call time.
func (s *Service) gate(ctx context.Context, tx store.Tx, threadID, userID types.ID) (*domain.ChatThread, error) {
	t, err := tx.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	o, err := tx.GetOrder(ctx, t.OrderID)
	if err != nil {
		return nil, err
	}
	if err := Permit(o, userID); err != nil {
		return nil, err
	}
	return t, nil
}
