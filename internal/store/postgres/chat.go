package postgres

import (
	"context"
	"time"

	"easyfuel/internal/domain"
	"easyfuel/internal/types"
)

func (s *Store) GetOrCreateThread(ctx context.Context, t *domain.ChatThread) (*domain.ChatThread, bool, error) {
	tag, err := s.q.Exec(ctx, `
        INSERT INTO chat_threads (id, order_id, customer_id, driver_id, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (order_id) DO NOTHING`,
		string(t.ID), string(t.OrderID), string(t.CustomerID), string(t.DriverID), t.CreatedAt,
	)
	if err != nil {
		return nil, false, err
	}
	created := tag.RowsAffected() == 1
	existing, err := s.GetThreadByOrder(ctx, t.OrderID)
	if err != nil {
		return nil, false, err
	}
	return existing, created, nil
}

func (s *Store) GetThread(ctx context.Context, id types.ID) (*domain.ChatThread, error) {
	row := s.q.QueryRow(ctx, `
        SELECT id, order_id, customer_id, driver_id, created_at
        FROM chat_threads WHERE id = $1`, string(id))
	t, err := scanThread(row)
	if err != nil {
		return nil, notFound(err, "thread "+string(id))
	}
	return t, nil
}

func (s *Store) GetThreadByOrder(ctx context.Context, orderID types.ID) (*domain.ChatThread, error) {
	row := s.q.QueryRow(ctx, `
        SELECT id, order_id, customer_id, driver_id, created_at
        FROM chat_threads WHERE order_id = $1`, string(orderID))
	t, err := scanThread(row)
	if err != nil {
		return nil, notFound(err, "thread for order "+string(orderID))
	}
	return t, nil
}

func (s *Store) AppendMessage(ctx context.Context, m *domain.ChatMessage) error {
	_, err := s.q.Exec(ctx, `
        INSERT INTO chat_messages (id, thread_id, sender_id, message_type, body, created_at, read_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(m.ID), string(m.ThreadID), string(m.SenderID), string(m.Type), m.Body, m.CreatedAt, m.ReadAt,
	)
	return mapWriteErr(err, "append message "+string(m.ID))
}

func (s *Store) ListMessages(ctx context.Context, threadID types.ID, limit int) ([]*domain.ChatMessage, error) {
	rows, err := s.q.Query(ctx, `
        SELECT id, thread_id, sender_id, message_type, body, created_at, read_at
        FROM (
            SELECT * FROM chat_messages
            WHERE thread_id = $1
            ORDER BY created_at DESC
            LIMIT $2
        ) recent
        ORDER BY created_at`, string(threadID), limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		var id, tid, sender, mtype string
		if err := rows.Scan(&id, &tid, &sender, &mtype, &m.Body, &m.CreatedAt, &m.ReadAt); err != nil {
			return nil, err
		}
		m.ID = types.ID(id)
		m.ThreadID = types.ID(tid)
		m.SenderID = types.ID(sender)
		m.Type = domain.MessageType(mtype)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *Store) MarkRead(ctx context.Context, threadID, readerID types.ID, at time.Time) (int, error) {
	tag, err := s.q.Exec(ctx, `
        UPDATE chat_messages
        SET read_at = $1
        WHERE thread_id = $2 AND sender_id <> $3 AND read_at IS NULL`,
		at, string(threadID), string(readerID),
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanThread(row rowScanner) (*domain.ChatThread, error) {
	var t domain.ChatThread
	var id, orderID, customerID, driverID string
	if err := row.Scan(&id, &orderID, &customerID, &driverID, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.ID = types.ID(id)
	t.OrderID = types.ID(orderID)
	t.CustomerID = types.ID(customerID)
	t.DriverID = types.ID(driverID)
	return &t, nil
}
