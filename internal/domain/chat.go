// README: Order-bound chat thread and messages.
package domain

import (
	"time"

	"easyfuel/internal/types"
)

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageSystem:
		return true
	}
	return false
}

// ChatThread is unique per order and scoped to its customer and assigned driver.
type ChatThread struct {
	ID         types.ID
	OrderID    types.ID
	CustomerID types.ID
	DriverID   types.ID
	CreatedAt  time.Time
}

func (t *ChatThread) Other(userID types.ID) types.ID {
	if userID == t.CustomerID {
		return t.DriverID
	}
	return t.CustomerID
}

// ChatMessage is immutable except for the read flag.
type ChatMessage struct {
	ID        types.ID
	ThreadID  types.ID
	SenderID  types.ID
	Type      MessageType
	Body      string
	CreatedAt time.Time
	ReadAt    *time.Time
}

func (m *ChatMessage) Read() bool { return m.ReadAt != nil }
