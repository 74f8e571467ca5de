// README: Chat handlers; every call goes through the order-bound chat gate.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"easyfuel/internal/domain"
	"easyfuel/internal/http/middleware"
	"easyfuel/internal/modules/chat"
	"easyfuel/internal/types"
)

type ChatHandler struct {
	chat *chat.Service
}

func NewChatHandler(svc *chat.Service) *ChatHandler {
	return &ChatHandler{chat: svc}
}

// Thread returns the order's chat thread, opening it on first use.
func (h *ChatHandler) Thread(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := h.chat.GetOrCreateThread(c.Request.Context(), id, types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"thread": threadView{
		ID:         t.ID,
		OrderID:    t.OrderID,
		CustomerID: t.CustomerID,
		DriverID:   t.DriverID,
		CreatedAt:  t.CreatedAt,
	}})
}

type sendReq struct {
	Type string `json:"type"`
	Body string `json:"body" binding:"required"`
}

func (h *ChatHandler) Send(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req sendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "bad_request", "body is required")
		return
	}
	typ := domain.MessageType(req.Type)
	if typ == "" {
		typ = domain.MessageText
	}
	msg, err := h.chat.Send(c.Request.Context(), chat.SendCommand{
		ThreadID: id,
		SenderID: types.ID(middleware.CallerUID(c)),
		Type:     typ,
		Body:     req.Body,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"message": newMessageView(msg)})
}

func (h *ChatHandler) Messages(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "bad_request", "invalid limit")
			return
		}
		limit = n
	}
	msgs, err := h.chat.Messages(c.Request.Context(), id, types.ID(middleware.CallerUID(c)), limit)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]messageView, len(msgs))
	for i, m := range msgs {
		out[i] = newMessageView(m)
	}
	writeJSON(c, http.StatusOK, gin.H{"messages": out})
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	n, err := h.chat.MarkRead(c.Request.Context(), id, types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"marked": n})
}
