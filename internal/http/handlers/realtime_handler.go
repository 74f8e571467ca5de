// README: Realtime handlers: WebSocket upgrade and the reconciliation snapshot.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"easyfuel/internal/domain"
	"easyfuel/internal/http/middleware"
	"easyfuel/internal/modules/dispatch"
	"easyfuel/internal/modules/order"
	"easyfuel/internal/realtime"
	"easyfuel/internal/types"
)

type RealtimeHandler struct {
	ws       *realtime.WSServer
	order    *order.Service
	dispatch *dispatch.Engine
	logger   *slog.Logger
}

func NewRealtimeHandler(ws *realtime.WSServer, orders *order.Service, engine *dispatch.Engine, logger *slog.Logger) *RealtimeHandler {
	return &RealtimeHandler{ws: ws, order: orders, dispatch: engine, logger: logger.With("component", "http.realtime")}
}

// Snapshot is the authoritative state a client loads after (re)connecting,
// before it trusts pushed events.
func (h *RealtimeHandler) Snapshot(c *gin.Context) {
	ctx := c.Request.Context()
	uid := types.ID(middleware.CallerUID(c))
	orders, err := h.order.ListForParty(ctx, uid)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	resp := gin.H{
		"server_time": time.Now().UTC(),
		"orders":      orderViews(orders),
	}
	if middleware.CallerRole(c) == domain.ActorDriver {
		offers, err := h.dispatch.PendingForDriver(ctx, uid)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		views := make([]offerView, len(offers))
		for i, of := range offers {
			views[i] = newOfferView(of)
		}
		resp["offers"] = views
	}
	writeJSON(c, http.StatusOK, resp)
}

// Connect upgrades to a WebSocket and blocks for the session's lifetime.
func (h *RealtimeHandler) Connect(c *gin.Context) {
	uid := types.ID(middleware.CallerUID(c))
	if err := h.ws.Serve(c.Writer, c.Request, uid, middleware.CallerRole(c)); err != nil {
		h.logger.Debug("websocket session ended", "user_id", uid, "err", err)
	}
}
