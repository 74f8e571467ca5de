// README: Driver handlers for listing and resolving dispatch offers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"easyfuel/internal/domain"
	"easyfuel/internal/http/middleware"
	"easyfuel/internal/modules/dispatch"
	"easyfuel/internal/types"
)

type DriverHandler struct {
	dispatch *dispatch.Engine
}

func NewDriverHandler(engine *dispatch.Engine) *DriverHandler {
	return &DriverHandler{dispatch: engine}
}

func requireDriver(c *gin.Context) bool {
	if middleware.CallerRole(c) != domain.ActorDriver {
		writeError(c, http.StatusForbidden, "not_authorized", "driver role required")
		return false
	}
	return true
}

// Offers lists the caller's pending offers.
func (h *DriverHandler) Offers(c *gin.Context) {
	if !requireDriver(c) {
		return
	}
	offers, err := h.dispatch.PendingForDriver(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]offerView, len(offers))
	for i, of := range offers {
		out[i] = newOfferView(of)
	}
	writeJSON(c, http.StatusOK, gin.H{"offers": out})
}

func (h *DriverHandler) Accept(c *gin.Context) { h.resolve(c, domain.DecisionAccept) }

func (h *DriverHandler) Reject(c *gin.Context) { h.resolve(c, domain.DecisionReject) }

func (h *DriverHandler) resolve(c *gin.Context, decision domain.Decision) {
	if !requireDriver(c) {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	of, err := h.dispatch.Resolve(c.Request.Context(), id, types.ID(middleware.CallerUID(c)), decision)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"offer": newOfferView(of)})
}
