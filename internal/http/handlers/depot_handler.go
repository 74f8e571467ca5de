// README: Depot handlers: supplier and driver handover steps for depot orders.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"easyfuel/internal/http/middleware"
	"easyfuel/internal/modules/depot"
)

type DepotHandler struct {
	depot *depot.Service
}

func NewDepotHandler(svc *depot.Service) *DepotHandler {
	return &DepotHandler{depot: svc}
}

func (h *DepotHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	d, err := h.depot.Get(c.Request.Context(), id, middleware.Actor(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"depot": newDepotView(d)})
}

type depotActionReq struct {
	// EvidenceRef points at an uploaded proof of payment or signature image.
	EvidenceRef string `json:"evidence_ref"`
	Reason      string `json:"reason"`
}

// Transition applies POST /api/orders/:id/depot/:action.
func (h *DepotHandler) Transition(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	action := depot.Action(c.Param("action"))
	if !action.Valid() {
		writeError(c, http.StatusBadRequest, "bad_request", "unknown depot action")
		return
	}
	version, ok := expectedVersion(c)
	if !ok {
		return
	}
	var req depotActionReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "bad_request", "invalid json")
			return
		}
	}
	d, err := h.depot.Transition(c.Request.Context(), depot.TransitionCommand{
		OrderID:         id,
		Actor:           middleware.Actor(c),
		Action:          action,
		EvidenceRef:     req.EvidenceRef,
		Reason:          req.Reason,
		ExpectedVersion: version,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"depot": newDepotView(d)})
}
