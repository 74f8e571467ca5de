// README: Order handlers: create, read, history, lifecycle steps, payment and dispatch.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"easyfuel/internal/domain"
	"easyfuel/internal/http/middleware"
	"easyfuel/internal/modules/dispatch"
	"easyfuel/internal/modules/order"
	"easyfuel/internal/types"
)

type OrderHandler struct {
	order    *order.Service
	dispatch *dispatch.Engine
}

func NewOrderHandler(svc *order.Service, engine *dispatch.Engine) *OrderHandler {
	return &OrderHandler{order: svc, dispatch: engine}
}

type createOrderReq struct {
	SupplierID    string    `json:"supplier_id"`
	FuelType      string    `json:"fuel_type" binding:"required"`
	Litres        string    `json:"litres" binding:"required"`
	Pickup        pointView `json:"pickup"`
	Dropoff       pointView `json:"dropoff"`
	Mode          string    `json:"mode"`
	PaymentMethod string    `json:"payment_method"`
	// Dispatch starts the offer sequence right after creation.
	Dispatch bool `json:"dispatch"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	if middleware.CallerRole(c) != domain.ActorCustomer {
		writeError(c, http.StatusForbidden, "not_authorized", "only customers place orders")
		return
	}
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}
	if req.SupplierID != "" && !isValidID(req.SupplierID) {
		writeError(c, http.StatusBadRequest, "bad_request", "invalid supplier_id")
		return
	}
	ctx := c.Request.Context()
	o, err := h.order.Create(ctx, order.CreateCommand{
		CustomerID:    types.ID(middleware.CallerUID(c)),
		SupplierID:    types.ID(req.SupplierID),
		FuelType:      req.FuelType,
		Litres:        req.Litres,
		Pickup:        req.Pickup.point(),
		Dropoff:       req.Dropoff.point(),
		Mode:          domain.FulfillmentMode(req.Mode),
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if !req.Dispatch {
		writeJSON(c, http.StatusCreated, gin.H{"order": newOrderView(o)})
		return
	}
	offer, err := h.dispatch.RequestDispatch(ctx, o.ID, middleware.Actor(c))
	resp := gin.H{}
	if err != nil && !errors.Is(err, domain.ErrExhausted) {
		writeDomainError(c, err)
		return
	}
	if offer != nil {
		resp["offer"] = newOfferView(offer)
	} else {
		resp["dispatch"] = "exhausted"
	}
	h.respondWithOrder(ctx, c, o.ID, http.StatusCreated, resp)
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := h.order.View(c.Request.Context(), id, middleware.Actor(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order": newOrderView(o)})
}

func (h *OrderHandler) History(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	events, err := h.order.History(c.Request.Context(), id, middleware.Actor(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]orderEventView, len(events))
	for i, e := range events {
		out[i] = orderEventView{From: string(e.FromStatus), To: string(e.ToStatus), ActorType: e.ActorType, ActorID: e.ActorID, At: e.CreatedAt}
	}
	writeJSON(c, http.StatusOK, gin.H{"events": out})
}

func (h *OrderHandler) List(c *gin.Context) {
	orders, err := h.order.ListForParty(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": orderViews(orders)})
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	version, ok := expectedVersion(c)
	if !ok {
		return
	}
	var req cancelReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "bad_request", "invalid json")
			return
		}
	}
	o, err := h.order.Cancel(c.Request.Context(), order.CancelCommand{
		OrderID:         id,
		Actor:           middleware.Actor(c),
		Reason:          req.Reason,
		ExpectedVersion: version,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order": newOrderView(o)})
}

func (h *OrderHandler) PickUp(c *gin.Context)        { h.step(c, h.order.PickUp) }
func (h *OrderHandler) StartRoute(c *gin.Context)    { h.step(c, h.order.StartRoute) }
func (h *OrderHandler) Deliver(c *gin.Context)       { h.step(c, h.order.Deliver) }
func (h *OrderHandler) RecordPayment(c *gin.Context) { h.step(c, h.order.RecordPayment) }
func (h *OrderHandler) Refund(c *gin.Context)        { h.step(c, h.order.Refund) }

func (h *OrderHandler) step(c *gin.Context, fn func(context.Context, order.TransitionCommand) (*domain.Order, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	version, ok := expectedVersion(c)
	if !ok {
		return
	}
	o, err := fn(c.Request.Context(), order.TransitionCommand{
		OrderID:         id,
		Actor:           middleware.Actor(c),
		ExpectedVersion: version,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order": newOrderView(o)})
}

// Dispatch starts or restarts the offer sequence. Exhaustion answers 202 with the order back in pending_dispatch.
func (h *OrderHandler) Dispatch(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	offer, err := h.dispatch.RequestDispatch(ctx, id, middleware.Actor(c))
	if errors.Is(err, domain.ErrExhausted) {
		h.respondWithOrder(ctx, c, id, http.StatusAccepted, gin.H{"dispatch": "exhausted", "code": "exhausted"})
		return
	}
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"offer": newOfferView(offer)})
}

func (h *OrderHandler) respondWithOrder(ctx context.Context, c *gin.Context, id types.ID, status int, resp gin.H) {
	o, err := h.order.Get(ctx, id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	resp["order"] = newOrderView(o)
	writeJSON(c, status, resp)
}
