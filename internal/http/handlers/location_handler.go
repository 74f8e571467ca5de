// README: Driver availability handlers backed by the dispatch candidate pool.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"easyfuel/internal/http/middleware"
	"easyfuel/internal/types"
)

// DriverPool tracks which drivers can receive offers and where they are.
type DriverPool interface {
	SetAvailable(ctx context.Context, driverID types.ID, at types.Point) error
	SetUnavailable(ctx context.Context, driverID types.ID) error
}

type LocationHandler struct {
	pool DriverPool
}

func NewLocationHandler(pool DriverPool) *LocationHandler {
	return &LocationHandler{pool: pool}
}

type locationReq struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

// Update reports the caller's position and marks them available for offers.
func (h *LocationHandler) Update(c *gin.Context) {
	if !requireDriver(c) {
		return
	}
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "bad_request", "lat and lng are required")
		return
	}
	if *req.Lat < -85.05112878 || *req.Lat > 85.05112878 || *req.Lng < -180 || *req.Lng > 180 {
		writeError(c, http.StatusBadRequest, "bad_request", "coordinates out of range")
		return
	}
	uid := types.ID(middleware.CallerUID(c))
	if err := h.pool.SetAvailable(c.Request.Context(), uid, types.Point{Lat: *req.Lat, Lng: *req.Lng}); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "available"})
}

// GoOffline removes the caller from the candidate pool.
func (h *LocationHandler) GoOffline(c *gin.Context) {
	if !requireDriver(c) {
		return
	}
	if err := h.pool.SetUnavailable(c.Request.Context(), types.ID(middleware.CallerUID(c))); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "offline"})
}
