// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"easyfuel/internal/http/handlers"
	"easyfuel/internal/http/middleware"
	"easyfuel/internal/infra"
	"easyfuel/internal/modules/chat"
	"easyfuel/internal/modules/depot"
	"easyfuel/internal/modules/dispatch"
	"easyfuel/internal/modules/order"
	"easyfuel/internal/realtime"
)

type RouterDeps struct {
	Order    *order.Service
	Dispatch *dispatch.Engine
	Depot    *depot.Service
	Chat     *chat.Service
	Drivers  handlers.DriverPool
	WS       *realtime.WSServer
	Verifier infra.TokenVerifier
	Logger   *slog.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Logger), middleware.Logging(deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	orderHandler := handlers.NewOrderHandler(deps.Order, deps.Dispatch)
	api.POST("/orders", orderHandler.Create)
	api.GET("/orders", orderHandler.List)
	api.GET("/orders/:id", orderHandler.Get)
	api.GET("/orders/:id/history", orderHandler.History)
	api.POST("/orders/:id/dispatch", orderHandler.Dispatch)
	api.POST("/orders/:id/cancel", orderHandler.Cancel)
	api.POST("/orders/:id/pickup", orderHandler.PickUp)
	api.POST("/orders/:id/start-route", orderHandler.StartRoute)
	api.POST("/orders/:id/deliver", orderHandler.Deliver)
	api.POST("/orders/:id/payment", orderHandler.RecordPayment)
	api.POST("/orders/:id/refund", orderHandler.Refund)

	depotHandler := handlers.NewDepotHandler(deps.Depot)
	api.GET("/orders/:id/depot", depotHandler.Get)
	api.POST("/orders/:id/depot/:action", depotHandler.Transition)

	chatHandler := handlers.NewChatHandler(deps.Chat)
	api.POST("/orders/:id/chat", chatHandler.Thread)
	api.GET("/chat/threads/:id/messages", chatHandler.Messages)
	api.POST("/chat/threads/:id/messages", chatHandler.Send)
	api.POST("/chat/threads/:id/read", chatHandler.MarkRead)

	driverHandler := handlers.NewDriverHandler(deps.Dispatch)
	api.GET("/drivers/me/offers", driverHandler.Offers)
	api.POST("/offers/:id/accept", driverHandler.Accept)
	api.POST("/offers/:id/reject", driverHandler.Reject)

	locationHandler := handlers.NewLocationHandler(deps.Drivers)
	api.PUT("/drivers/me/location", locationHandler.Update)
	api.DELETE("/drivers/me/availability", locationHandler.GoOffline)

	realtimeHandler := handlers.NewRealtimeHandler(deps.WS, deps.Order, deps.Dispatch, deps.Logger)
	api.GET("/me/snapshot", realtimeHandler.Snapshot)
	r.GET("/ws", middleware.AuthUpgrade(deps.Verifier), realtimeHandler.Connect)

	return r
}
