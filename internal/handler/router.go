package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/ticket-storefront/pkg/logger"
	"github.com/prohmpiriya/ticket-storefront/pkg/middleware"
	"github.com/prohmpiriya/ticket-storefront/pkg/telemetry"
)

// RouterConfig holds the handlers mounted by NewRouter
type RouterConfig struct {
	ServiceName string
	Sales       *SaleHandler
	TicketTypes *TicketTypeHandler
	Webhooks    *WebhookHandler
	Health      *HealthHandler
	// Idempotency guards POST /sales when set
	Idempotency gin.HandlerFunc
	// StripeWebhook mounts POST /webhooks/stripe
	StripeWebhook bool
	// Simulation mounts the unauthenticated POST /sales/:code/confirm and
	// /sales/:code/expire routes used to drive payments by hand
	Simulation bool
}

// NewRouter builds the gin engine with the /api/v1 routes
func NewRouter(cfg *RouterConfig) *gin.Engine {
	log := logger.Get()

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		telemetry.TracingMiddleware(cfg.ServiceName),
		middleware.Logger(log),
	)

	if cfg.Health != nil {
		router.GET("/health", cfg.Health.Health)
		router.GET("/ready", cfg.Health.Ready)
	}

	v1 := router.Group("/api/v1")
	{
		sales := v1.Group("/sales")
		create := []gin.HandlerFunc{cfg.Sales.CreateSale}
		if cfg.Idempotency != nil {
			create = append([]gin.HandlerFunc{cfg.Idempotency}, create...)
		}
		sales.POST("", create...)
		sales.GET("/:code", cfg.Sales.GetSale)
		if cfg.Simulation {
			sales.POST("/:code/confirm", cfg.Sales.ConfirmSale)
			sales.POST("/:code/expire", cfg.Sales.ExpireSale)
		}
		sales.POST("/:code/cancel", cfg.Sales.CancelSale)

		ticketTypes := v1.Group("/ticket-types")
		ticketTypes.POST("", cfg.TicketTypes.Create)
		ticketTypes.GET("/:id", cfg.TicketTypes.Get)
		ticketTypes.PUT("/:id", cfg.TicketTypes.Update)
		ticketTypes.DELETE("/:id", cfg.TicketTypes.Delete)
		v1.GET("/events/:event_id/ticket-types", cfg.TicketTypes.ListByEvent)

		webhooks := v1.Group("/webhooks")
		webhooks.POST("/payments", cfg.Webhooks.HandlePaymentCallback)
		if cfg.StripeWebhook {
			webhooks.POST("/stripe", cfg.Webhooks.HandleStripeWebhook)
		}
	}

	return router
}
