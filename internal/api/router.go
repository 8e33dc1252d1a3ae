package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/handlers"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/interfaces"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/middleware"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/telemetry"
)

func NewRouter(
	payments interfaces.PaymentService,
	tickets interfaces.TicketService,
	jwtSecret []byte,
	limiter *middleware.RateLimiter,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	paymentHandler := handlers.NewPaymentHandler(payments)
	ticketHandler := handlers.NewTicketHandler(tickets)

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check, including payment gateway circuit state
	r.GET("/health", paymentHandler.Health)

	public := r.Group("/")
	if limiter != nil {
		public.Use(limiter.Middleware())
	}
	public.GET("/events/:id", ticketHandler.GetEvent)

	authed := public.Group("/")
	authed.Use(middleware.Auth(jwtSecret))

	// Payment routes
	authed.POST("/payments/initialize", paymentHandler.InitializePayment)
	authed.GET("/payments/verify/:reference", paymentHandler.VerifyPayment)
	authed.GET("/payments/:reference", paymentHandler.GetPaymentState)

	// Ticket routes
	authed.GET("/tickets/my-tickets", ticketHandler.ListMyTickets)
	authed.GET("/tickets/:code", ticketHandler.GetTicket)

	return r
}
