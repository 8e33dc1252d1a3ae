package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/interfaces"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/middleware"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/telemetry"
)

type PaymentHandler struct {
	payments interfaces.PaymentService
}

func NewPaymentHandler(payments interfaces.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type initializePaymentRequest struct {
	EventID int64 `json:"event_id" binding:"required,gt=0"`
}

func (h *PaymentHandler) InitializePayment(c *gin.Context) {
	buyer, ok := middleware.CurrentBuyer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req initializePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.Logger.Error("Error decoding initialize request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := h.payments.InitializePayment(c.Request.Context(), buyer, req.EventID)
	if err != nil {
		respondError(c, err, "Failed to initialize payment")
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	buyer, ok := middleware.CurrentBuyer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	reference := c.Param("reference")

	outcome, err := h.payments.VerifyPayment(c.Request.Context(), buyer, reference)
	if err != nil {
		logVerifyError(reference, err)
		respondError(c, err, "Failed to verify payment")
		return
	}

	message := "Payment verified successfully"
	if outcome.AlreadyFulfilled {
		message = "Payment already verified"
	}
	c.JSON(http.StatusOK, gin.H{
		"message":                 message,
		"reference":               outcome.Reference,
		"ticket_code":             outcome.TicketCode,
		"qr_code_path":            outcome.ArtifactPath,
		"code_artifact_generated": outcome.CodeArtifactGenerated,
		"notification_sent":       outcome.NotificationSent,
	})
}

func (h *PaymentHandler) GetPaymentState(c *gin.Context) {
	buyer, ok := middleware.CurrentBuyer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	reference := c.Param("reference")

	payment, err := h.payments.GetPayment(c.Request.Context(), buyer, reference)
	if err != nil {
		respondError(c, err, "Failed to fetch payment")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reference":    payment.Reference,
		"status":       payment.Status,
		"event_id":     payment.EventID,
		"amount_minor": payment.AmountMinor,
		"currency":     payment.Currency,
		"ticket_id":    payment.TicketID,
		"paid_at":      payment.PaidAt,
		"created_at":   payment.CreatedAt,
		"updated_at":   payment.UpdatedAt,
	})
}

func (h *PaymentHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "ticketing-service",
		"gateway": h.payments.GatewayStatus(),
	})
}
