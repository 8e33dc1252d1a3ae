package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/models"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/telemetry"
)

// respondError maps domain errors to HTTP responses. Unknown errors are
// reported with the fallback message only.
func respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, models.ErrGatewayUnavailable):
		c.Header("Retry-After", "60")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Payment service temporarily unavailable"})
	case errors.Is(err, models.ErrCapacityExceeded):
		c.JSON(http.StatusConflict, gin.H{"error": "Event sold out"})
	case errors.Is(err, models.ErrProviderRejected):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "Payment was not successful"})
	case errors.Is(err, models.ErrPaymentNotSettled):
		c.JSON(http.StatusAccepted, gin.H{"message": "Payment is still being processed"})
	case errors.Is(err, models.ErrPaymentNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": "Payment can no longer be verified"})
	case errors.Is(err, models.ErrLockTimeout):
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Payment is being verified, try again shortly"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

// verifyLogLevel keeps expected payment outcomes out of the error stream.
func verifyLogLevel(err error) zapcore.Level {
	switch {
	case errors.Is(err, models.ErrPaymentNotSettled):
		return zapcore.InfoLevel
	case errors.Is(err, models.ErrProviderRejected),
		errors.Is(err, models.ErrCapacityExceeded),
		errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrPaymentNotPending),
		errors.Is(err, models.ErrGatewayUnavailable),
		errors.Is(err, models.ErrLockTimeout):
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func logVerifyError(reference string, err error) {
	if ce := telemetry.Logger.Check(verifyLogLevel(err), "Payment verification did not issue a ticket"); ce != nil {
		ce.Write(zap.String("reference", reference), zap.Error(err))
	}
}
