package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/pkg/logger"
	"github.com/prohmpiriya/ticket-storefront/pkg/response"
	"go.uber.org/zap"
)

// handleError converts domain errors to HTTP responses
func handleError(c *gin.Context, err error) {
	var (
		validation   *domain.ValidationError
		insufficient *domain.InsufficientInventoryError
		declined     *domain.PaymentDeclinedError
	)

	switch {
	case errors.As(err, &validation):
		response.Error(c, http.StatusUnprocessableEntity, "VALIDATION_FAILED", validation.Error(), map[string]interface{}{
			"field":  validation.Field,
			"reason": validation.Reason,
		})
	case errors.Is(err, domain.ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.As(err, &insufficient):
		response.Error(c, http.StatusConflict, "INSUFFICIENT_INVENTORY", err.Error(), map[string]interface{}{
			"available": insufficient.Available,
		})
	case errors.As(err, &declined):
		details := map[string]interface{}{"reason": declined.Reason}
		if declined.Code != "" {
			details["decline_code"] = declined.Code
		}
		response.Error(c, http.StatusPaymentRequired, "PAYMENT_DECLINED", "payment declined", details)
	case errors.Is(err, domain.ErrConcurrentModification):
		response.Error(c, http.StatusConflict, "CONCURRENT_MODIFICATION", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidTransition):
		response.Error(c, http.StatusConflict, "INVALID_TRANSITION", err.Error(), nil)
	case errors.Is(err, domain.ErrCapacityBelowReserved):
		response.Error(c, http.StatusConflict, "CAPACITY_BELOW_RESERVED", err.Error(), nil)
	case errors.Is(err, domain.ErrTicketTypeInUse):
		response.Error(c, http.StatusConflict, "TICKET_TYPE_IN_USE", err.Error(), nil)
	case errors.Is(err, domain.ErrInfrastructure):
		logger.Get().ErrorContext(c.Request.Context(), "Infrastructure failure", zap.Error(err))
		// the cause stays in the logs
		response.Error(c, http.StatusServiceUnavailable, "INFRASTRUCTURE_ERROR", "service temporarily unavailable", nil)
	default:
		logger.Get().ErrorContext(c.Request.Context(), "Unhandled error", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal Server Error", nil)
	}
}

// badRequest answers a body that could not be decoded
func badRequest(c *gin.Context, err error) {
	response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", map[string]interface{}{
		"error": err.Error(),
	})
}
