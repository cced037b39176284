package gin

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/uniedit/payflow/internal/domain/payment"
	"github.com/uniedit/payflow/internal/domain/webhook"
	"github.com/uniedit/payflow/internal/port/outbound"
	apperrors "github.com/uniedit/payflow/internal/utils/errors"
)

// toAppError maps domain errors to the error shape returned to clients.
func toAppError(err error) *apperrors.AppError {
	var (
		appErr        *apperrors.AppError
		validationErr *payment.ValidationError
		providerErr   *payment.PaymentProviderError
	)

	switch {
	case errors.As(err, &appErr):
		return appErr

	case errors.As(err, &validationErr):
		return apperrors.ValidationError(validationErr.Field, validationErr.Err.Error())

	case errors.Is(err, payment.ErrPaymentNotFound):
		return apperrors.NotFound("payment")
	case errors.Is(err, webhook.ErrEventNotFound):
		return apperrors.NotFound("webhook event")

	case errors.Is(err, payment.ErrPaymentAlreadyProcessed):
		return apperrors.PaymentAlreadyProcessed(err.Error())
	case errors.Is(err, payment.ErrInvalidPaymentState):
		return apperrors.InvalidPaymentState(err.Error())
	case errors.Is(err, payment.ErrConcurrentModification):
		return apperrors.Conflict("payment was modified concurrently, retry the request")
	case errors.Is(err, webhook.ErrNotDeadLettered):
		return apperrors.Conflict("webhook event is not dead-lettered")
	case errors.Is(err, webhook.ErrReplayLimited):
		return apperrors.RateLimited("webhook event replayed too often")

	case errors.Is(err, outbound.ErrProviderUnavailable):
		return apperrors.ServiceUnavailable("payment provider unavailable")
	case errors.As(err, &providerErr):
		return apperrors.ProviderError(providerErr.Provider)

	case errors.Is(err, outbound.ErrInvalidSignature):
		return apperrors.InvalidSignature()
	case errors.Is(err, outbound.ErrMalformedEvent):
		return apperrors.BadRequest("malformed webhook payload")
	case errors.Is(err, outbound.ErrProviderNotFound):
		return apperrors.NotFound("payment provider")

	default:
		return apperrors.Internal(err)
	}
}

// handleError writes err as a JSON error response.
func handleError(c *gin.Context, err error) {
	appErr := toAppError(err)
	_ = c.Error(err)
	c.JSON(appErr.StatusCode, appErr.ToResponse())
}
