package gin

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/uniedit/payflow/internal/domain/webhook"
	"github.com/uniedit/payflow/internal/port/inbound"
	apperrors "github.com/uniedit/payflow/internal/utils/errors"
)

// maxWebhookBodyBytes bounds the size of a provider notification.
const maxWebhookBodyBytes = 1 << 20

// webhookAdapter implements inbound.WebhookHttpPort.
type webhookAdapter struct {
	domain webhook.WebhookDomain
}

// NewWebhookAdapter creates a new webhook HTTP adapter.
func NewWebhookAdapter(domain webhook.WebhookDomain) inbound.WebhookHttpPort {
	return &webhookAdapter{domain: domain}
}

// RegisterWebhookRoutes registers webhook routes.
func RegisterWebhookRoutes(r *gin.RouterGroup, adapter inbound.WebhookHttpPort, middleware ...gin.HandlerFunc) {
	webhooks := r.Group("/webhooks", middleware...)
	webhooks.POST("/:provider", adapter.HandleWebhook)
}

// HandleWebhook acknowledges every stored notification with 200 so the
// provider stops redelivering; processing failures are retried internally.
func (a *webhookAdapter) HandleWebhook(c *gin.Context) {
	provider := strings.ToLower(c.Param("provider"))

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes+1))
	if err != nil || len(payload) == 0 {
		handleError(c, apperrors.BadRequest("request body is required"))
		return
	}
	if len(payload) > maxWebhookBodyBytes {
		handleError(c, apperrors.NewAppError("PAYLOAD_TOO_LARGE", "request body too large", http.StatusRequestEntityTooLarge, apperrors.ErrBadRequest))
		return
	}

	signature, err := a.domain.ExtractSignature(provider, requestHeaders(c), payload)
	if err != nil {
		handleError(c, err)
		return
	}
	if signature == "" {
		handleError(c, apperrors.BadRequest("missing webhook signature"))
		return
	}

	event, err := a.domain.Receive(c.Request.Context(), provider, payload, signature)
	if err != nil {
		// Storage failures answer 500 so the provider redelivers.
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"event_id": event.ExternalEventID,
	})
}

// Compile-time check
var _ inbound.WebhookHttpPort = (*webhookAdapter)(nil)
