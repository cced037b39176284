package gin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/uniedit/payflow/internal/domain/webhook"
	"github.com/uniedit/payflow/internal/port/inbound"
	apperrors "github.com/uniedit/payflow/internal/utils/errors"
	"github.com/uniedit/payflow/internal/utils/pagination"
)

type deadLetterQuery struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

// deadLetterAdapter implements inbound.DeadLetterHttpPort.
type deadLetterAdapter struct {
	domain webhook.WebhookDomain
}

// NewDeadLetterAdapter creates a new dead-letter admin adapter.
func NewDeadLetterAdapter(domain webhook.WebhookDomain) inbound.DeadLetterHttpPort {
	return &deadLetterAdapter{domain: domain}
}

// RegisterDeadLetterRoutes registers dead-letter admin routes behind auth.
func RegisterDeadLetterRoutes(r *gin.RouterGroup, adapter inbound.DeadLetterHttpPort, auth gin.HandlerFunc) {
	admin := r.Group("/admin/webhooks/dead-letters", auth)
	{
		admin.GET("", adapter.ListDeadLetters)
		admin.POST("/:id/retry", adapter.RetryDeadLetter)
	}
}

func (a *deadLetterAdapter) ListDeadLetters(c *gin.Context) {
	var query deadLetterQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		handleError(c, apperrors.BadRequest("invalid query parameters"))
		return
	}
	page := pagination.Normalize(query.Page, query.PageSize)

	events, total, err := a.domain.ListDeadLetters(c.Request.Context(), page.Page, page.Limit())
	if err != nil {
		handleError(c, err)
		return
	}

	data := make([]WebhookEventResponse, 0, len(events))
	for _, e := range events {
		data = append(data, toWebhookEventResponse(e))
	}
	c.JSON(http.StatusOK, newPage(data, total, page))
}

func (a *deadLetterAdapter) RetryDeadLetter(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	e, err := a.domain.RetryDeadLetterEvent(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, toWebhookEventResponse(e))
}

// Compile-time check
var _ inbound.DeadLetterHttpPort = (*deadLetterAdapter)(nil)
