package gin

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperrors "github.com/uniedit/payflow/internal/utils/errors"
)

// parseIDParam parses the :id path parameter. It writes a 422 response and
// returns false when the value is not a UUID.
func parseIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handleError(c, apperrors.ValidationError("id", "must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// requestHeaders flattens the request headers for signature extraction.
func requestHeaders(c *gin.Context) map[string]string {
	headers := make(map[string]string, len(c.Request.Header))
	for key := range c.Request.Header {
		headers[key] = c.GetHeader(key)
	}
	return headers
}
