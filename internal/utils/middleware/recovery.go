package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	apperrors "github.com/uniedit/payflow/internal/utils/errors"
	"go.uber.org/zap"
)

// Recovery returns a middleware that recovers from panics and answers with
// a generic internal error.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("Panic recovered",
					zap.String("panic", fmt.Sprint(rec)),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("client_ip", c.ClientIP()),
					zap.String("request_id", GetRequestID(c)),
					zap.StackSkip("stack", 2),
				)

				appErr := apperrors.Internal(nil)
				c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
			}
		}()
		c.Next()
	}
}
