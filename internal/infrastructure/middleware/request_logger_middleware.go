package middleware

import (
	"context"
	"time"

	"roomhub/pkg/logger"
	"roomhub/pkg/utils"

	"github.com/gin-gonic/gin"
)

// RequestLoggerMiddleware assigns every control-plane request an id and logs
// it on completion. The id travels in the request context so downstream log
// lines correlate.
func RequestLoggerMiddleware(contextLogger *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = utils.GenerateRequestID()
		}

		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		contextLogger.LogRequest(ctx, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Milliseconds())
	}
}
