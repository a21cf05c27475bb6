package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/netpulse/internal/platform/logger"
)

// RequestLog logs one line per request with method, route, status,
// and latency.
func RequestLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"request_id", c.Writer.Header().Get("X-Request-ID"),
		)
	}
}
