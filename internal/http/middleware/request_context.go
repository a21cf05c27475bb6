package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/netpulse/internal/platform/ctxutil"
)

// AttachRequestContext stamps the request context with the trace and
// request id pair every handler and log line threads through.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ctxutil.WithTraceData(c.Request.Context())
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctxutil.SetRequestID(ctx, reqID)
		c.Header("X-Request-ID", reqID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
