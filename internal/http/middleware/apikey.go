package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/netpulse/internal/http/response"
)

// RequireAPIKey enforces a static API key on every request, checked
// against the configured header, a query parameter, or a cookie of the
// same name. header is the configured key name (default X-API-KEY).
func RequireAPIKey(header, expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expected == "" {
			c.Next()
			return
		}
		got := c.GetHeader(header)
		if got == "" {
			got = c.Query(header)
		}
		if got == "" {
			if ck, err := c.Cookie(header); err == nil {
				got = ck
			}
		}
		if got != expected {
			response.Error(c, 401, "missing or invalid API key", nil)
			return
		}
		c.Next()
	}
}
