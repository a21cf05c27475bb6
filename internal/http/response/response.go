// Package response implements a single response envelope,
// {"code": <int>, "message": <string>, "data": <payload>}, used on
// both the success and error paths.
package response

import (
	"github.com/gin-gonic/gin"
)

type Envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, Envelope{Code: 200, Message: "ok", Data: data})
}

func Error(c *gin.Context, status int, message string, data interface{}) {
	c.AbortWithStatusJSON(status, Envelope{Code: status, Message: message, Data: data})
}
