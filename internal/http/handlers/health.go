package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/netpulse/internal/http/response"
)

type HealthHandler struct{}

func NewHealthHandler() *HealthHandler { return &HealthHandler{} }

// Health reports liveness of the API process.
func (h *HealthHandler) Health(c *gin.Context) {
	response.OK(c, gin.H{"status": "ok"})
}
