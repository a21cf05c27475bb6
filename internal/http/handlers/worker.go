package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/netpulse/internal/http/response"
	"github.com/yungbote/netpulse/internal/platform/logger"
	"github.com/yungbote/netpulse/internal/store"
)

type WorkerHandler struct {
	log   *logger.Logger
	store store.Store
}

func NewWorkerHandler(log *logger.Logger, st store.Store) *WorkerHandler {
	return &WorkerHandler{log: log.With("handler", "WorkerHandler"), store: st}
}

// List handles GET /worker, returning currently registered workers.
func (h *WorkerHandler) List(c *gin.Context) {
	workers, err := h.store.ListWorkers(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	response.OK(c, workers)
}

// Stop handles DELETE /worker. Workers are supervised goroutines
// inside their node process, so this only unregisters the
// observational record; the node supervisor owns the actual
// spawn/reap decision via its reconcile loop.
func (h *WorkerHandler) Stop(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		response.Error(c, 400, "id is required", nil)
		return
	}
	if err := h.store.UnregisterWorker(c.Request.Context(), id); err != nil {
		respondErr(c, err)
		return
	}
	response.OK(c, gin.H{"id": id, "stopped": true})
}
