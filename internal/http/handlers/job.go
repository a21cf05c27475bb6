package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/netpulse/internal/dispatcher"
	"github.com/yungbote/netpulse/internal/domain"
	"github.com/yungbote/netpulse/internal/http/response"
	"github.com/yungbote/netpulse/internal/platform/logger"
	"github.com/yungbote/netpulse/internal/store"
)

type JobHandler struct {
	log        *logger.Logger
	dispatcher *dispatcher.Dispatcher
}

func NewJobHandler(log *logger.Logger, d *dispatcher.Dispatcher) *JobHandler {
	return &JobHandler{log: log.With("handler", "JobHandler"), dispatcher: d}
}

// Query handles GET /job?id=...|queue=...|status=...|node=...|host=...
func (h *JobHandler) Query(c *gin.Context) {
	filter := store.JobFilter{
		ID:     c.Query("id"),
		Queue:  c.Query("queue"),
		Status: domain.JobStatus(c.Query("status")),
		NodeID: c.Query("node"),
		Host:   c.Query("host"),
	}
	jobs, err := h.dispatcher.QueryJobs(c.Request.Context(), filter)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.OK(c, jobs)
}

// Cancel handles DELETE /job?id=...
func (h *JobHandler) Cancel(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		response.Error(c, 400, "id is required", nil)
		return
	}
	job, err := h.dispatcher.CancelJob(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.OK(c, job)
}
