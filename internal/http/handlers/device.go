package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/netpulse/internal/apperr"
	"github.com/yungbote/netpulse/internal/dispatcher"
	"github.com/yungbote/netpulse/internal/domain"
	"github.com/yungbote/netpulse/internal/http/response"
	"github.com/yungbote/netpulse/internal/platform/logger"
)

type DeviceHandler struct {
	log        *logger.Logger
	dispatcher *dispatcher.Dispatcher
}

func NewDeviceHandler(log *logger.Logger, d *dispatcher.Dispatcher) *DeviceHandler {
	return &DeviceHandler{log: log.With("handler", "DeviceHandler"), dispatcher: d}
}

func toRequest(driverName string, conn domain.ConnectionParams, cmd stringOrSlice, cfg *configField, opts optionsDTO) dispatcher.Request {
	op := domain.OpExecute
	if cfg != nil {
		op = domain.OpPush
	}
	payload := domain.Payload{ParsingHint: opts.Parsing, RenderHint: opts.Rendering}
	if len(cmd) > 0 {
		payload.Commands = []string(cmd)
	}
	if cfg != nil {
		payload.ConfigLines = cfg.Lines
		payload.RenderCtx = cfg.Ctx
	}
	return dispatcher.Request{
		Driver:          driverName,
		Operation:       op,
		Conn:            conn,
		Payload:         payload,
		QueueStrategy:   domain.QueueStrategy(opts.QueueStrategy),
		TTL:             time.Duration(opts.TTLSeconds) * time.Second,
		Timeout:         time.Duration(opts.TimeoutSeconds) * time.Second,
		ResultRetention: time.Duration(opts.RetentionSeconds) * time.Second,
	}
}

// Execute handles POST /device/execute.
func (h *DeviceHandler) Execute(c *gin.Context) {
	var body executeRequestDTO
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, 400, err.Error(), nil)
		return
	}
	req := toRequest(body.Driver, body.ConnectionArgs.toDomain(body.Driver), body.Command, body.Config, body.Options)

	if req.Operation == domain.OpExecute && len(req.Payload.Commands) == 0 && req.Payload.ConfigLines == nil && req.Payload.RenderCtx == nil {
		// No command and no config: treat as a synchronous test-connection.
		result, err := h.dispatcher.TestConnection(c.Request.Context(), req.Conn)
		if err != nil {
			respondErr(c, err)
			return
		}
		response.OK(c, result)
		return
	}

	job, err := h.dispatcher.SubmitDeviceJob(c.Request.Context(), req)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.OK(c, gin.H{"id": job.ID, "status": job.Status, "queue": job.Queue})
}

// Bulk handles POST /device/bulk.
func (h *DeviceHandler) Bulk(c *gin.Context) {
	var body bulkRequestDTO
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, 400, err.Error(), nil)
		return
	}
	if len(body.Devices) == 0 {
		response.Error(c, 400, "bulk request must have at least one device", nil)
		return
	}
	base := toRequest(body.Driver, domain.ConnectionParams{}, body.Command, body.Config, body.Options)
	devices := make([]domain.ConnectionParams, 0, len(body.Devices))
	for _, d := range body.Devices {
		devices = append(devices, d.toDomain(body.Driver))
	}
	res, err := h.dispatcher.SubmitBulk(c.Request.Context(), base, devices)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.OK(c, res)
}

// TestConnection handles POST /device/test-connection.
func (h *DeviceHandler) TestConnection(c *gin.Context) {
	var body struct {
		Driver         string            `json:"driver" binding:"required"`
		ConnectionArgs connectionArgsDTO `json:"connection_args" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, 400, err.Error(), nil)
		return
	}
	result, err := h.dispatcher.TestConnection(c.Request.Context(), body.ConnectionArgs.toDomain(body.Driver))
	if err != nil {
		respondErr(c, err)
		return
	}
	response.OK(c, result)
}

func respondErr(c *gin.Context, err error) {
	ae := apperr.As(err)
	response.Error(c, ae.HTTPStatus(), ae.Message, gin.H{"kind": ae.Kind})
}
