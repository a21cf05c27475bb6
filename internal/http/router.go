package http

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/netpulse/internal/http/handlers"
	"github.com/yungbote/netpulse/internal/http/middleware"
	"github.com/yungbote/netpulse/internal/observability"
	"github.com/yungbote/netpulse/internal/platform/logger"
)

type RouterConfig struct {
	Log    *logger.Logger
	Metrics *observability.Metrics

	APIKeyHeader string
	APIKey       string
	CORSOrigins  []string

	Device *handlers.DeviceHandler
	Job    *handlers.JobHandler
	Worker *handlers.WorkerHandler
	Health *handlers.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(middleware.AttachRequestContext())
	router.Use(middleware.RequestLog(cfg.Log))
	router.Use(middleware.Metrics(cfg.Metrics))
	router.Use(middleware.CORS(cfg.CORSOrigins))

	router.GET("/health", cfg.Health.Health)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := router.Group("/api")
	api.Use(middleware.RequireAPIKey(cfg.APIKeyHeader, cfg.APIKey))
	{
		api.POST("/device/execute", cfg.Device.Execute)
		api.POST("/device/bulk", cfg.Device.Bulk)
		api.POST("/device/test-connection", cfg.Device.TestConnection)

		api.GET("/job", cfg.Job.Query)
		api.DELETE("/job", cfg.Job.Cancel)

		api.GET("/worker", cfg.Worker.List)
		api.DELETE("/worker", cfg.Worker.Stop)
	}

	return router
}
