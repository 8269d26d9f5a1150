package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/metrics"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/middleware"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/logger"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/telemetry"
)

// RouterConfig wires the API handlers and middleware
type RouterConfig struct {
	ServiceName string
	Logger      *logger.Logger
	Health      *HealthHandler
	Reports     *ReportHandler
	Runs        *RunHandler
	// Auth protects run endpoints; nil leaves them open
	Auth *middleware.AuthConfig
	// Idempotency is applied to POST /runs when set
	Idempotency *middleware.IdempotencyConfig
}

// NewRouter builds the gin engine for the report API
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	if cfg.ServiceName != "" {
		router.Use(telemetry.TracingMiddleware(cfg.ServiceName, "/health", "/ready", "/metrics"))
	}
	router.Use(middleware.Logger(log, "/health", "/ready", "/metrics"))

	if cfg.Health != nil {
		router.GET("/health", cfg.Health.Health)
		router.GET("/ready", cfg.Health.Ready)
	}
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	if cfg.Reports != nil {
		reports := v1.Group("/reports")
		reports.GET("/:report", cfg.Reports.Get)
		reports.GET("/:report/export", cfg.Reports.Export)
	}

	if cfg.Runs != nil {
		runs := v1.Group("/runs")
		if cfg.Auth != nil {
			runs.Use(middleware.RequireOperator(cfg.Auth))
		}
		start := []gin.HandlerFunc{}
		if cfg.Idempotency != nil {
			start = append(start, middleware.Idempotency(cfg.Idempotency))
		}
		start = append(start, cfg.Runs.Start)
		runs.POST("", start...)
		runs.GET("/:id", cfg.Runs.Get)
	}

	return router
}
