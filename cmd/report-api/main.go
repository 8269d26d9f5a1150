// Command report-api serves read-only reconciliation reports over HTTP and
// lets operators trigger reconcile runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/di"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/handler"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/metrics"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/middleware"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/config"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/logger"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(&logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: "report-api",
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Report API...")

	ctx := context.Background()

	// Initialize tracing
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "report-api",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn("Tracing disabled", zap.Error(err))
	}

	if cfg.Metrics.Enabled {
		if err := metrics.Init(); err != nil {
			appLog.Fatal("Failed to register metrics", zap.Error(err))
		}
	}

	// Build dependency injection container
	container, err := di.Build(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal("Failed to connect", zap.Error(err))
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	routerCfg := handler.RouterConfig{
		ServiceName: "report-api",
		Logger:      appLog,
		Health:      container.HealthHandler,
		Reports:     container.ReportHandler,
		Runs:        container.RunHandler,
		Auth: &middleware.AuthConfig{
			Secret: cfg.JWT.Secret,
			Issuer: cfg.JWT.Issuer,
		},
	}
	if container.Redis != nil {
		routerCfg.Idempotency = &middleware.IdempotencyConfig{Redis: container.Redis}
	} else {
		appLog.Warn("Redis disabled, POST /api/v1/runs is not idempotent")
	}
	router := handler.NewRouter(routerCfg)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in goroutine
	go func() {
		appLog.Info(fmt.Sprintf("Report API listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := container.RunHandler.Wait(shutdownCtx); err != nil {
		appLog.Warn("Background runs still in progress at shutdown", zap.Error(err))
	}
	container.Close(shutdownCtx)
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("Failed to flush traces", zap.Error(err))
	}

	appLog.Info("Server exited gracefully")
}
