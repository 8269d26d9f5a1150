// Command reconcile-worker reconciles registrations one at a time as their
// change events arrive on Kafka.
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

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/consumer"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/di"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/handler"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/metrics"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/config"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/logger"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: "reconcile-worker",
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting reconcile worker...")

	if !cfg.Kafka.Enabled {
		appLog.Fatal("KAFKA_ENABLED must be true for the reconcile worker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "reconcile-worker",
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

	container, err := di.Build(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal("Failed to connect", zap.Error(err))
	}

	consumerCfg := consumer.DefaultRegistrationConsumerConfig()
	consumerCfg.Brokers = cfg.Kafka.Brokers
	consumerCfg.GroupID = cfg.Kafka.ConsumerGroup + "-worker"
	consumerCfg.Topic = cfg.Kafka.ChangesTopic
	consumerCfg.DryRun = cfg.Reconcile.WorkerDryRun

	registrationConsumer, err := consumer.NewRegistrationConsumer(ctx, consumerCfg, container.Pipeline, container.DLQ, appLog.Named("consumer"))
	if err != nil {
		appLog.Fatal("Failed to create registration consumer", zap.Error(err))
	}
	if err := registrationConsumer.Start(ctx); err != nil {
		appLog.Fatal("Failed to start registration consumer", zap.Error(err))
	}

	// Health and metrics for the orchestrator
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(handler.RouterConfig{
		Logger: appLog,
		Health: container.HealthHandler,
	})
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		appLog.Info(fmt.Sprintf("Worker health endpoint listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("Health server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down worker...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := registrationConsumer.Stop(); err != nil {
		appLog.Error("Failed to stop consumer", zap.Error(err))
	}
	cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Health server forced to shutdown", zap.Error(err))
	}
	container.Close(shutdownCtx)
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("Failed to flush traces", zap.Error(err))
	}

	appLog.Info("Worker exited gracefully")
}
