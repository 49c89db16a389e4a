package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/usama216/shipping-market-sub004/internal/api"
	"github.com/usama216/shipping-market-sub004/internal/bootstrap"
	"github.com/usama216/shipping-market-sub004/internal/config"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
	"github.com/usama216/shipping-market-sub004/pkg/metrics"
	"github.com/usama216/shipping-market-sub004/pkg/middleware"
	"github.com/usama216/shipping-market-sub004/pkg/tracing"
)

const serviceName = "shipping-carrier-gateway"

func main() {
	config.LoadDotEnv()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))

	logConfig := logging.DefaultConfig(serviceName)
	if cfg != nil {
		logConfig.Level = logging.ParseLevel(cfg.App.LogLevel)
		logConfig.Environment = cfg.App.Env
		logConfig.Version = cfg.App.Version
	}
	logger := logging.New(logConfig)
	logger.SetDefault()

	if err != nil {
		logger.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger.Info("Starting carrier gateway API", "env", cfg.App.Env)
	ctx := context.Background()

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.Enabled = cfg.Tracing.Enabled
	tracingConfig.OTLPEndpoint = cfg.Tracing.Endpoint
	tracingConfig.SampleRate = cfg.Tracing.SampleRate
	tracingConfig.Environment = cfg.App.Env
	tracingConfig.ServiceVersion = cfg.App.Version

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))

	components, err := bootstrap.Build(ctx, cfg, logger, m)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize services")
		os.Exit(1)
	}
	defer components.Close()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	middlewareConfig := middleware.DefaultConfig(serviceName, logger)
	middlewareConfig.Metrics = m
	middleware.Setup(router, middlewareConfig)

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, components.HealthCheck))
	router.GET("/metrics", gin.WrapH(m.Handler()))

	api.RegisterRoutes(router, api.Services{
		Rates:       components.Rates,
		Submissions: components.Submissions,
		Tracking:    components.Tracking,
		Carriers:    components.Carriers,
		Breakers:    components.Breakers,
	}, logger)

	srv := &http.Server{
		Addr:         cfg.App.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", cfg.App.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}
