package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/usama216/shipping-market-sub004/internal/activities"
	"github.com/usama216/shipping-market-sub004/internal/bootstrap"
	"github.com/usama216/shipping-market-sub004/internal/config"
	"github.com/usama216/shipping-market-sub004/internal/workflows"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
	"github.com/usama216/shipping-market-sub004/pkg/metrics"
	"github.com/usama216/shipping-market-sub004/pkg/temporal"
	"github.com/usama216/shipping-market-sub004/pkg/tracing"
)

const serviceName = "shipping-carrier-worker"

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

	logger.Info("Starting carrier gateway worker")
	ctx := context.Background()

	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.Enabled = cfg.Tracing.Enabled
	tracingConfig.OTLPEndpoint = cfg.Tracing.Endpoint
	tracingConfig.SampleRate = cfg.Tracing.SampleRate
	tracingConfig.Environment = cfg.App.Env

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracerProvider.Shutdown(shutdownCtx)
		}()
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))

	components, err := bootstrap.Build(ctx, cfg, logger, m)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize services")
		os.Exit(1)
	}
	defer components.Close()

	temporalConfig := temporal.DefaultConfig()
	temporalConfig.HostPort = cfg.Temporal.HostPort
	temporalConfig.Namespace = cfg.Temporal.Namespace
	temporalConfig.TaskQueue = cfg.Temporal.TaskQueue

	temporalClient, err := temporal.NewClient(ctx, temporalConfig, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create Temporal client")
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("Connected to Temporal", "hostPort", temporalConfig.HostPort, "namespace", temporalConfig.Namespace)

	carrierActivities := activities.NewCarrierActivities(components.Rates, components.Submissions, components.Tracking, logger)

	w := temporalClient.NewWorker(temporal.DefaultWorkerOptions(temporalConfig.TaskQueue))
	w.RegisterWorkflow(workflows.ShipmentSubmissionWorkflow)
	w.RegisterActivity(carrierActivities)

	// metrics only; the worker has no API surface
	metricsServer := &http.Server{
		Addr:              cfg.App.MetricsAddr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server error", "error", err)
		}
	}()

	go func() {
		if err := w.Run(nil); err != nil {
			logger.Error("Worker failed", "error", err)
			os.Exit(1)
		}
	}()
	logger.Info("Worker started", "taskQueue", temporalConfig.TaskQueue)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down worker...")

	w.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info("Worker stopped")
}
