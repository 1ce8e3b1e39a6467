// Package main provides the worker application entry point. The worker
// polls the control plane for pending AI tasks and processes them
// through the five job-kind pipelines.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aletheiafact/ai-task-worker/internal/config"
	"github.com/aletheiafact/ai-task-worker/internal/controlplane"
	"github.com/aletheiafact/ai-task-worker/internal/domain"
	"github.com/aletheiafact/ai-task-worker/internal/httpenvelope"
	"github.com/aletheiafact/ai-task-worker/internal/kg"
	"github.com/aletheiafact/ai-task-worker/internal/llm"
	"github.com/aletheiafact/ai-task-worker/internal/observability"
	"github.com/aletheiafact/ai-task-worker/internal/processor"
	"github.com/aletheiafact/ai-task-worker/internal/ratelimiter"
	"github.com/aletheiafact/ai-task-worker/internal/scheduler"
	"github.com/aletheiafact/ai-task-worker/internal/shutdown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("starting worker", "env", cfg.AppEnv)

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		logger.Error("failed to setup tracing", "error", err)
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	coordinator := shutdown.New(logger)

	envelope := httpenvelope.New(httpenvelope.Config{
		MaxRetries:              cfg.MaxRetries,
		BackoffFactor:           cfg.RetryBackoffFactor,
		CircuitBreakerThreshold: cfg.CircuitBreakerThreshold,
		CircuitBreakerRecovery:  cfg.CircuitBreakerRecovery,
		RequestTimeout:          cfg.RequestTimeout,
		OnCircuitStateChange: func(host string, state domain.CircuitState) {
			metrics.CircuitBreakerState.WithLabelValues(host).Set(state.GaugeValue())
			logger.Info("circuit breaker state changed", "host", host, "state", state.String())
		},
	})

	limiter, err := ratelimiter.New(context.Background(), cfg, metrics, logger)
	if err != nil {
		logger.Error("rate limiter init failed", "error", err)
		os.Exit(1)
	}
	coordinator.AddCleanupCallback(func() {
		if err := limiter.Close(); err != nil {
			logger.Error("failed to close rate limiter store", "error", err)
		}
	})

	gateway, err := llm.New(cfg, envelope, metrics, logger)
	if err != nil {
		logger.Error("language model gateway init failed", "error", err)
		os.Exit(1)
	}

	enricher := kg.New(cfg, envelope, logger)

	registry := processor.New(logger,
		processor.NewTextEmbedding(gateway),
		processor.NewIdentifyingData(gateway, enricher, logger),
		processor.NewDefiningTopics(gateway, enricher, logger),
		processor.NewDefiningImpactArea(gateway, enricher, logger),
		processor.NewDefiningSeverity(gateway, enricher, logger),
	)

	cpClient := controlplane.New(cfg, envelope, metrics)

	sched := scheduler.New(cfg, cpClient, limiter, registry, coordinator, metrics, logger)
	coordinator.AddCleanupCallback(sched.Stop)

	ready := false
	obsServer := observability.NewServer(
		fmt.Sprintf(":%d", cfg.MetricsPort),
		cfg.OTELServiceName,
		reg,
		metrics,
		func() bool { return ready },
		limiter,
	)
	obsServerErr := obsServer.Start()
	coordinator.AddCleanupCallback(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obsServer.Stop(ctx); err != nil {
			logger.Error("failed to stop observability server", "error", err)
		}
	})
	go func() {
		if err := <-obsServerErr; err != nil {
			logger.Error("observability server error", "error", err)
		}
	}()

	go sched.Run(context.Background())
	ready = true

	coordinator.ListenForSignals()
	logger.Info("worker started successfully, waiting for shutdown signal")
	coordinator.WaitForShutdown(context.Background())

	// Shutdown is idempotent: if a signal already triggered it, this call
	// simply blocks until that in-flight run finishes its drain and
	// cleanup before main exits.
	coordinator.Shutdown()
	logger.Info("worker stopped")
}
