package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kure-project/kure-monitor/internal/config"
	"github.com/kure-project/kure-monitor/internal/telemetry"
	"github.com/kure-project/kure-monitor/pkg/kure/agent"
	"github.com/kure-project/kure-monitor/pkg/kure/k8sclient"
)

func main() {
	cfg, err := config.LoadAgent()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracer, err := telemetry.InitTracer(ctx, "kure-agent", cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("initializing tracer", "error", err)
		os.Exit(1)
	}
	defer shutdownTracer(context.Background())

	clientset, err := k8sclient.NewClientset(cfg.Kubeconfig)
	if err != nil {
		logger.Error("building kubernetes clientset", "error", err)
		os.Exit(1)
	}

	client := agent.NewBackendClient(cfg.BackendURL, cfg.BackendAPIKey)
	a := agent.New(
		clientset,
		client,
		time.Duration(cfg.CheckIntervalSeconds)*time.Second,
		time.Duration(cfg.DedupWindowMinutes)*time.Minute,
		time.Duration(cfg.PendingGracePeriodSeconds)*time.Second,
		logger,
	)

	metricsReg := telemetry.NewRegistry()
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           telemetry.MetricsHandler(metricsReg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("agent metrics listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("agent starting", "check_interval", cfg.CheckIntervalSeconds)
	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("agent exited", "error", err)
		os.Exit(1)
	}
}
