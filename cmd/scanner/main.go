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
	"github.com/kure-project/kure-monitor/pkg/kure/k8sclient"
	"github.com/kure-project/kure-monitor/pkg/kure/scanner"
)

func main() {
	cfg, err := config.LoadScanner()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracer, err := telemetry.InitTracer(ctx, "kure-scanner", cfg.OTLPEndpoint)
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

	client := scanner.NewBackendClient(cfg.BackendURL, cfg.BackendAPIKey)
	s := scanner.New(clientset, client, logger)
	if len(cfg.AdditionalTrustedRegistries) > 0 {
		s.SeedTrustedRegistries(cfg.AdditionalTrustedRegistries)
	}

	metricsReg := telemetry.NewRegistry()
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           telemetry.MetricsHandler(metricsReg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("scanner metrics listening", "addr", metricsSrv.Addr)
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

	logger.Info("scanner starting")
	if err := s.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("scanner exited", "error", err)
		os.Exit(1)
	}
}
