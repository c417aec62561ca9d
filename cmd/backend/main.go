package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kure-project/kure-monitor/internal/auth"
	"github.com/kure-project/kure-monitor/internal/config"
	"github.com/kure-project/kure-monitor/internal/httpserver"
	"github.com/kure-project/kure-monitor/internal/platform"
	"github.com/kure-project/kure-monitor/internal/telemetry"
	"github.com/kure-project/kure-monitor/pkg/kure/backend"
	"github.com/kure-project/kure-monitor/pkg/kure/hub"
	"github.com/kure-project/kure-monitor/pkg/kure/k8sclient"
	"github.com/kure-project/kure-monitor/pkg/kure/llm"
	"github.com/kure-project/kure-monitor/pkg/kure/notify"
	"github.com/kure-project/kure-monitor/pkg/kure/storage"
)

func main() {
	cfg, err := config.LoadBackend()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracer, err := telemetry.InitTracer(ctx, "kure-backend", cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("initializing tracer", "error", err)
		os.Exit(1)
	}
	defer shutdownTracer(context.Background())

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		logger.Error("running migrations", "error", err)
		os.Exit(1)
	}

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	store := storage.New(pool)
	h := hub.New(logger)

	rateLimitWindow, err := time.ParseDuration(cfg.LoginRateLimitWindow)
	if err != nil {
		logger.Error("parsing login rate limit window", "error", err)
		os.Exit(1)
	}
	rateLimiter := auth.NewRateLimiter(redisClient, cfg.LoginRateLimitAttempts, rateLimitWindow)

	// The admin-configured LLM provider (llm.HTTPSolver) isn't wired to a
	// live Store-backed switch yet — see DESIGN.md's Open Question on this.
	// The rule-based solver always produces an answer so pod-failure ingest
	// is never blocked on it (§7).
	solver := llm.NewRuleBasedSolver()

	notifier := notify.Notifier(notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel, logger))

	b := backend.New(store, h, solver, notifier, logger, rateLimiter, cfg.AuthAPIKey)
	b.EncryptionKey = cfg.EncryptionKey

	retentionSweepInterval, err := time.ParseDuration(cfg.RetentionSweepInterval)
	if err != nil {
		logger.Error("parsing retention sweep interval", "error", err)
		os.Exit(1)
	}
	b.RetentionInterval = retentionSweepInterval

	if cs, err := k8sclient.NewClientset(os.Getenv("KUBECONFIG")); err != nil {
		logger.Warn("kubernetes client unavailable, log streaming disabled", "error", err)
	} else {
		b.Logs = k8sclient.NewLogStreamer(cs)
	}

	metricsReg := telemetry.NewRegistry()
	srv := httpserver.NewServer(httpserver.Config{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		APIKey:             cfg.AuthAPIKey,
	}, logger, metricsReg)
	srv.MountReadyz(map[string]httpserver.ReadyChecker{
		"postgres": httpserver.PingPostgres(pool),
		"redis": func(r *http.Request) error {
			return redisClient.Ping(r.Context()).Err()
		},
	})
	b.Mount(srv)

	go b.RunRetentionSweeper(ctx)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutting down http server", "error", err)
		}
	}()

	logger.Info("backend listening", "addr", cfg.ListenAddr())
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
}
