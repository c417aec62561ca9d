// Package backend implements the ingest -> persist -> broadcast core
// described in SPEC_FULL.md §4.2: HTTP handlers over a Storage, fanning
// deltas out through a hub.Hub, with a background retention sweeper and a
// Redis-backed login rate limiter (failure counters live in Redis, not in
// process memory).
package backend

import (
	"context"
	"log/slog"
	"time"

	"github.com/kure-project/kure-monitor/internal/auth"
	"github.com/kure-project/kure-monitor/pkg/kure"
	"github.com/kure-project/kure-monitor/pkg/kure/hub"
	"github.com/kure-project/kure-monitor/pkg/kure/llm"
	"github.com/kure-project/kure-monitor/pkg/kure/notify"
	"github.com/kure-project/kure-monitor/pkg/kure/storage"
)

// LogStreamer opens a following log stream for a container, used by the SSE
// log-stream handler. Implemented by pkg/kure/k8sclient against a real
// cluster; kept as an interface here so the backend package has no direct
// client-go dependency.
type LogStreamer interface {
	StreamLogs(ctx context.Context, namespace, pod string, lines chan<- string) error
}

// Backend wires together the storage, broadcast hub, and collaborator ports
// that every HTTP handler in this package depends on.
type Backend struct {
	Store       storage.Storage
	Hub         *hub.Hub
	Solver      llm.Solver
	Notifier    notify.Notifier
	Logger      *slog.Logger
	RateLimiter *auth.RateLimiter
	APIKey      string
	Logs        LogStreamer
	Metrics     *kure.ClusterMetrics

	// EncryptionKey encrypts/decrypts the LLMConfig API key at rest (§6:
	// "ENCRYPTION_KEY required if LLM config is stored"). Empty disables
	// storing or reading an LLM config; validated lazily at the point of use.
	EncryptionKey string

	// RetentionInterval controls how often the sweeper runs (§4.2).
	RetentionInterval time.Duration
}

// New builds a Backend. Logs may be nil if the binary doesn't wire a
// Kubernetes client (e.g. in tests); the log-stream handler then responds
// with a 502 Upstream error.
func New(store storage.Storage, h *hub.Hub, solver llm.Solver, notifier notify.Notifier, logger *slog.Logger, rl *auth.RateLimiter, apiKey string) *Backend {
	return &Backend{
		Store:             store,
		Hub:               h,
		Solver:            solver,
		Notifier:          notifier,
		Logger:            logger,
		RateLimiter:       rl,
		APIKey:            apiKey,
		Metrics:           kure.NewClusterMetrics(),
		RetentionInterval: 5 * time.Minute,
	}
}
