// Package config loads per-binary configuration from environment variables,
// following the teacher's config.Load() shape (internal/config/config.go):
// one struct-tagged Config type per binary, parsed with caarlos0/env.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// BackendConfig configures cmd/backend.
type BackendConfig struct {
	Host string `env:"KURE_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"KURE_PORT" envDefault:"8080"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// AUTH_API_KEY gates every endpoint except the ingest allow-list,
	// /auth/login, and /metrics. Absence disables authentication entirely.
	AuthAPIKey string `env:"AUTH_API_KEY"`

	// EncryptionKey is required only if an LLM config is ever stored
	// (§6 "Environment"); validated lazily at the point of use.
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// RetentionSweepInterval controls how often the retention sweeper runs;
	// the retention bounds themselves live in AppSettings (§3).
	RetentionSweepInterval string `env:"RETENTION_SWEEP_INTERVAL" envDefault:"5m"`

	// LoginRateLimitAttempts / Window implement §4.2's "5 failed attempts
	// per source address in a 30 s window" login rate limit.
	LoginRateLimitAttempts int    `env:"LOGIN_RATE_LIMIT_ATTEMPTS" envDefault:"5"`
	LoginRateLimitWindow    string `env:"LOGIN_RATE_LIMIT_WINDOW" envDefault:"30s"`

	SlackBotToken     string `env:"SLACK_BOT_TOKEN"`
	SlackAlertChannel string `env:"SLACK_ALERT_CHANNEL"`
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *BackendConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadBackend reads BackendConfig from environment variables.
func LoadBackend() (*BackendConfig, error) {
	cfg := &BackendConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing backend config from env: %w", err)
	}
	return cfg, nil
}

// ScannerConfig configures cmd/scanner.
type ScannerConfig struct {
	BackendURL    string `env:"BACKEND_URL,required"`
	BackendAPIKey string `env:"AUTH_API_KEY"`

	// Kubeconfig overrides in-cluster config for local development; empty
	// means "try in-cluster, then fall back to the default kubeconfig".
	Kubeconfig string `env:"KUBECONFIG"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	MetricsPort  int    `env:"METRICS_PORT" envDefault:"9090"`

	// AdditionalTrustedRegistries seeds the scanner's own builtin set;
	// the backend's admin list is authoritative and fetched at startup.
	AdditionalTrustedRegistries []string `env:"TRUSTED_REGISTRIES" envSeparator:","`
}

// LoadScanner reads ScannerConfig from environment variables.
func LoadScanner() (*ScannerConfig, error) {
	cfg := &ScannerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing scanner config from env: %w", err)
	}
	return cfg, nil
}

// AgentConfig configures cmd/agent.
type AgentConfig struct {
	BackendURL    string `env:"BACKEND_URL,required"`
	BackendAPIKey string `env:"AUTH_API_KEY"`

	Kubeconfig string `env:"KUBECONFIG"`

	// CheckInterval is the pod-monitor poll period (§4.3 default 5s).
	CheckIntervalSeconds int `env:"KURE_CHECK_INTERVAL" envDefault:"5"`

	// DedupWindow is how long a reported pod is suppressed from re-report.
	DedupWindowMinutes int `env:"KURE_DEDUP_WINDOW_MINUTES" envDefault:"10"`

	// PendingGracePeriodSeconds bounds how long a Pending pod with no
	// definitive waiting reason is tolerated before being classified failed.
	PendingGracePeriodSeconds int `env:"KURE_PENDING_GRACE_SECONDS" envDefault:"60"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	MetricsPort  int    `env:"METRICS_PORT" envDefault:"9091"`
}

// LoadAgent reads AgentConfig from environment variables.
func LoadAgent() (*AgentConfig, error) {
	cfg := &AgentConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing agent config from env: %w", err)
	}
	return cfg, nil
}
