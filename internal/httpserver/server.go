package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config is the subset of server construction knobs every binary's own
// config.Config maps onto; kept separate so internal/httpserver has no
// dependency on internal/config (mirrors the teacher's layering).
type Config struct {
	CORSAllowedOrigins []string
	APIKey             string // empty disables authentication
}

// Server holds the HTTP server scaffold: global middleware, health/metrics
// endpoints, and two mount points domain handlers attach to — Public (no
// auth, used by agent/scanner ingest + /auth/*) and Protected (gated by
// AuthMiddleware, used by admin/UI operations).
type Server struct {
	Router    *chi.Mux
	Public    chi.Router
	Protected chi.Router
	Logger    *slog.Logger
	startedAt time.Time
}

// NewServer builds the chi router with the teacher's middleware stack
// (RequestID, Logger, Metrics, Recoverer, CORS) and health/metrics
// endpoints. Domain handlers are mounted onto Public/Protected afterward.
func NewServer(cfg Config, logger *slog.Logger, metricsReg *prometheus.Registry) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	s.Router.Route("/", func(r chi.Router) {
		s.Public = r
	})
	s.Router.Route("/", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.APIKey))
		s.Protected = r
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyChecker reports whether a dependency is reachable; used by /readyz.
type ReadyChecker func(r *http.Request) error

// MountReadyz wires /readyz against the given checkers (typically DB and
// Redis pings), run sequentially so the first failure's name is reported.
func (s *Server) MountReadyz(checks map[string]ReadyChecker) {
	s.Router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		for name, check := range checks {
			if err := check(r); err != nil {
				s.Logger.Error("readiness check failed", "dependency", name, "error", err)
				RespondError(w, http.StatusServiceUnavailable, "unavailable", name+" not ready")
				return
			}
		}
		Respond(w, http.StatusOK, map[string]string{"status": "ready"})
	})
}

// PingPostgres builds a ReadyChecker for a pgx pool.
func PingPostgres(pool *pgxpool.Pool) ReadyChecker {
	return func(r *http.Request) error { return pool.Ping(r.Context()) }
}
