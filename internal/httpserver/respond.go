package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kure-project/kure-monitor/pkg/kure"
)

// Respond writes v as a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// errorResponse is the JSON envelope for error responses.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RespondError writes a JSON error envelope with the given status code.
func RespondError(w http.ResponseWriter, status int, code, message string) {
	Respond(w, status, errorResponse{Error: code, Message: message})
}

// kindStatus maps a kure.Kind to its HTTP status code (§7).
var kindStatus = map[kure.Kind]int{
	kure.KindValidation:        http.StatusBadRequest,
	kure.KindNotFound:          http.StatusNotFound,
	kure.KindInvalidTransition: http.StatusBadRequest,
	kure.KindUnauthorized:      http.StatusUnauthorized,
	kure.KindRateLimited:       http.StatusTooManyRequests,
	kure.KindUpstream:          http.StatusBadGateway,
	kure.KindInternal:          http.StatusInternalServerError,
}

// RespondDomainError maps a domain error (typically *kure.Error) onto the
// appropriate HTTP status and envelope. Errors that are not *kure.Error are
// treated as Internal and logged with an error id, per §7.
func RespondDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var kerr *kure.Error
	if e, ok := err.(*kure.Error); ok {
		kerr = e
	} else {
		kerr = kure.Wrap(kure.KindInternal, "unexpected error", err)
	}

	status, ok := kindStatus[kerr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	if kerr.Kind == kure.KindInternal {
		reqID := middleware.GetReqID(r.Context())
		logger.Error("internal error", "error_id", reqID, "error", kerr.Error())
		RespondError(w, status, string(kerr.Kind), "an internal error occurred (id: "+reqID+")")
		return
	}

	RespondError(w, status, string(kerr.Kind), kerr.Message)
}

// RequestID assigns (or propagates) a request ID and sets it as a response
// header, wrapping chi's own middleware so callers get X-Request-ID back.
func RequestID(next http.Handler) http.Handler {
	return middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r)
	}))
}

// Logger returns a middleware that logs each request at Info level with
// method, path, status, duration, and request id.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// requestDuration observes handler latency by method and response status.
var requestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "kure",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "status"},
)

// RegisterMetrics adds this package's middleware metrics to reg. Call once
// per process before serving traffic.
func RegisterMetrics(reg *prometheus.Registry) {
	reg.MustRegister(requestDuration)
}

// Metrics is a middleware that records request duration per method/status.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		requestDuration.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Observe(time.Since(start).Seconds())
	})
}
