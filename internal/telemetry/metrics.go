package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PodFailuresTotal counts pod failure ingests by namespace and reason (§4.2).
var PodFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kure",
		Subsystem: "pod",
		Name:      "failures_total",
		Help:      "Total number of pod failure ingests.",
	},
	[]string{"namespace", "reason"},
)

// SecurityFindingsTotal counts security finding ingests by severity (§4.2).
var SecurityFindingsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kure",
		Subsystem: "security",
		Name:      "findings_total",
		Help:      "Total number of security finding ingests.",
	},
	[]string{"severity"},
)

// PodFailuresResolvedTotal counts auto-resolutions via dismiss-deleted.
var PodFailuresResolvedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "kure",
		Subsystem: "pod",
		Name:      "failures_resolved_total",
		Help:      "Total number of pod failures auto-resolved on pod disappearance.",
	},
)

// HubClientsConnected is the current count of WebSocket clients.
var HubClientsConnected = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "kure",
		Subsystem: "hub",
		Name:      "clients_connected",
		Help:      "Current number of connected WebSocket clients.",
	},
)

// HubBroadcastsTotal counts broadcast sends by message type.
var HubBroadcastsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kure",
		Subsystem: "hub",
		Name:      "broadcasts_total",
		Help:      "Total number of messages broadcast by type.",
	},
	[]string{"type"},
)

// WatchEventsTotal counts Kubernetes watch events observed by the scanner,
// by kind and event type (ADDED/MODIFIED/DELETED).
var WatchEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kure",
		Subsystem: "scanner",
		Name:      "watch_events_total",
		Help:      "Total number of Kubernetes watch events observed.",
	},
	[]string{"kind", "event"},
)

// RulesEvaluatedTotal counts rule evaluations by kind and verdict
// (violation/clean/error).
var RulesEvaluatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kure",
		Subsystem: "scanner",
		Name:      "rules_evaluated_total",
		Help:      "Total number of rule evaluations by verdict.",
	},
	[]string{"kind", "verdict"},
)

// AgentLoopDuration observes the wall-clock duration of one agent poll loop.
var AgentLoopDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "kure",
		Subsystem: "agent",
		Name:      "loop_duration_seconds",
		Help:      "Duration of one pod-monitor poll loop iteration.",
		Buckets:   prometheus.DefBuckets,
	},
)

// SecurityScanDurationSeconds observes the wall-clock duration of the most
// recent full security sweep (startup sweep or rescan).
var SecurityScanDurationSeconds = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "kure",
		Subsystem: "scanner",
		Name:      "scan_duration_seconds",
		Help:      "Duration of the most recent full security sweep.",
	},
)

// RetentionSweepDeletedTotal counts rows deleted by the retention sweeper.
var RetentionSweepDeletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kure",
		Subsystem: "retention",
		Name:      "deleted_total",
		Help:      "Total number of rows deleted by the retention sweeper.",
	},
	[]string{"status"},
)

// All returns every kure-specific metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		PodFailuresTotal,
		SecurityFindingsTotal,
		PodFailuresResolvedTotal,
		HubClientsConnected,
		HubBroadcastsTotal,
		WatchEventsTotal,
		RulesEvaluatedTotal,
		AgentLoopDuration,
		SecurityScanDurationSeconds,
		RetentionSweepDeletedTotal,
	}
}

// NewRegistry builds a Prometheus registry with the standard process/Go
// collectors plus every kure metric registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	for _, c := range All() {
		reg.MustRegister(c)
	}
	return reg
}

// MetricsHandler serves reg in the Prometheus exposition format, for the
// scanner/agent binaries that expose a standalone metrics port rather than
// mounting /metrics on a shared router (§6's METRICS_PORT).
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
