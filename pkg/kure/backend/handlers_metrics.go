package backend

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kure-project/kure-monitor/internal/httpserver"
	"github.com/kure-project/kure-monitor/pkg/kure"
	"github.com/kure-project/kure-monitor/pkg/kure/hub"
)

// reportClusterMetricsRequest is the body of POST /api/metrics/cluster,
// submitted once per agent poll loop (§3's ClusterMetrics supplement).
type reportClusterMetricsRequest struct {
	NodeCount   int     `json:"node_count"`
	PodCount    int     `json:"pod_count"`
	CPUMillis   float64 `json:"cpu_millis"`
	MemoryBytes float64 `json:"memory_bytes"`
	Pods        []struct {
		Namespace   string  `json:"namespace"`
		PodName     string  `json:"pod_name"`
		CPUMillis   float64 `json:"cpu_millis"`
		MemoryBytes float64 `json:"memory_bytes"`
	} `json:"pods"`
}

// HandleReportClusterMetrics implements POST /api/metrics/cluster: the agent
// reports one cluster-wide sample plus a per-pod breakdown every poll loop.
// The backend keeps only the latest snapshot and a bounded per-pod history
// ring (§3), then fans the snapshot out over the hub.
func (b *Backend) HandleReportClusterMetrics(w http.ResponseWriter, r *http.Request) {
	var req reportClusterMetricsRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	snap := kure.ClusterSnapshot{
		Timestamp:   time.Now(),
		NodeCount:   req.NodeCount,
		PodCount:    req.PodCount,
		CPUMillis:   req.CPUMillis,
		MemoryBytes: req.MemoryBytes,
	}
	b.Metrics.UpdateSnapshot(snap)

	active := make(map[string]struct{}, len(req.Pods))
	for _, p := range req.Pods {
		active[p.Namespace+"/"+p.PodName] = struct{}{}
		b.Metrics.RecordPodPoint(p.Namespace, p.PodName, kure.PodMetricPoint{
			Timestamp:   snap.Timestamp,
			CPUMillis:   p.CPUMillis,
			MemoryBytes: p.MemoryBytes,
		})
	}
	b.Metrics.SweepStale(active)

	b.broadcast(hub.TypeClusterMetrics, snap)
	httpserver.Respond(w, http.StatusOK, snap)
}

// HandleGetClusterMetrics implements GET /api/metrics/cluster.
func (b *Backend) HandleGetClusterMetrics(w http.ResponseWriter, r *http.Request) {
	httpserver.Respond(w, http.StatusOK, b.Metrics.Last())
}

// HandleGetPodMetricsHistory implements
// GET /api/metrics/pods/{ns}/{pod}/history.
func (b *Backend) HandleGetPodMetricsHistory(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "ns")
	podName := chi.URLParam(r, "pod")
	httpserver.Respond(w, http.StatusOK, b.Metrics.PodHistory(namespace, podName))
}
