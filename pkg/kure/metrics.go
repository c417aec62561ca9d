package kure

import (
	"sync"
	"time"
)

// podKey identifies a pod for the metrics history ring.
type podKey struct {
	Namespace string
	PodName   string
}

// ClusterSnapshot is the latest cluster-wide metrics sample broadcast to
// clients as a cluster_metrics event.
type ClusterSnapshot struct {
	Timestamp   time.Time `json:"timestamp"`
	NodeCount   int       `json:"node_count"`
	PodCount    int       `json:"pod_count"`
	CPUMillis   float64   `json:"cpu_millis"`
	MemoryBytes float64   `json:"memory_bytes"`
}

// ClusterMetrics is the in-memory, backend-owned snapshot plus bounded
// per-pod history described in §3. It follows the teacher's module-global
// singleton pattern (internal/telemetry/metrics.go) but, since this state is
// mutated rather than merely registered, is an explicit long-lived value
// passed by reference rather than a package-level var.
type ClusterMetrics struct {
	mu      sync.RWMutex
	last    ClusterSnapshot
	history map[podKey][]PodMetricPoint
}

// NewClusterMetrics creates an empty ClusterMetrics store.
func NewClusterMetrics() *ClusterMetrics {
	return &ClusterMetrics{history: make(map[podKey][]PodMetricPoint)}
}

// UpdateSnapshot replaces the last cluster-wide snapshot.
func (m *ClusterMetrics) UpdateSnapshot(snap ClusterSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = snap
}

// Last returns the most recent cluster-wide snapshot.
func (m *ClusterMetrics) Last() ClusterSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// RecordPodPoint appends a sample to a pod's history ring, evicting the
// oldest point once HistoryRingSize is exceeded.
func (m *ClusterMetrics) RecordPodPoint(namespace, podName string, point PodMetricPoint) {
	key := podKey{namespace, podName}

	m.mu.Lock()
	defer m.mu.Unlock()

	points := append(m.history[key], point)
	if len(points) > HistoryRingSize {
		points = points[len(points)-HistoryRingSize:]
	}
	m.history[key] = points
}

// PodHistory returns a copy of the recorded history for one pod.
func (m *ClusterMetrics) PodHistory(namespace, podName string) []PodMetricPoint {
	key := podKey{namespace, podName}

	m.mu.RLock()
	defer m.mu.RUnlock()

	points := m.history[key]
	out := make([]PodMetricPoint, len(points))
	copy(out, points)
	return out
}

// SweepStale removes history for pods no longer present in activePods (the
// current set of (namespace, pod_name) pairs observed in the cluster).
func (m *ClusterMetrics) SweepStale(activePods map[string]struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.history {
		if _, ok := activePods[key.Namespace+"/"+key.PodName]; !ok {
			delete(m.history, key)
		}
	}
}
