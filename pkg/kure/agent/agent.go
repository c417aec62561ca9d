package agent

import (
	"context"
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/kure-project/kure-monitor/internal/telemetry"
)

// Agent runs the §4.3 pod-monitor loop: every CheckInterval, list all pods
// outside SystemNamespaces, classify each, report new or re-eligible
// failures, then reconcile pods the dedup map is tracking that have since
// disappeared from the cluster.
type Agent struct {
	clientset     *kubernetes.Clientset
	client        *BackendClient
	dedup         *Dedup
	logger        *slog.Logger
	checkInterval time.Duration
	gracePeriod   time.Duration
}

// New builds an Agent. dedupWindow and gracePeriod come from AgentConfig
// (KURE_DEDUP_WINDOW_MINUTES, KURE_PENDING_GRACE_SECONDS).
func New(clientset *kubernetes.Clientset, client *BackendClient, checkInterval, dedupWindow, gracePeriod time.Duration, logger *slog.Logger) *Agent {
	return &Agent{
		clientset:     clientset,
		client:        client,
		dedup:         NewDedup(dedupWindow),
		logger:        logger,
		checkInterval: checkInterval,
		gracePeriod:   gracePeriod,
	}
}

// Run blocks, ticking every CheckInterval until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.checkInterval)
	defer ticker.Stop()

	a.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Agent) tick(ctx context.Context) {
	start := time.Now()
	defer func() { telemetry.AgentLoopDuration.Observe(time.Since(start).Seconds()) }()

	pods, err := a.clientset.CoreV1().Pods("").List(ctx, metav1.ListOptions{})
	if err != nil {
		a.logger.Error("listing pods failed", "error", err)
		return
	}

	a.reportClusterMetrics(ctx, pods.Items)

	seen := make(map[string]bool, len(pods.Items))
	now := time.Now()

	for i := range pods.Items {
		pod := &pods.Items[i]
		if SystemNamespaces[pod.Namespace] {
			continue
		}
		seen[key(pod.Namespace, pod.Name)] = true

		cl := Classify(pod, now, a.gracePeriod)
		if !cl.IsFailure {
			continue
		}
		if !a.dedup.ShouldReport(pod.Namespace, pod.Name, now) {
			continue
		}

		fc := Collect(ctx, a.clientset, pod)
		if err := a.client.IngestPodFailure(ctx, pod.Namespace, pod.Name, pod.Spec.NodeName, string(pod.Status.Phase), cl, fc); err != nil {
			a.logger.Error("reporting pod failure failed", "namespace", pod.Namespace, "pod", pod.Name, "error", err)
			continue
		}
		a.dedup.MarkReported(pod.Namespace, pod.Name, now)
	}

	a.reconcile(ctx, seen)
}

// reportClusterMetrics aggregates the pods already listed this tick into a
// cluster-wide sample and posts it alongside a per-pod breakdown (§3's
// ClusterMetrics supplement). Failures here are logged and otherwise
// ignored — metrics reporting is an optional path (§7).
func (a *Agent) reportClusterMetrics(ctx context.Context, pods []corev1.Pod) {
	nodes, err := a.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		a.logger.Warn("listing nodes for cluster metrics failed", "error", err)
		return
	}

	podCount, cpuMillis, memoryBytes, perPod := clusterSnapshot(len(nodes.Items), pods)
	if err := a.client.ReportClusterMetrics(ctx, len(nodes.Items), podCount, cpuMillis, memoryBytes, perPod); err != nil {
		a.logger.Warn("reporting cluster metrics failed", "error", err)
	}
}

// reconcile drops dedup entries for pods that no longer exist in the
// cluster, notifying the backend so it can auto-resolve their active rows
// (§4.3).
func (a *Agent) reconcile(ctx context.Context, seen map[string]bool) {
	for _, tracked := range a.dedup.Tracked() {
		if seen[tracked] {
			continue
		}

		namespace, podName := splitKey(tracked)
		if err := a.client.DismissDeleted(ctx, namespace, podName); err != nil {
			a.logger.Error("dismiss-deleted failed", "namespace", namespace, "pod", podName, "error", err)
			continue
		}
		a.dedup.Forget(namespace, podName)
	}
}

func splitKey(k string) (namespace, pod string) {
	for i := 0; i < len(k); i++ {
		if k[i] == '/' {
			return k[:i], k[i+1:]
		}
	}
	return k, ""
}
