package agent

import (
	corev1 "k8s.io/api/core/v1"
)

// podResourceSample is one pod's aggregated resource requests, the unit this
// agent reports per pod in lieu of requiring a metrics-server dependency the
// teacher's stack never carries.
type podResourceSample struct {
	Namespace   string
	PodName     string
	CPUMillis   float64
	MemoryBytes float64
}

// clusterSnapshot aggregates nodeCount and pods into the totals
// /api/metrics/cluster expects, plus one podResourceSample per pod (§3's
// ClusterMetrics supplement, grounded on
// original_source/agent/services/metrics_collector.py's resource-request
// sum, simplified: this reports requested capacity, not live usage, since
// wiring metrics.k8s.io would add a dependency no pack repo carries).
func clusterSnapshot(nodeCount int, pods []corev1.Pod) (podCount int, totalCPUMillis, totalMemoryBytes float64, perPod []podResourceSample) {
	perPod = make([]podResourceSample, 0, len(pods))
	for i := range pods {
		pod := &pods[i]
		if SystemNamespaces[pod.Namespace] {
			continue
		}
		podCount++

		cpuMillis, memoryBytes := podRequests(pod)
		totalCPUMillis += cpuMillis
		totalMemoryBytes += memoryBytes
		perPod = append(perPod, podResourceSample{
			Namespace:   pod.Namespace,
			PodName:     pod.Name,
			CPUMillis:   cpuMillis,
			MemoryBytes: memoryBytes,
		})
	}
	return podCount, totalCPUMillis, totalMemoryBytes, perPod
}

func podRequests(pod *corev1.Pod) (cpuMillis, memoryBytes float64) {
	for _, c := range pod.Spec.Containers {
		if cpu := c.Resources.Requests.Cpu(); cpu != nil {
			cpuMillis += float64(cpu.MilliValue())
		}
		if mem := c.Resources.Requests.Memory(); mem != nil {
			memoryBytes += float64(mem.Value())
		}
	}
	return cpuMillis, memoryBytes
}
