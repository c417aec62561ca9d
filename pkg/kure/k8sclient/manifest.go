package k8sclient

import (
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/yaml"

	"github.com/kure-project/kure-monitor/pkg/kure"
)

// SanitizeManifest renders pod as YAML with status and managed fields
// stripped (§4.3: "sanitized pod manifest (status and managed_fields
// removed...)"). Key casing is left as Kubernetes' own JSON tags produce it
// (already camelCase via sigs.k8s.io/yaml's JSON-then-YAML conversion), so
// no separate snake_case normalization pass is needed here.
func SanitizeManifest(pod *corev1.Pod) (string, error) {
	sanitized := pod.DeepCopy()
	sanitized.ManagedFields = nil
	sanitized.Status = corev1.PodStatus{}

	out, err := yaml.Marshal(sanitized)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ContainerStatusesOf normalizes a pod's container statuses into the
// structured form the §4.3 agent sends as the container_statuses field of
// its ingest request.
func ContainerStatusesOf(pod *corev1.Pod) []kure.ContainerStatus {
	out := make([]kure.ContainerStatus, 0, len(pod.Status.ContainerStatuses))
	for _, cs := range pod.Status.ContainerStatuses {
		entry := kure.ContainerStatus{
			Name:         cs.Name,
			Ready:        cs.Ready,
			RestartCount: cs.RestartCount,
		}
		switch {
		case cs.State.Waiting != nil:
			entry.State = "waiting"
			entry.Reason = cs.State.Waiting.Reason
			entry.Message = cs.State.Waiting.Message
		case cs.State.Terminated != nil:
			entry.State = "terminated"
			entry.Reason = cs.State.Terminated.Reason
			entry.Message = cs.State.Terminated.Message
		default:
			entry.State = "running"
		}
		out = append(out, entry)
	}
	return out
}
