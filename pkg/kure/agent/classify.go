// Package agent implements the pod-failure monitor loop described in
// SPEC_FULL.md §4.3: classify pod health every check interval, suppress
// duplicate reports, collect failure context, and auto-resolve records once
// the underlying pod disappears.
package agent

import (
	"time"

	corev1 "k8s.io/api/core/v1"
)

// SystemNamespaces are always skipped by the agent (§4.3) — a narrower set
// than the scanner's, since it omits kyverno/kube-flannel but adds
// local-path-storage.
var SystemNamespaces = map[string]bool{
	"kube-system":        true,
	"kube-public":        true,
	"kube-node-lease":    true,
	"local-path-storage": true,
	"kure-system":        true,
}

// definitiveWaitingReasons cause an immediate failure report regardless of
// grace period (§4.3, spec.md §9's richer set supersedes the original).
var definitiveWaitingReasons = map[string]bool{
	"ImagePullBackOff":           true,
	"ErrImagePull":               true,
	"CrashLoopBackOff":           true,
	"CreateContainerConfigError": true,
	"InvalidImageName":           true,
	"ErrImageNeverPull":          true,
	"CreateContainerError":       true,
}

// DefaultGracePeriod is how long a Pending pod is tolerated before it is
// reported as a failure absent a definitive waiting reason.
const DefaultGracePeriod = 60 * time.Second

// Classification is the outcome of running Classify against one pod.
type Classification struct {
	IsFailure bool
	Reason    string
	Message   string
}

// Classify implements §4.3's classification rules against pod's current
// phase and container statuses. now and gracePeriod are passed in rather
// than read from time.Now() so tests can exercise grace-period boundaries
// deterministically.
func Classify(pod *corev1.Pod, now time.Time, gracePeriod time.Duration) Classification {
	switch pod.Status.Phase {
	case corev1.PodSucceeded:
		return Classification{}

	case corev1.PodFailed:
		return Classification{IsFailure: true, Reason: pod.Status.Reason, Message: pod.Status.Message}

	case corev1.PodPending:
		if reason, ok := firstDefinitiveWaitingReason(pod); ok {
			return Classification{IsFailure: true, Reason: reason, Message: waitingMessage(pod, reason)}
		}
		if now.Sub(pod.CreationTimestamp.Time) > gracePeriod {
			return Classification{IsFailure: true, Reason: "PendingTimeout", Message: "pod has been Pending longer than the grace period"}
		}
		return Classification{}

	case corev1.PodRunning:
		if reason, ok := firstDefinitiveWaitingReason(pod); ok {
			return Classification{IsFailure: true, Reason: reason, Message: waitingMessage(pod, reason)}
		}
		if name, reason, message, ok := firstNonZeroTermination(pod); ok {
			return Classification{IsFailure: true, Reason: reason, Message: name + ": " + message}
		}
		return Classification{}

	default:
		return Classification{}
	}
}

func firstDefinitiveWaitingReason(pod *corev1.Pod) (string, bool) {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Waiting != nil && definitiveWaitingReasons[cs.State.Waiting.Reason] {
			return cs.State.Waiting.Reason, true
		}
	}
	return "", false
}

func waitingMessage(pod *corev1.Pod, reason string) string {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Waiting != nil && cs.State.Waiting.Reason == reason {
			return cs.State.Waiting.Message
		}
	}
	return ""
}

// firstNonZeroTermination reports the first container terminated with a
// non-zero exit code whose reason is not "Completed" (§4.3: a Running pod
// only fails if a container's terminated state isn't a clean Completed).
func firstNonZeroTermination(pod *corev1.Pod) (name, reason, message string, found bool) {
	for _, cs := range pod.Status.ContainerStatuses {
		t := cs.State.Terminated
		if t == nil || t.Reason == "Completed" || t.ExitCode == 0 {
			continue
		}
		return cs.Name, t.Reason, t.Message, true
	}
	return "", "", "", false
}
