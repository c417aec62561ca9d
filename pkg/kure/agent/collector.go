package agent

import (
	"context"
	"fmt"
	"sort"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/client-go/kubernetes"

	"github.com/kure-project/kure-monitor/pkg/kure"
	"github.com/kure-project/kure-monitor/pkg/kure/k8sclient"
)

// lastEventsLimit and lastLogLines implement §4.3's "last 5 events... last
// 50 log lines" data-collection contract.
const (
	lastEventsLimit = 5
	lastLogLines    = 50
)

// FailureContext is everything the agent gathers about one failing pod
// before reporting it to the backend.
type FailureContext struct {
	ContainerStates []kure.ContainerStatus
	RecentEvents    []kure.PodEvent
	Logs            string
	Manifest        string
}

// Collect gathers container statuses, the last events, the last log lines
// (tolerating a 403), and a sanitized manifest for pod (§4.3).
func Collect(ctx context.Context, clientset *kubernetes.Clientset, pod *corev1.Pod) FailureContext {
	fc := FailureContext{
		ContainerStates: k8sclient.ContainerStatusesOf(pod),
		RecentEvents:    collectEvents(ctx, clientset, pod),
	}

	if logs, err := k8sclient.TailLines(ctx, clientset, pod.Namespace, pod.Name, lastLogLines); err != nil {
		if !apierrors.IsForbidden(err) {
			fc.Logs = fmt.Sprintf("(log collection failed: %v)", err)
		}
	} else {
		fc.Logs = logs
	}

	if manifest, err := k8sclient.SanitizeManifest(pod); err == nil {
		fc.Manifest = manifest
	}

	return fc
}

func collectEvents(ctx context.Context, clientset *kubernetes.Clientset, pod *corev1.Pod) []kure.PodEvent {
	selector := fields.SelectorFromSet(fields.Set{
		"involvedObject.name":      pod.Name,
		"involvedObject.namespace": pod.Namespace,
		"involvedObject.kind":      "Pod",
	})

	list, err := clientset.CoreV1().Events(pod.Namespace).List(ctx, metav1.ListOptions{FieldSelector: selector.String()})
	if err != nil {
		return nil
	}
	return recentEvents(list.Items)
}

// recentEvents sorts events newest-first by LastTimestamp and truncates to
// lastEventsLimit, split out from collectEvents so the ordering/truncation
// logic is testable without a live API server.
func recentEvents(events []corev1.Event) []kure.PodEvent {
	sort.Slice(events, func(i, j int) bool {
		return events[i].LastTimestamp.After(events[j].LastTimestamp.Time)
	})
	if len(events) > lastEventsLimit {
		events = events[:lastEventsLimit]
	}

	out := make([]kure.PodEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, kure.PodEvent{
			Type:      ev.Type,
			Reason:    ev.Reason,
			Message:   ev.Message,
			Timestamp: ev.LastTimestamp.Time,
		})
	}
	return out
}
