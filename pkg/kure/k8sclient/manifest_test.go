package k8sclient

import (
	"strings"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestSanitizeManifestStripsStatusAndManagedFields(t *testing.T) {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:          "web",
			Namespace:     "prod",
			ManagedFields: []metav1.ManagedFieldsEntry{{Manager: "kubectl"}},
		},
		Status: corev1.PodStatus{Phase: corev1.PodRunning},
	}

	out, err := SanitizeManifest(pod)
	if err != nil {
		t.Fatalf("SanitizeManifest() error = %v", err)
	}
	if strings.Contains(out, "managedFields") {
		t.Error("expected managedFields to be stripped")
	}
	if strings.Contains(out, "Running") {
		t.Error("expected status to be stripped")
	}
	if !strings.Contains(out, "web") {
		t.Error("expected pod name to survive sanitization")
	}
}

func TestContainerStatusesOf(t *testing.T) {
	pod := &corev1.Pod{
		Status: corev1.PodStatus{
			ContainerStatuses: []corev1.ContainerStatus{
				{
					Name:         "nginx",
					RestartCount: 3,
					State:        corev1.ContainerState{Waiting: &corev1.ContainerStateWaiting{Reason: "ImagePullBackOff", Message: "pull failed"}},
				},
				{
					Name:  "sidecar",
					Ready: true,
					State: corev1.ContainerState{Running: &corev1.ContainerStateRunning{}},
				},
			},
		},
	}

	got := ContainerStatusesOf(pod)
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Name != "nginx" || got[0].State != "waiting" || got[0].Reason != "ImagePullBackOff" || got[0].RestartCount != 3 {
		t.Errorf("unexpected nginx entry: %+v", got[0])
	}
	if got[1].Name != "sidecar" || got[1].State != "running" || !got[1].Ready {
		t.Errorf("unexpected sidecar entry: %+v", got[1])
	}
}
