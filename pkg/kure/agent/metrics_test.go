package agent

import (
	"testing"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func podWithRequests(namespace, name, cpu, memory string) corev1.Pod {
	return corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{
				Resources: corev1.ResourceRequirements{
					Requests: corev1.ResourceList{
						corev1.ResourceCPU:    resource.MustParse(cpu),
						corev1.ResourceMemory: resource.MustParse(memory),
					},
				},
			}},
		},
	}
}

func TestClusterSnapshotSumsRequestsAndSkipsSystemNamespaces(t *testing.T) {
	pods := []corev1.Pod{
		podWithRequests("default", "a", "100m", "128Mi"),
		podWithRequests("default", "b", "250m", "256Mi"),
		podWithRequests("kube-system", "c", "1", "1Gi"),
	}

	podCount, cpuMillis, memoryBytes, perPod := clusterSnapshot(3, pods)

	if podCount != 2 {
		t.Fatalf("podCount = %d, want 2", podCount)
	}
	if cpuMillis != 350 {
		t.Fatalf("cpuMillis = %v, want 350", cpuMillis)
	}
	wantMemory := float64(128*1024*1024 + 256*1024*1024)
	if memoryBytes != wantMemory {
		t.Fatalf("memoryBytes = %v, want %v", memoryBytes, wantMemory)
	}
	if len(perPod) != 2 {
		t.Fatalf("len(perPod) = %d, want 2", len(perPod))
	}
}

func TestClusterSnapshotEmpty(t *testing.T) {
	podCount, cpuMillis, memoryBytes, perPod := clusterSnapshot(0, nil)
	if podCount != 0 || cpuMillis != 0 || memoryBytes != 0 || len(perPod) != 0 {
		t.Fatalf("expected all-zero result for empty input, got %d %v %v %v", podCount, cpuMillis, memoryBytes, perPod)
	}
}
