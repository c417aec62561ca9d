package agent

import (
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestClassifySucceededIsNotFailure(t *testing.T) {
	pod := &corev1.Pod{Status: corev1.PodStatus{Phase: corev1.PodSucceeded}}
	if got := Classify(pod, time.Now(), DefaultGracePeriod); got.IsFailure {
		t.Errorf("Succeeded pod classified as failure: %+v", got)
	}
}

func TestClassifyFailedIsFailure(t *testing.T) {
	pod := &corev1.Pod{Status: corev1.PodStatus{Phase: corev1.PodFailed, Reason: "Evicted", Message: "node pressure"}}
	got := Classify(pod, time.Now(), DefaultGracePeriod)
	if !got.IsFailure || got.Reason != "Evicted" {
		t.Errorf("Classify() = %+v, want failure Evicted", got)
	}
}

func TestClassifyPendingWithinGraceIsNotFailure(t *testing.T) {
	now := time.Now()
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{CreationTimestamp: metav1.NewTime(now.Add(-30 * time.Second))},
		Status:     corev1.PodStatus{Phase: corev1.PodPending},
	}
	if got := Classify(pod, now, DefaultGracePeriod); got.IsFailure {
		t.Errorf("Pending pod within grace period classified as failure: %+v", got)
	}
}

func TestClassifyPendingPastGraceIsFailure(t *testing.T) {
	now := time.Now()
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{CreationTimestamp: metav1.NewTime(now.Add(-3 * time.Minute))},
		Status:     corev1.PodStatus{Phase: corev1.PodPending},
	}
	got := Classify(pod, now, DefaultGracePeriod)
	if !got.IsFailure || got.Reason != "PendingTimeout" {
		t.Errorf("Classify() = %+v, want PendingTimeout failure", got)
	}
}

func TestClassifyPendingDefinitiveReasonFailsImmediately(t *testing.T) {
	now := time.Now()
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{CreationTimestamp: metav1.NewTime(now)},
		Status: corev1.PodStatus{
			Phase: corev1.PodPending,
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: "app", State: corev1.ContainerState{Waiting: &corev1.ContainerStateWaiting{Reason: "ImagePullBackOff", Message: "manifest unknown"}}},
			},
		},
	}
	got := Classify(pod, now, DefaultGracePeriod)
	if !got.IsFailure || got.Reason != "ImagePullBackOff" {
		t.Errorf("Classify() = %+v, want immediate ImagePullBackOff failure", got)
	}
}

func TestClassifyRunningWithCrashLoopIsFailure(t *testing.T) {
	pod := &corev1.Pod{
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: "app", State: corev1.ContainerState{Waiting: &corev1.ContainerStateWaiting{Reason: "CrashLoopBackOff"}}},
			},
		},
	}
	got := Classify(pod, time.Now(), DefaultGracePeriod)
	if !got.IsFailure || got.Reason != "CrashLoopBackOff" {
		t.Errorf("Classify() = %+v, want CrashLoopBackOff failure", got)
	}
}

func TestClassifyRunningCleanCompletedTerminationIsNotFailure(t *testing.T) {
	pod := &corev1.Pod{
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: "init", State: corev1.ContainerState{Terminated: &corev1.ContainerStateTerminated{Reason: "Completed", ExitCode: 0}}},
			},
		},
	}
	if got := Classify(pod, time.Now(), DefaultGracePeriod); got.IsFailure {
		t.Errorf("Running pod with clean Completed termination classified as failure: %+v", got)
	}
}

func TestClassifyRunningNonZeroExitIsFailure(t *testing.T) {
	pod := &corev1.Pod{
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: "app", State: corev1.ContainerState{Terminated: &corev1.ContainerStateTerminated{Reason: "Error", ExitCode: 1, Message: "oom"}}},
			},
		},
	}
	got := Classify(pod, time.Now(), DefaultGracePeriod)
	if !got.IsFailure || got.Reason != "Error" {
		t.Errorf("Classify() = %+v, want Error failure", got)
	}
}
