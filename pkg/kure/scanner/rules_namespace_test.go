package scanner

import (
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestEvaluateNamespaceSkipsSystemNamespace(t *testing.T) {
	snap := NamespaceSnapshot{Namespace: &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "kube-system"}}}

	if findings := EvaluateNamespace(snap); findings != nil {
		t.Errorf("expected no findings for a system namespace, got %v", findings)
	}
}

func TestEvaluateNamespaceFlagsMissingControls(t *testing.T) {
	snap := NamespaceSnapshot{
		Namespace: &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "team-a"}},
		HasPods:   true,
	}

	findings := EvaluateNamespace(snap)

	for _, want := range []string{"No NetworkPolicy", "No Pod Security Admission label", "No ResourceQuota", "No LimitRange"} {
		if !hasTitle(findings, want) {
			t.Errorf("expected finding %q, got %v", want, findings)
		}
	}
}

func TestEvaluateConfigMapSensitiveKeyAndValue(t *testing.T) {
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "app-config"},
		Data: map[string]string{
			"db_password": "anything",
			"greeting":    "api_key: sk-abc123",
		},
	}

	findings := EvaluateConfigMap(cm)

	if !hasTitle(findings, "Sensitive key name") {
		t.Error("expected Sensitive key name finding")
	}
	if !hasTitle(findings, "Sensitive value pattern") {
		t.Error("expected Sensitive value pattern finding")
	}
}

func TestEvaluatePersistentVolumeHostPath(t *testing.T) {
	pv := &corev1.PersistentVolume{
		ObjectMeta: metav1.ObjectMeta{Name: "pv-data"},
		Spec: corev1.PersistentVolumeSpec{
			PersistentVolumeSource: corev1.PersistentVolumeSource{
				HostPath: &corev1.HostPathVolumeSource{Path: "/data"},
			},
		},
	}

	findings := EvaluatePersistentVolume(pv)

	if !hasTitle(findings, "HostPath-backed PersistentVolume") {
		t.Error("expected HostPath-backed PersistentVolume finding")
	}
}
