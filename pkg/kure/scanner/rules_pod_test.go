package scanner

import (
	"testing"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func hasTitle(findings []Finding, title string) bool {
	for _, f := range findings {
		if f.Title == title {
			return true
		}
	}
	return false
}

func TestEvaluatePodFlagsHostNamespaces(t *testing.T) {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "web"},
		Spec: corev1.PodSpec{
			HostNetwork: true,
			HostPID:     true,
			Containers:  []corev1.Container{{Name: "app", Image: "nginx:1.25"}},
		},
	}

	findings := EvaluatePod(pod, nil)

	if !hasTitle(findings, "Host network enabled") {
		t.Error("expected Host network enabled finding")
	}
	if !hasTitle(findings, "Host PID namespace enabled") {
		t.Error("expected Host PID namespace enabled finding")
	}
}

func TestEvaluatePodEmptyDirOverLimit(t *testing.T) {
	oversized := resource.MustParse("20Gi")
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "web"},
		Spec: corev1.PodSpec{
			Volumes: []corev1.Volume{
				{Name: "scratch", VolumeSource: corev1.VolumeSource{
					EmptyDir: &corev1.EmptyDirVolumeSource{SizeLimit: &oversized},
				}},
			},
			Containers: []corev1.Container{{Name: "app", Image: "nginx:1.25"}},
		},
	}

	findings := EvaluatePod(pod, nil)

	if !hasTitle(findings, "Oversized emptyDir volume") {
		t.Error("expected Oversized emptyDir volume finding")
	}
}

func TestEvaluateContainerTrustedRegistryAllowsPull(t *testing.T) {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "web"},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{Name: "app", Image: "internal.example.com/app:v1.2.3", ImagePullPolicy: corev1.PullAlways}},
		},
	}

	findings := evaluateContainer(pod, pod.Spec.Containers[0], map[string]bool{"internal.example.com": true})

	if hasTitle(findings, "Image from untrusted registry: app") {
		t.Error("did not expect untrusted registry finding for a registry on the trusted list")
	}
}

func TestEvaluateContainerUntrustedRegistryFlagged(t *testing.T) {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "web"},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{Name: "app", Image: "evil.example.com/app:v1", ImagePullPolicy: corev1.PullAlways}},
		},
	}

	findings := evaluateContainer(pod, pod.Spec.Containers[0], nil)

	if !hasTitle(findings, "Image from untrusted registry: app") {
		t.Error("expected untrusted registry finding")
	}
}

func TestEvaluateContainerDropsAllCapabilitiesSuppressesFinding(t *testing.T) {
	c := corev1.Container{
		Name:  "app",
		Image: "nginx:1.25",
		SecurityContext: &corev1.SecurityContext{
			Capabilities: &corev1.Capabilities{Drop: []corev1.Capability{"ALL"}},
		},
	}
	pod := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "web"}}

	findings := evaluateContainer(pod, c, nil)

	if hasTitle(findings, "Missing drop ALL capabilities: app") {
		t.Error("did not expect missing-drop-ALL finding when capabilities.drop includes ALL")
	}
}

func TestImageTagAndRegistryParsing(t *testing.T) {
	cases := []struct {
		image    string
		registry string
		tag      string
	}{
		{"nginx", "docker.io", "latest"},
		{"nginx:1.25", "docker.io", "1.25"},
		{"gcr.io/project/app:v2", "gcr.io", "v2"},
		{"registry:5000/app:v1", "registry:5000", "v1"},
		{"localhost/app", "localhost", "latest"},
	}
	for _, c := range cases {
		if got := imageRegistry(c.image); got != c.registry {
			t.Errorf("imageRegistry(%q) = %q, want %q", c.image, got, c.registry)
		}
		if got := imageTag(c.image); got != c.tag {
			t.Errorf("imageTag(%q) = %q, want %q", c.image, got, c.tag)
		}
	}
}
