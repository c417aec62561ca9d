package scanner

import (
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func int32ptr(n int32) *int32 { return &n }

func TestEvaluateDeploymentSingleReplica(t *testing.T) {
	d := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "web"},
		Spec:       appsv1.DeploymentSpec{Replicas: int32ptr(1)},
	}

	findings := EvaluateDeployment(d)

	if !hasTitle(findings, "Single replica deployment") {
		t.Error("expected Single replica deployment finding")
	}
}

func TestEvaluateDeploymentMissingAntiAffinity(t *testing.T) {
	d := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "web"},
		Spec:       appsv1.DeploymentSpec{Replicas: int32ptr(3)},
	}

	findings := EvaluateDeployment(d)

	if !hasTitle(findings, "Missing pod anti-affinity") {
		t.Error("expected Missing pod anti-affinity finding")
	}
}

func TestEvaluateIngressNoTLSAndWildcardHost(t *testing.T) {
	ing := &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{Name: "web"},
		Spec: networkingv1.IngressSpec{
			Rules: []networkingv1.IngressRule{{Host: "*.example.com"}},
		},
	}

	findings := EvaluateIngress(ing)

	if !hasTitle(findings, "No TLS configured") {
		t.Error("expected No TLS configured finding")
	}
	if !hasTitle(findings, "Wildcard host") {
		t.Error("expected Wildcard host finding")
	}
}

func TestEvaluateIngressDangerousAnnotation(t *testing.T) {
	ing := &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name:        "web",
			Annotations: map[string]string{"nginx.ingress.kubernetes.io/server-snippet": "proxy_pass http://evil;"},
		},
		Spec: networkingv1.IngressSpec{
			TLS:   []networkingv1.IngressTLS{{Hosts: []string{"example.com"}}},
			Rules: []networkingv1.IngressRule{{Host: "example.com"}},
		},
	}

	findings := EvaluateIngress(ing)

	if !hasTitle(findings, "Dangerous annotation: nginx.ingress.kubernetes.io/server-snippet") {
		t.Error("expected dangerous annotation finding")
	}
}
