package scanner

import (
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"

	"github.com/kure-project/kure-monitor/pkg/kure"
)

// EvaluateDeployment runs the Deployment rules from §4.1.
func EvaluateDeployment(d *appsv1.Deployment) []Finding {
	var findings []Finding

	replicas := int32(1)
	if d.Spec.Replicas != nil {
		replicas = *d.Spec.Replicas
	}

	if replicas < 2 {
		findings = append(findings, Finding{"Deployment", d.Name, "Single replica deployment", kure.SeverityLow, kure.CategoryBestPractice,
			"Deployment runs fewer than 2 replicas.", "Scale to at least 2 replicas for availability."})
	} else if d.Spec.Template.Spec.Affinity == nil || d.Spec.Template.Spec.Affinity.PodAntiAffinity == nil {
		findings = append(findings, Finding{"Deployment", d.Name, "Missing pod anti-affinity", kure.SeverityLow, kure.CategoryBestPractice,
			"Deployment has 2+ replicas but no pod anti-affinity rule.", "Add a podAntiAffinity rule to spread replicas across nodes."})
	}

	return findings
}

// EvaluateService runs the Service rules from §4.1.
func EvaluateService(s *corev1.Service) []Finding {
	var findings []Finding

	switch s.Spec.Type {
	case corev1.ServiceTypeLoadBalancer:
		findings = append(findings, Finding{"Service", s.Name, "LoadBalancer service type", kure.SeverityMedium, kure.CategorySecurity,
			"Service exposes a cloud load balancer.", "Confirm external exposure is intended; prefer ClusterIP + Ingress when possible."})
	case corev1.ServiceTypeNodePort:
		findings = append(findings, Finding{"Service", s.Name, "NodePort service type", kure.SeverityMedium, kure.CategorySecurity,
			"Service opens a port on every node.", "Prefer ClusterIP + Ingress unless NodePort is specifically required."})
	case corev1.ServiceTypeExternalName:
		findings = append(findings, Finding{"Service", s.Name, "ExternalName service type", kure.SeverityLow, kure.CategoryBestPractice,
			"Service resolves to an external DNS name.", "Confirm the external dependency is trusted and monitored."})
	}

	return findings
}

// dangerousIngressAnnotations are the nginx-ingress annotations §4.1 flags.
var dangerousIngressAnnotations = []string{
	"nginx.ingress.kubernetes.io/ssl-passthrough",
	"nginx.ingress.kubernetes.io/backend-protocol",
	"nginx.ingress.kubernetes.io/configuration-snippet",
	"nginx.ingress.kubernetes.io/server-snippet",
}

// EvaluateIngress runs the Ingress rules from §4.1.
func EvaluateIngress(ing *networkingv1.Ingress) []Finding {
	var findings []Finding

	if len(ing.Spec.TLS) == 0 {
		findings = append(findings, Finding{"Ingress", ing.Name, "No TLS configured", kure.SeverityHigh, kure.CategorySecurity,
			"Ingress has no TLS block.", "Add a tls entry with a valid secretName."})
	}

	for _, rule := range ing.Spec.Rules {
		if rule.Host == "" || rule.Host == "*" || len(rule.Host) > 0 && rule.Host[0] == '*' {
			findings = append(findings, Finding{"Ingress", ing.Name, "Wildcard host", kure.SeverityMedium, kure.CategorySecurity,
				"Ingress rule uses a wildcard or empty host.", "Scope the Ingress to explicit hostnames."})
			break
		}
	}

	for _, ann := range dangerousIngressAnnotations {
		if _, ok := ing.Annotations[ann]; ok {
			findings = append(findings, Finding{"Ingress", ing.Name, "Dangerous annotation: " + ann, kure.SeverityMedium, kure.CategorySecurity,
				"Ingress sets " + ann + ".", "Remove or tightly scope this annotation; it can bypass standard request handling."})
		}
	}

	return findings
}

// EvaluateCronJob runs the CronJob rules from §4.1.
func EvaluateCronJob(cj *batchv1.CronJob) []Finding {
	var findings []Finding

	tmpl := cj.Spec.JobTemplate.Spec.Template.Spec
	if tmpl.HostNetwork {
		findings = append(findings, Finding{"CronJob", cj.Name, "Host network enabled", kure.SeverityHigh, kure.CategorySecurity,
			"CronJob pod template shares the host's network namespace.", "Remove hostNetwork: true from the job template."})
	}
	for _, c := range tmpl.Containers {
		if c.SecurityContext != nil && c.SecurityContext.Privileged != nil && *c.SecurityContext.Privileged {
			findings = append(findings, Finding{"CronJob", cj.Name, containerScopedTitle("Privileged container", c.Name), kure.SeverityCritical, kure.CategorySecurity,
				"CronJob container " + c.Name + " runs privileged.", "Remove securityContext.privileged: true from the job template."})
		}
	}
	if cj.Spec.SuccessfulJobsHistoryLimit != nil && *cj.Spec.SuccessfulJobsHistoryLimit > 10 {
		findings = append(findings, Finding{"CronJob", cj.Name, "Excessive successful job history", kure.SeverityLow, kure.CategoryBestPractice,
			"successfulJobsHistoryLimit exceeds 10.", "Lower successfulJobsHistoryLimit to bound stored Job objects."})
	}

	return findings
}
