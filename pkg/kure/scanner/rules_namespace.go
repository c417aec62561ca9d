package scanner

import (
	"regexp"

	corev1 "k8s.io/api/core/v1"

	"github.com/kure-project/kure-monitor/pkg/kure"
)

// NamespaceSnapshot is the set of cluster-scoped facts EvaluateNamespace
// needs about one namespace: whether it owns any pods, and its
// NetworkPolicy/ResourceQuota/LimitRange presence, gathered by the watch
// manager from the informer caches rather than live API calls.
type NamespaceSnapshot struct {
	Namespace        *corev1.Namespace
	HasPods          bool
	HasNetworkPolicy bool
	HasResourceQuota bool
	HasLimitRange    bool
}

// EvaluateNamespace runs the Namespace rules from §4.1.
func EvaluateNamespace(snap NamespaceSnapshot) []Finding {
	var findings []Finding
	ns := snap.Namespace
	name := ns.Name

	if IsSystemNamespace(name) {
		return nil
	}

	if snap.HasPods && !snap.HasNetworkPolicy {
		findings = append(findings, Finding{"Namespace", name, "No NetworkPolicy", kure.SeverityMedium, kure.CategorySecurity,
			"Namespace runs pods but defines no NetworkPolicy.", "Add a default-deny NetworkPolicy and allow only required traffic."})
	}

	enforce, hasEnforce := ns.Labels["pod-security.kubernetes.io/enforce"]
	if !hasEnforce {
		findings = append(findings, Finding{"Namespace", name, "No Pod Security Admission label", kure.SeverityMedium, kure.CategoryCompliance,
			"Namespace sets no pod-security.kubernetes.io/enforce label.", "Label the namespace with pod-security.kubernetes.io/enforce=restricted or baseline."})
	} else if enforce == "privileged" {
		findings = append(findings, Finding{"Namespace", name, "Pod Security Admission set to privileged", kure.SeverityHigh, kure.CategoryCompliance,
			"Namespace enforces the privileged Pod Security Standard.", "Lower pod-security.kubernetes.io/enforce to baseline or restricted."})
	}

	if !snap.HasResourceQuota {
		findings = append(findings, Finding{"Namespace", name, "No ResourceQuota", kure.SeverityLow, kure.CategoryBestPractice,
			"Namespace defines no ResourceQuota.", "Add a ResourceQuota to bound aggregate resource consumption."})
	}
	if !snap.HasLimitRange {
		findings = append(findings, Finding{"Namespace", name, "No LimitRange", kure.SeverityLow, kure.CategoryBestPractice,
			"Namespace defines no LimitRange.", "Add a LimitRange to enforce default container resource limits."})
	}

	return findings
}

// EvaluatePersistentVolume runs the PersistentVolume rules from §4.1.
func EvaluatePersistentVolume(pv *corev1.PersistentVolume) []Finding {
	var findings []Finding

	if pv.Spec.HostPath != nil {
		findings = append(findings, Finding{"PersistentVolume", pv.Name, "HostPath-backed PersistentVolume", hostPathSeverity(pv.Spec.HostPath.Path), kure.CategorySecurity,
			"PersistentVolume " + pv.Name + " is backed by hostPath " + pv.Spec.HostPath.Path + ".", "Use a network-attached or cloud-provisioned storage backend instead of hostPath."})
	}
	if pv.Spec.Local != nil {
		findings = append(findings, Finding{"PersistentVolume", pv.Name, "Local storage PersistentVolume", kure.SeverityLow, kure.CategoryBestPractice,
			"PersistentVolume " + pv.Name + " uses node-local storage.", "Confirm the workload tolerates node loss; local volumes do not survive node failure."})
	}

	return findings
}

var (
	sensitiveValueRe = regexp.MustCompile(`(?i)(password|api[_-]?key|secret[_-]?key|access[_-]?token)\s*[:=]\s*\S+`)
	pemPrivateKeyRe  = regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)
	awsSecretKeyRe   = regexp.MustCompile(`(?i)aws_secret_access_key\s*[:=]\s*\S+`)
)

// EvaluateConfigMap runs the ConfigMap rules from §4.1.
func EvaluateConfigMap(cm *corev1.ConfigMap) []Finding {
	var findings []Finding

	for key, val := range cm.Data {
		if containsSensitiveKeyFragment(key) {
			findings = append(findings, Finding{"ConfigMap", cm.Name, "Sensitive key name", kure.SeverityMedium, kure.CategorySecurity,
				"ConfigMap key " + key + " looks like it holds a credential.", "Move this value into a Secret instead of a ConfigMap."})
			continue
		}
		if sensitiveValueRe.MatchString(val) || awsSecretKeyRe.MatchString(val) {
			findings = append(findings, Finding{"ConfigMap", cm.Name, "Sensitive value pattern", kure.SeverityHigh, kure.CategorySecurity,
				"ConfigMap key " + key + " contains what looks like a credential assignment.", "Move this value into a Secret instead of a ConfigMap."})
			continue
		}
		if pemPrivateKeyRe.MatchString(val) {
			findings = append(findings, Finding{"ConfigMap", cm.Name, "Embedded private key", kure.SeverityCritical, kure.CategorySecurity,
				"ConfigMap key " + key + " contains a PEM private key block.", "Move the private key into a Secret and rotate it."})
		}
	}

	return findings
}
