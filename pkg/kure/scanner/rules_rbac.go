package scanner

import (
	rbacv1 "k8s.io/api/rbac/v1"

	"github.com/kure-project/kure-monitor/pkg/kure"
)

func ruleIsWildcard(r rbacv1.PolicyRule) bool {
	return containsStar(r.Resources) && containsStar(r.Verbs)
}

func containsStar(values []string) bool {
	for _, v := range values {
		if v == "*" {
			return true
		}
	}
	return false
}

func containsAny(values []string, targets ...string) bool {
	for _, v := range values {
		for _, t := range targets {
			if v == t {
				return true
			}
		}
	}
	return false
}

func evaluateRules(resourceType, name string, rules []rbacv1.PolicyRule) []Finding {
	var findings []Finding

	for _, r := range rules {
		if ruleIsWildcard(r) {
			findings = append(findings, Finding{resourceType, name, "Cluster-admin equivalent rule", kure.SeverityCritical, kure.CategorySecurity,
				resourceType + " " + name + " grants */* across all resources and verbs.", "Scope the rule to specific resources and verbs."})
			continue
		}
		if containsAny(r.Resources, "secrets") && containsAny(r.Verbs, "get", "list", "watch", "*") {
			findings = append(findings, Finding{resourceType, name, "Read access to Secrets", kure.SeverityHigh, kure.CategorySecurity,
				resourceType + " " + name + " can read Secrets.", "Narrow the rule to named secrets or remove the verb."})
		}
		if containsAny(r.Resources, "pods/exec") {
			findings = append(findings, Finding{resourceType, name, "Pod exec access", kure.SeverityHigh, kure.CategorySecurity,
				resourceType + " " + name + " can exec into pods.", "Remove pods/exec unless interactive debugging is required."})
		}
		if containsAny(r.Resources, "pods") && containsAny(r.Verbs, "create") {
			findings = append(findings, Finding{resourceType, name, "Pod creation access", kure.SeverityMedium, kure.CategorySecurity,
				resourceType + " " + name + " can create pods.", "Scope pod creation to a dedicated controller ServiceAccount."})
		}
	}

	return findings
}

// EvaluateClusterRole runs the ClusterRole rules from §4.1.
func EvaluateClusterRole(cr *rbacv1.ClusterRole) []Finding {
	return evaluateRules("ClusterRole", cr.Name, cr.Rules)
}

// EvaluateRole runs the Role rules from §4.1.
func EvaluateRole(r *rbacv1.Role) []Finding {
	return evaluateRules("Role", r.Name, r.Rules)
}

var highPrivilegeClusterRoles = map[string]bool{
	"cluster-admin": true,
	"admin":         true,
}

// EvaluateClusterRoleBinding runs the ClusterRoleBinding rules from §4.1.
func EvaluateClusterRoleBinding(crb *rbacv1.ClusterRoleBinding) []Finding {
	var findings []Finding

	for _, s := range crb.Subjects {
		if s.Kind == rbacv1.UserKind && (s.Name == "system:anonymous" || s.Name == "system:unauthenticated") {
			findings = append(findings, Finding{"ClusterRoleBinding", crb.Name, "Binds anonymous user", kure.SeverityCritical, kure.CategorySecurity,
				"ClusterRoleBinding " + crb.Name + " grants " + crb.RoleRef.Name + " to " + s.Name + ".", "Remove the binding; anonymous/unauthenticated users must never hold cluster roles."})
		}
		if s.Kind == rbacv1.ServiceAccountKind && highPrivilegeClusterRoles[crb.RoleRef.Name] {
			findings = append(findings, Finding{"ClusterRoleBinding", crb.Name, "ServiceAccount bound to high-privilege role", kure.SeverityHigh, kure.CategorySecurity,
				"ClusterRoleBinding " + crb.Name + " grants " + crb.RoleRef.Name + " to ServiceAccount " + s.Namespace + "/" + s.Name + ".", "Replace with a least-privilege Role/ClusterRole scoped to the workload's needs."})
		}
	}

	return findings
}
