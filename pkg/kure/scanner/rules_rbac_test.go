package scanner

import (
	"testing"

	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestEvaluateClusterRoleWildcard(t *testing.T) {
	cr := &rbacv1.ClusterRole{
		ObjectMeta: metav1.ObjectMeta{Name: "god-mode"},
		Rules: []rbacv1.PolicyRule{
			{APIGroups: []string{"*"}, Resources: []string{"*"}, Verbs: []string{"*"}},
		},
	}

	findings := EvaluateClusterRole(cr)

	if !hasTitle(findings, "Cluster-admin equivalent rule") {
		t.Error("expected Cluster-admin equivalent rule finding")
	}
}

func TestEvaluateClusterRoleSecretsRead(t *testing.T) {
	cr := &rbacv1.ClusterRole{
		ObjectMeta: metav1.ObjectMeta{Name: "reader"},
		Rules: []rbacv1.PolicyRule{
			{Resources: []string{"secrets"}, Verbs: []string{"get", "list"}},
		},
	}

	findings := EvaluateClusterRole(cr)

	if !hasTitle(findings, "Read access to Secrets") {
		t.Error("expected Read access to Secrets finding")
	}
}

func TestEvaluateClusterRoleBindingAnonymous(t *testing.T) {
	crb := &rbacv1.ClusterRoleBinding{
		ObjectMeta: metav1.ObjectMeta{Name: "anon-binding"},
		RoleRef:    rbacv1.RoleRef{Name: "cluster-admin"},
		Subjects:   []rbacv1.Subject{{Kind: rbacv1.UserKind, Name: "system:anonymous"}},
	}

	findings := EvaluateClusterRoleBinding(crb)

	if !hasTitle(findings, "Binds anonymous user") {
		t.Error("expected Binds anonymous user finding")
	}
}

func TestEvaluateClusterRoleBindingServiceAccountHighPrivilege(t *testing.T) {
	crb := &rbacv1.ClusterRoleBinding{
		ObjectMeta: metav1.ObjectMeta{Name: "sa-binding"},
		RoleRef:    rbacv1.RoleRef{Name: "cluster-admin"},
		Subjects:   []rbacv1.Subject{{Kind: rbacv1.ServiceAccountKind, Name: "ci-runner", Namespace: "ci"}},
	}

	findings := EvaluateClusterRoleBinding(crb)

	if !hasTitle(findings, "ServiceAccount bound to high-privilege role") {
		t.Error("expected ServiceAccount bound to high-privilege role finding")
	}
}
