package scanner

import (
	"testing"

	"github.com/kure-project/kure-monitor/pkg/kure"
)

func TestExclusionsFilterByNamespace(t *testing.T) {
	ex := NewExclusions()
	ex.Replace([]kure.ExcludedNamespace{{Namespace: "staging"}}, nil, nil, nil)

	if !ex.IsNamespaceExcluded("staging") {
		t.Error("expected staging to be excluded")
	}
	if ex.IsNamespaceExcluded("prod") {
		t.Error("did not expect prod to be excluded")
	}

	got := ex.Filter("staging", "web", []Finding{{Title: "Host network enabled"}})
	if got != nil {
		t.Errorf("expected nil findings for an excluded namespace, got %v", got)
	}
}

func TestExclusionsFilterByRuleBaseName(t *testing.T) {
	ex := NewExclusions()
	ex.Replace(nil, nil, []kure.ExcludedRule{{RuleTitle: "Privilege escalation allowed"}}, nil)

	if !ex.IsRuleExcluded("any-ns", "Privilege escalation allowed: nginx") {
		t.Error("expected the container-scoped instance to match the excluded base rule")
	}

	got := ex.Filter("prod", "web", []Finding{
		{Title: "Privilege escalation allowed: nginx"},
		{Title: "Missing resource limits: nginx"},
	})
	if len(got) != 1 || got[0].Title != "Missing resource limits: nginx" {
		t.Errorf("expected only the non-excluded finding to survive, got %v", got)
	}
}

func TestExclusionsFilterByScopedRule(t *testing.T) {
	ex := NewExclusions()
	ex.Replace(nil, nil, []kure.ExcludedRule{{RuleTitle: "No TLS configured", Namespace: "dev"}}, nil)

	if !ex.IsRuleExcluded("dev", "No TLS configured") {
		t.Error("expected the namespace-scoped exclusion to match in dev")
	}
	if ex.IsRuleExcluded("prod", "No TLS configured") {
		t.Error("did not expect the dev-scoped exclusion to match in prod")
	}
}

func TestExclusionsTrustedRegistriesSnapshotIsACopy(t *testing.T) {
	ex := NewExclusions()
	ex.Replace(nil, nil, nil, []kure.TrustedRegistry{{Registry: "internal.example.com"}})

	snap := ex.TrustedRegistries()
	snap["mutated.example.com"] = true

	if ex.TrustedRegistries()["mutated.example.com"] {
		t.Error("mutating a returned snapshot must not affect the cache")
	}
}
