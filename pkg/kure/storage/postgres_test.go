package storage

import (
	"strings"
	"testing"
)

// TestBuildListPodFailuresQueryPlaceholdersMatchArgs guards against the
// placeholder numbering drifting from len(args) as filters are added —
// a mismatch there sends Postgres a parameter-count error at runtime.
func TestBuildListPodFailuresQueryPlaceholdersMatchArgs(t *testing.T) {
	cases := []struct {
		name        string
		filter      PodFailureFilter
		wantArgs    []any
		wantClauses []string
	}{
		{
			name:        "no filters",
			filter:      PodFailureFilter{},
			wantArgs:    nil,
			wantClauses: nil,
		},
		{
			name:        "namespace only",
			filter:      PodFailureFilter{Namespace: "prod"},
			wantArgs:    []any{"prod"},
			wantClauses: []string{"namespace = $1"},
		},
		{
			name:        "status only",
			filter:      PodFailureFilter{Status: "investigating"},
			wantArgs:    []any{"investigating"},
			wantClauses: []string{"status = $1"},
		},
		{
			name:        "namespace and status",
			filter:      PodFailureFilter{Namespace: "prod", Status: "investigating"},
			wantArgs:    []any{"prod", "investigating"},
			wantClauses: []string{"namespace = $1", "status = $2"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			query, args := buildListPodFailuresQuery(tc.filter)

			if len(args) != len(tc.wantArgs) {
				t.Fatalf("args = %v, want %v", args, tc.wantArgs)
			}
			for i, want := range tc.wantArgs {
				if args[i] != want {
					t.Errorf("args[%d] = %v, want %v", i, args[i], want)
				}
			}
			for _, clause := range tc.wantClauses {
				if !strings.Contains(query, clause) {
					t.Errorf("query missing clause %q:\n%s", clause, query)
				}
			}
			// Every placeholder referenced in the query must be within args' bounds.
			for i := 1; i <= len(args); i++ {
				placeholder := "$" + string(rune('0'+i))
				if !strings.Contains(query, placeholder) {
					t.Errorf("query does not reference %s despite %d args:\n%s", placeholder, len(args), query)
				}
			}
			if strings.Contains(query, "$0") {
				t.Error("query must not reference $0")
			}
		})
	}
}

func TestBuildListPodFailuresQueryDismissalFilters(t *testing.T) {
	query, args := buildListPodFailuresQuery(PodFailureFilter{DismissedOnly: true})
	if len(args) != 0 {
		t.Fatalf("expected no args for DismissedOnly, got %v", args)
	}
	if !strings.Contains(query, "status IN ('resolved', 'ignored')") {
		t.Errorf("expected dismissed-only clause, got:\n%s", query)
	}

	query, args = buildListPodFailuresQuery(PodFailureFilter{})
	if len(args) != 0 {
		t.Fatalf("expected no args for default filter, got %v", args)
	}
	if !strings.Contains(query, "status IN ('new', 'investigating')") {
		t.Errorf("expected default active-only clause, got:\n%s", query)
	}
}
