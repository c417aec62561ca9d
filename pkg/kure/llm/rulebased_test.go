package llm

import (
	"context"
	"strings"
	"testing"
)

func TestRuleBasedSolverKnownReasonUsesTemplate(t *testing.T) {
	s := NewRuleBasedSolver()
	got, err := s.Solve(context.Background(), FailureContext{Reason: "CrashLoopBackOff"})
	if err != nil {
		t.Fatalf("Solve returned error: %v", err)
	}
	if !strings.Contains(got, "readiness/liveness") {
		t.Errorf("expected CrashLoopBackOff template, got %q", got)
	}
}

func TestRuleBasedSolverFallsBackToContainerStates(t *testing.T) {
	s := NewRuleBasedSolver()
	got, err := s.Solve(context.Background(), FailureContext{
		Reason:          "SomeUnknownReason",
		ContainerStates: []string{"app: waiting (Unknown)"},
	})
	if err != nil {
		t.Fatalf("Solve returned error: %v", err)
	}
	if !strings.Contains(got, "app: waiting (Unknown)") {
		t.Errorf("expected container state fallback, got %q", got)
	}
}

func TestRuleBasedSolverFallsBackToGenericMessage(t *testing.T) {
	s := NewRuleBasedSolver()
	got, err := s.Solve(context.Background(), FailureContext{
		Namespace: "prod",
		PodName:   "web",
		Reason:    "SomeUnknownReason",
		Message:   "boom",
	})
	if err != nil {
		t.Fatalf("Solve returned error: %v", err)
	}
	if !strings.Contains(got, "prod/web") || !strings.Contains(got, "boom") {
		t.Errorf("expected generic fallback mentioning pod and message, got %q", got)
	}
}
