package storage

import (
	"context"
	"testing"

	"github.com/kure-project/kure-monitor/pkg/kure"
)

func TestUpsertPodFailureDedup(t *testing.T) {
	ctx := context.Background()
	s := NewFake()

	in := PodFailureInput{Namespace: "prod", PodName: "web", Reason: "ImagePullBackOff"}

	first, isNew, err := s.UpsertPodFailure(ctx, in)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !isNew {
		t.Error("first upsert should be new")
	}

	second, isNew, err := s.UpsertPodFailure(ctx, in)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if isNew {
		t.Error("second upsert should not be new")
	}
	if second.ID != first.ID {
		t.Errorf("second upsert id = %d, want %d (same active row)", second.ID, first.ID)
	}

	rows, err := s.ListPodFailures(ctx, PodFailureFilter{})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one active row, got %d", len(rows))
	}
}

func TestUpdatePodFailureStatusTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewFake()

	pf, _, _ := s.UpsertPodFailure(ctx, PodFailureInput{Namespace: "prod", PodName: "web", Reason: "Error"})

	if _, err := s.UpdatePodFailureStatus(ctx, pf.ID, kure.PodStatusInvestigating, ""); err != nil {
		t.Fatalf("new->investigating: %v", err)
	}

	resolved, err := s.UpdatePodFailureStatus(ctx, pf.ID, kure.PodStatusResolved, "fixed")
	if err != nil {
		t.Fatalf("investigating->resolved: %v", err)
	}
	if resolved.ResolvedAt == nil {
		t.Error("resolved_at should be set")
	}

	if _, err := s.UpdatePodFailureStatus(ctx, pf.ID, kure.PodStatusInvestigating, ""); err == nil {
		t.Error("resolved->investigating should fail")
	}
}

func TestUpsertSecurityFindingDedupAndBroadcastSignal(t *testing.T) {
	ctx := context.Background()
	s := NewFake()

	in := SecurityFindingInput{Namespace: "prod", ResourceName: "web", Title: "Writable root filesystem: nginx"}

	_, isNew, err := s.UpsertSecurityFinding(ctx, in)
	if err != nil || !isNew {
		t.Fatalf("first ingest: isNew=%v err=%v, want isNew=true", isNew, err)
	}

	_, isNew, err = s.UpsertSecurityFinding(ctx, in)
	if err != nil || isNew {
		t.Fatalf("second ingest: isNew=%v err=%v, want isNew=false", isNew, err)
	}
}

func TestDeleteFindingsByRuleTitleBaseName(t *testing.T) {
	ctx := context.Background()
	s := NewFake()

	s.UpsertSecurityFinding(ctx, SecurityFindingInput{Namespace: "prod", ResourceName: "web", Title: "Writable root filesystem: nginx"})
	s.UpsertSecurityFinding(ctx, SecurityFindingInput{Namespace: "prod", ResourceName: "api", Title: "Privileged container: sidecar"})

	deleted, err := s.DeleteFindingsByRuleTitle(ctx, "Writable root filesystem", "")
	if err != nil {
		t.Fatalf("delete by rule title: %v", err)
	}
	if len(deleted) != 1 {
		t.Fatalf("expected 1 deleted finding, got %d", len(deleted))
	}

	remaining, _ := s.ListSecurityFindings(ctx, SecurityFindingFilter{})
	if len(remaining) != 1 {
		t.Fatalf("expected 1 remaining finding, got %d", len(remaining))
	}
}

func TestAddExcludedRuleIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewFake()

	first, inserted, err := s.AddExcludedRule(ctx, "Privileged container", "")
	if err != nil || !inserted {
		t.Fatalf("first add: inserted=%v err=%v", inserted, err)
	}

	second, inserted, err := s.AddExcludedRule(ctx, "Privileged container", "")
	if err != nil || inserted {
		t.Fatalf("second add: inserted=%v err=%v, want inserted=false", inserted, err)
	}
	if second.ID != first.ID {
		t.Errorf("second.ID = %d, want %d", second.ID, first.ID)
	}
}
