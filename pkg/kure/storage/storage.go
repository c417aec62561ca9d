// Package storage collapses the inheritance-based database backends of the
// original implementation into a single Storage interface (per SPEC_FULL.md
// §9): one production implementation (Postgres, storage.go/postgres.go) and
// an in-memory fake used by the handler/scanner/agent tests.
package storage

import (
	"context"
	"time"

	"github.com/kure-project/kure-monitor/pkg/kure"
)

// PodFailureInput is the set of fields an ingest carries for a PodFailure
// upsert. Fields the store itself derives (ID, CreatedAt, Status) are not
// part of the input.
type PodFailureInput struct {
	Namespace       string
	PodName         string
	Reason          string
	Message         string
	NodeName        string
	Phase           string
	ContainerStatus []kure.ContainerStatus
	RecentEvents    []kure.PodEvent
	Logs            string
	Manifest        string
	Solution        string
}

// PodFailureFilter narrows ListPodFailures.
type PodFailureFilter struct {
	Namespace      string // "" = all
	Status         string // "" = all
	DismissedOnly  bool
	IncludeDismiss bool
}

// SecurityFindingInput is the set of fields an ingest carries for a
// SecurityFinding upsert.
type SecurityFindingInput struct {
	Namespace    string
	ResourceType string
	ResourceName string
	Title        string
	Severity     string
	Category     string
	Description  string
	Remediation  string
	Manifest     string
}

// SecurityFindingFilter narrows ListSecurityFindings.
type SecurityFindingFilter struct {
	Namespace      string
	Severity       string
	DismissedOnly  bool
	IncludeDismiss bool
}

// Storage is the single persistence port used by the backend. All writes
// that must cascade (exclusions deleting findings, dismiss-deleted resolving
// pod failures) return the rows they affected so the caller can broadcast
// one event per row, per §4.2's "cascading deletes" contract.
type Storage interface {
	// Pod failures.
	UpsertPodFailure(ctx context.Context, in PodFailureInput) (pf *kure.PodFailure, isNew bool, err error)
	GetPodFailure(ctx context.Context, id int64) (*kure.PodFailure, error)
	ListPodFailures(ctx context.Context, filter PodFailureFilter) ([]kure.PodFailure, error)
	UpdatePodFailureStatus(ctx context.Context, id int64, newStatus, note string) (*kure.PodFailure, error)
	DeletePodFailureRecord(ctx context.Context, id int64) error
	DismissDeletedPod(ctx context.Context, namespace, podName string) ([]kure.PodFailure, error)
	DeletePodFailuresByNamespace(ctx context.Context, namespace string) ([]kure.PodFailure, error)
	DeletePodFailureByPod(ctx context.Context, namespace, podName string) ([]kure.PodFailure, error)
	CleanupOldResolvedPods(ctx context.Context, retentionMinutes int) (int64, error)
	CleanupOldIgnoredPods(ctx context.Context, retentionMinutes int) (int64, error)

	// Security findings.
	UpsertSecurityFinding(ctx context.Context, in SecurityFindingInput) (sf *kure.SecurityFinding, isNew bool, err error)
	ListSecurityFindings(ctx context.Context, filter SecurityFindingFilter) ([]kure.SecurityFinding, error)
	ClearSecurityFindings(ctx context.Context) (int64, error)
	DeleteFindingsByResource(ctx context.Context, resourceType, namespace, name string) ([]kure.SecurityFinding, error)
	DeleteFindingsByNamespace(ctx context.Context, namespace string) ([]kure.SecurityFinding, error)
	DeleteFindingsByRuleTitle(ctx context.Context, ruleTitle, namespace string) ([]kure.SecurityFinding, error)

	// Exclusions & registries.
	AddExcludedNamespace(ctx context.Context, namespace string) (en *kure.ExcludedNamespace, inserted bool, err error)
	ListExcludedNamespaces(ctx context.Context) ([]kure.ExcludedNamespace, error)
	DeleteExcludedNamespace(ctx context.Context, id int64) (*kure.ExcludedNamespace, error)

	AddExcludedPod(ctx context.Context, namespace, podName string) (ep *kure.ExcludedPod, inserted bool, err error)
	ListExcludedPods(ctx context.Context) ([]kure.ExcludedPod, error)
	DeleteExcludedPod(ctx context.Context, id int64) (*kure.ExcludedPod, error)

	AddExcludedRule(ctx context.Context, ruleTitle, namespace string) (er *kure.ExcludedRule, inserted bool, err error)
	ListExcludedRules(ctx context.Context) ([]kure.ExcludedRule, error)
	DeleteExcludedRule(ctx context.Context, id int64) (*kure.ExcludedRule, error)

	AddTrustedRegistry(ctx context.Context, registry string) (tr *kure.TrustedRegistry, inserted bool, err error)
	ListTrustedRegistries(ctx context.Context) ([]kure.TrustedRegistry, error)
	DeleteTrustedRegistry(ctx context.Context, id int64) (*kure.TrustedRegistry, error)

	// Settings.
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	GetNotificationSetting(ctx context.Context, provider string) (*kure.NotificationSetting, error)
	SetNotificationSetting(ctx context.Context, setting kure.NotificationSetting) error

	GetLLMConfig(ctx context.Context) (*kure.LLMConfig, error)
	SetLLMConfig(ctx context.Context, cfg kure.LLMConfig) error
}

// now is overridable in tests that need deterministic timestamps.
var now = func() time.Time { return time.Now().UTC() }
