package kure

import (
	"encoding/json"
	"time"
)

// Pod failure statuses. resolved is terminal; ignored -> new is the only way
// back out of a non-active status.
const (
	PodStatusNew           = "new"
	PodStatusInvestigating = "investigating"
	PodStatusResolved      = "resolved"
	PodStatusIgnored       = "ignored"
)

// podTransitions enumerates the allowed status transition graph for
// PodFailure. A move not present here is rejected as InvalidTransition.
var podTransitions = map[string]map[string]bool{
	PodStatusNew:           {PodStatusInvestigating: true, PodStatusResolved: true, PodStatusIgnored: true},
	PodStatusInvestigating: {PodStatusResolved: true, PodStatusIgnored: true},
	PodStatusIgnored:       {PodStatusNew: true},
	PodStatusResolved:      {},
}

// CanTransitionPodStatus reports whether moving a PodFailure from from to to
// is allowed by the lifecycle graph in the data model.
func CanTransitionPodStatus(from, to string) bool {
	if from == to {
		return false
	}
	next, ok := podTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// IsActivePodStatus reports whether status counts toward the "at most one
// active row per pod" invariant.
func IsActivePodStatus(status string) bool {
	return status == PodStatusNew || status == PodStatusInvestigating
}

// ContainerStatus is one entry of a PodFailure's normalized container status
// sequence.
type ContainerStatus struct {
	Name         string `json:"name"`
	Ready        bool   `json:"ready"`
	RestartCount int32  `json:"restart_count"`
	State        string `json:"state"` // running, waiting, terminated
	Reason       string `json:"reason,omitempty"`
	Message      string `json:"message,omitempty"`
	ExitCode     *int32 `json:"exit_code,omitempty"`
}

// PodEvent is a trimmed Kubernetes event captured alongside a PodFailure.
type PodEvent struct {
	Type      string    `json:"type"`
	Reason    string    `json:"reason"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PodFailure is a captured snapshot of a pod in an unhealthy state, plus
// remediation text. Identity for the "at most one active row" invariant is
// (namespace, pod_name, status in {new, investigating}).
type PodFailure struct {
	ID              int64             `json:"id"`
	Namespace       string            `json:"namespace"`
	PodName         string            `json:"pod_name"`
	Reason          string            `json:"reason"`
	Message         string            `json:"message"`
	NodeName        string            `json:"node_name"`
	Phase           string            `json:"phase"`
	ContainerStatus []ContainerStatus `json:"container_statuses"`
	RecentEvents    []PodEvent        `json:"recent_events"`
	Logs            string            `json:"logs"`
	Manifest        string            `json:"manifest"`
	Solution        string            `json:"solution"`
	Status          string            `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	ResolvedAt      *time.Time        `json:"resolved_at,omitempty"`
	ResolutionNote  string            `json:"resolution_note,omitempty"`
}

// Severity levels for SecurityFinding, in descending order of importance.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Finding categories.
const (
	CategorySecurity     = "Security"
	CategoryBestPractice = "Best Practice"
	CategoryCompliance   = "Compliance"
)

// SecurityFinding is a detected rule violation on a Kubernetes resource.
// Dedup identity is (namespace, resource_name, title, dismissed=false).
type SecurityFinding struct {
	ID           int64     `json:"id"`
	Namespace    string    `json:"namespace"`
	ResourceType string    `json:"resource_type"`
	ResourceName string    `json:"resource_name"`
	Title        string    `json:"title"`
	Severity     string    `json:"severity"`
	Category     string    `json:"category"`
	Description  string    `json:"description"`
	Remediation  string    `json:"remediation"`
	Manifest     string    `json:"manifest"`
	Timestamp    time.Time `json:"timestamp"`
	Dismissed    bool      `json:"dismissed"`
}

// ExcludedNamespace suppresses all findings within a namespace.
type ExcludedNamespace struct {
	ID        int64     `json:"id"`
	Namespace string    `json:"namespace"`
	CreatedAt time.Time `json:"created_at"`
}

// ExcludedPod suppresses all failures/findings for one pod.
type ExcludedPod struct {
	ID        int64     `json:"id"`
	Namespace string    `json:"namespace"`
	PodName   string    `json:"pod_name"`
	CreatedAt time.Time `json:"created_at"`
}

// ExcludedRule suppresses findings matching a rule title, globally when
// Namespace is empty or scoped to one namespace otherwise. Unique on
// (rule_title, namespace).
type ExcludedRule struct {
	ID        int64     `json:"id"`
	RuleTitle string    `json:"rule_title"`
	Namespace string    `json:"namespace"` // "" = global
	CreatedAt time.Time `json:"created_at"`
}

// MatchesRuleTitle implements the base-name rule matching contract:
// excluded == title || title.startsWith(excluded + ": ").
func (r ExcludedRule) MatchesRuleTitle(title string) bool {
	return BaseNameMatches(r.RuleTitle, title)
}

// BaseNameMatches reports whether title is an instance of the base rule
// named excluded, per the spec's base-name rule matching contract. Both the
// scanner's exclusion cache and the backend's cascading-delete queries rely
// on this exact predicate.
func BaseNameMatches(excluded, title string) bool {
	if excluded == title {
		return true
	}
	prefix := excluded + ": "
	return len(title) > len(prefix) && title[:len(prefix)] == prefix
}

// TrustedRegistry is an admin-added image registry host, stored lowercased.
type TrustedRegistry struct {
	ID        int64     `json:"id"`
	Registry  string    `json:"registry"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationSetting holds opaque per-provider configuration.
type NotificationSetting struct {
	Provider string          `json:"provider"`
	Config   json.RawMessage `json:"config"`
	Enabled  bool            `json:"enabled"`
}

// LLMConfig is a singleton row; writing it replaces any existing config.
type LLMConfig struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
}

// AppSetting keys understood by the retention sweeper.
const (
	SettingHistoryRetentionMinutes = "history_retention_minutes"
	SettingIgnoredRetentionMinutes = "ignored_retention_minutes"

	// MaxRetentionMinutes is the maximum allowed retention bound (30 days).
	MaxRetentionMinutes = 43200
)

// ValidateRetentionMinutes enforces the 0..MaxRetentionMinutes bound from §3.
func ValidateRetentionMinutes(minutes int) error {
	if minutes < 0 || minutes > MaxRetentionMinutes {
		return ValidationError("retention minutes must be between 0 and %d", MaxRetentionMinutes)
	}
	return nil
}

// PodMetricPoint is one sample in a pod's bounded in-memory history ring.
type PodMetricPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	CPUMillis   float64   `json:"cpu_millis"`
	MemoryBytes float64   `json:"memory_bytes"`
}

// HistoryRingSize bounds the in-memory per-pod metric history.
const HistoryRingSize = 15
