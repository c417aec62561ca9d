package storage

import (
	"context"
	"sync"
	"time"

	"github.com/kure-project/kure-monitor/pkg/kure"
)

// Fake is an in-memory Storage used by handler/scanner/agent tests in place
// of the in-memory SQLite path the original implementation used for tests
// (omitted per SPEC_FULL.md §9 / the teacher's own test style, which favors
// hand-rolled fakes over an embedded database — see pkg/alert/dedup_test.go
// in the teacher for the same preference).
type Fake struct {
	mu sync.Mutex

	nextID int64

	podFailures      map[int64]*kure.PodFailure
	findings         map[int64]*kure.SecurityFinding
	excludedNS       map[int64]*kure.ExcludedNamespace
	excludedPods     map[int64]*kure.ExcludedPod
	excludedRules    map[int64]*kure.ExcludedRule
	trustedRegistries map[int64]*kure.TrustedRegistry
	settings         map[string]string
	notifications    map[string]kure.NotificationSetting
	llmConfig        *kure.LLMConfig
}

// NewFake creates an empty in-memory Storage.
func NewFake() *Fake {
	return &Fake{
		podFailures:       make(map[int64]*kure.PodFailure),
		findings:          make(map[int64]*kure.SecurityFinding),
		excludedNS:        make(map[int64]*kure.ExcludedNamespace),
		excludedPods:      make(map[int64]*kure.ExcludedPod),
		excludedRules:     make(map[int64]*kure.ExcludedRule),
		trustedRegistries: make(map[int64]*kure.TrustedRegistry),
		settings:          make(map[string]string),
		notifications:     make(map[string]kure.NotificationSetting),
	}
}

func (f *Fake) nextIDLocked() int64 {
	f.nextID++
	return f.nextID
}

func (f *Fake) UpsertPodFailure(_ context.Context, in PodFailureInput) (*kure.PodFailure, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, pf := range f.podFailures {
		if pf.Namespace == in.Namespace && pf.PodName == in.PodName && kure.IsActivePodStatus(pf.Status) {
			pf.Reason, pf.Message, pf.NodeName, pf.Phase = in.Reason, in.Message, in.NodeName, in.Phase
			pf.ContainerStatus, pf.RecentEvents = in.ContainerStatus, in.RecentEvents
			pf.Logs, pf.Manifest, pf.Solution = in.Logs, in.Manifest, in.Solution
			pf.CreatedAt = now()
			cp := *pf
			return &cp, false, nil
		}
	}

	pf := &kure.PodFailure{
		ID: f.nextIDLocked(), Namespace: in.Namespace, PodName: in.PodName,
		Reason: in.Reason, Message: in.Message, NodeName: in.NodeName, Phase: in.Phase,
		ContainerStatus: in.ContainerStatus, RecentEvents: in.RecentEvents,
		Logs: in.Logs, Manifest: in.Manifest, Solution: in.Solution,
		Status: kure.PodStatusNew, CreatedAt: now(),
	}
	f.podFailures[pf.ID] = pf
	cp := *pf
	return &cp, true, nil
}

func (f *Fake) GetPodFailure(_ context.Context, id int64) (*kure.PodFailure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pf, ok := f.podFailures[id]
	if !ok {
		return nil, kure.NotFoundError("pod failure %d not found", id)
	}
	cp := *pf
	return &cp, nil
}

func (f *Fake) ListPodFailures(_ context.Context, filter PodFailureFilter) ([]kure.PodFailure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	latest := make(map[string]*kure.PodFailure)
	for _, pf := range f.podFailures {
		key := pf.Namespace + "/" + pf.PodName
		if cur, ok := latest[key]; !ok || pf.CreatedAt.After(cur.CreatedAt) {
			latest[key] = pf
		}
	}

	var out []kure.PodFailure
	for _, pf := range latest {
		if filter.Namespace != "" && pf.Namespace != filter.Namespace {
			continue
		}
		if filter.Status != "" && pf.Status != filter.Status {
			continue
		}
		if filter.DismissedOnly && kure.IsActivePodStatus(pf.Status) {
			continue
		}
		if !filter.DismissedOnly && !filter.IncludeDismiss && !kure.IsActivePodStatus(pf.Status) {
			continue
		}
		out = append(out, *pf)
	}
	return out, nil
}

func (f *Fake) UpdatePodFailureStatus(_ context.Context, id int64, newStatus, note string) (*kure.PodFailure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pf, ok := f.podFailures[id]
	if !ok {
		return nil, kure.NotFoundError("pod failure %d not found", id)
	}
	if !kure.CanTransitionPodStatus(pf.Status, newStatus) {
		return nil, kure.InvalidTransitionError(pf.Status, newStatus)
	}

	pf.Status = newStatus
	if newStatus == kure.PodStatusResolved {
		t := now()
		pf.ResolvedAt = &t
		pf.ResolutionNote = note
	} else {
		pf.ResolvedAt = nil
		pf.ResolutionNote = ""
	}
	cp := *pf
	return &cp, nil
}

func (f *Fake) DeletePodFailureRecord(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	pf, ok := f.podFailures[id]
	if !ok || kure.IsActivePodStatus(pf.Status) {
		return kure.NotFoundError("pod failure %d not found or not terminal", id)
	}
	delete(f.podFailures, id)
	return nil
}

func (f *Fake) DismissDeletedPod(_ context.Context, namespace, podName string) ([]kure.PodFailure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []kure.PodFailure
	for _, pf := range f.podFailures {
		if pf.Namespace == namespace && pf.PodName == podName && kure.IsActivePodStatus(pf.Status) {
			pf.Status = kure.PodStatusResolved
			t := now()
			pf.ResolvedAt = &t
			pf.ResolutionNote = "Auto-resolved: pod recovered"
			out = append(out, *pf)
		}
	}
	return out, nil
}

func (f *Fake) DeletePodFailuresByNamespace(_ context.Context, namespace string) ([]kure.PodFailure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []kure.PodFailure
	for id, pf := range f.podFailures {
		if pf.Namespace == namespace && kure.IsActivePodStatus(pf.Status) {
			out = append(out, *pf)
			delete(f.podFailures, id)
		}
	}
	return out, nil
}

func (f *Fake) DeletePodFailureByPod(_ context.Context, namespace, podName string) ([]kure.PodFailure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []kure.PodFailure
	for id, pf := range f.podFailures {
		if pf.Namespace == namespace && pf.PodName == podName && kure.IsActivePodStatus(pf.Status) {
			out = append(out, *pf)
			delete(f.podFailures, id)
		}
	}
	return out, nil
}

func (f *Fake) CleanupOldResolvedPods(_ context.Context, retentionMinutes int) (int64, error) {
	return f.cleanupByStatus(kure.PodStatusResolved, retentionMinutes, true)
}

func (f *Fake) CleanupOldIgnoredPods(_ context.Context, retentionMinutes int) (int64, error) {
	return f.cleanupByStatus(kure.PodStatusIgnored, retentionMinutes, false)
}

func (f *Fake) cleanupByStatus(status string, retentionMinutes int, byResolvedAt bool) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := now().Add(-time.Duration(retentionMinutes) * time.Minute)
	var n int64
	for id, pf := range f.podFailures {
		if pf.Status != status {
			continue
		}
		ts := pf.CreatedAt
		if byResolvedAt && pf.ResolvedAt != nil {
			ts = *pf.ResolvedAt
		}
		if ts.Before(cutoff) {
			delete(f.podFailures, id)
			n++
		}
	}
	return n, nil
}

func (f *Fake) UpsertSecurityFinding(_ context.Context, in SecurityFindingInput) (*kure.SecurityFinding, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sf := range f.findings {
		if sf.Namespace == in.Namespace && sf.ResourceName == in.ResourceName && sf.Title == in.Title && !sf.Dismissed {
			sf.ResourceType, sf.Severity, sf.Category = in.ResourceType, in.Severity, in.Category
			sf.Description, sf.Remediation, sf.Manifest = in.Description, in.Remediation, in.Manifest
			sf.Timestamp = now()
			cp := *sf
			return &cp, false, nil
		}
	}

	sf := &kure.SecurityFinding{
		ID: f.nextIDLocked(), Namespace: in.Namespace, ResourceType: in.ResourceType,
		ResourceName: in.ResourceName, Title: in.Title, Severity: in.Severity,
		Category: in.Category, Description: in.Description, Remediation: in.Remediation,
		Manifest: in.Manifest, Timestamp: now(),
	}
	f.findings[sf.ID] = sf
	cp := *sf
	return &cp, true, nil
}

func (f *Fake) ListSecurityFindings(_ context.Context, filter SecurityFindingFilter) ([]kure.SecurityFinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []kure.SecurityFinding
	for _, sf := range f.findings {
		if filter.Namespace != "" && sf.Namespace != filter.Namespace {
			continue
		}
		if filter.Severity != "" && sf.Severity != filter.Severity {
			continue
		}
		if filter.DismissedOnly && !sf.Dismissed {
			continue
		}
		if !filter.DismissedOnly && !filter.IncludeDismiss && sf.Dismissed {
			continue
		}
		out = append(out, *sf)
	}
	return out, nil
}

func (f *Fake) ClearSecurityFindings(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64
	for id, sf := range f.findings {
		if !sf.Dismissed {
			delete(f.findings, id)
			n++
		}
	}
	return n, nil
}

func (f *Fake) DeleteFindingsByResource(_ context.Context, resourceType, namespace, name string) ([]kure.SecurityFinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []kure.SecurityFinding
	for id, sf := range f.findings {
		if sf.ResourceType == resourceType && sf.Namespace == namespace && sf.ResourceName == name && !sf.Dismissed {
			out = append(out, *sf)
			delete(f.findings, id)
		}
	}
	return out, nil
}

func (f *Fake) DeleteFindingsByNamespace(_ context.Context, namespace string) ([]kure.SecurityFinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []kure.SecurityFinding
	for id, sf := range f.findings {
		if sf.Namespace == namespace && !sf.Dismissed {
			out = append(out, *sf)
			delete(f.findings, id)
		}
	}
	return out, nil
}

func (f *Fake) DeleteFindingsByRuleTitle(_ context.Context, ruleTitle, namespace string) ([]kure.SecurityFinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []kure.SecurityFinding
	for id, sf := range f.findings {
		if sf.Dismissed || !kure.BaseNameMatches(ruleTitle, sf.Title) {
			continue
		}
		if namespace != "" && sf.Namespace != namespace {
			continue
		}
		out = append(out, *sf)
		delete(f.findings, id)
	}
	return out, nil
}

func (f *Fake) AddExcludedNamespace(_ context.Context, namespace string) (*kure.ExcludedNamespace, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, en := range f.excludedNS {
		if en.Namespace == namespace {
			cp := *en
			return &cp, false, nil
		}
	}
	en := &kure.ExcludedNamespace{ID: f.nextIDLocked(), Namespace: namespace, CreatedAt: now()}
	f.excludedNS[en.ID] = en
	cp := *en
	return &cp, true, nil
}

func (f *Fake) ListExcludedNamespaces(_ context.Context) ([]kure.ExcludedNamespace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []kure.ExcludedNamespace
	for _, en := range f.excludedNS {
		out = append(out, *en)
	}
	return out, nil
}

func (f *Fake) DeleteExcludedNamespace(_ context.Context, id int64) (*kure.ExcludedNamespace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	en, ok := f.excludedNS[id]
	if !ok {
		return nil, kure.NotFoundError("excluded namespace %d not found", id)
	}
	delete(f.excludedNS, id)
	cp := *en
	return &cp, nil
}

func (f *Fake) AddExcludedPod(_ context.Context, namespace, podName string) (*kure.ExcludedPod, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ep := range f.excludedPods {
		if ep.Namespace == namespace && ep.PodName == podName {
			cp := *ep
			return &cp, false, nil
		}
	}
	ep := &kure.ExcludedPod{ID: f.nextIDLocked(), Namespace: namespace, PodName: podName, CreatedAt: now()}
	f.excludedPods[ep.ID] = ep
	cp := *ep
	return &cp, true, nil
}

func (f *Fake) ListExcludedPods(_ context.Context) ([]kure.ExcludedPod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []kure.ExcludedPod
	for _, ep := range f.excludedPods {
		out = append(out, *ep)
	}
	return out, nil
}

func (f *Fake) DeleteExcludedPod(_ context.Context, id int64) (*kure.ExcludedPod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep, ok := f.excludedPods[id]
	if !ok {
		return nil, kure.NotFoundError("excluded pod %d not found", id)
	}
	delete(f.excludedPods, id)
	cp := *ep
	return &cp, nil
}

func (f *Fake) AddExcludedRule(_ context.Context, ruleTitle, namespace string) (*kure.ExcludedRule, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, er := range f.excludedRules {
		if er.RuleTitle == ruleTitle && er.Namespace == namespace {
			cp := *er
			return &cp, false, nil
		}
	}
	er := &kure.ExcludedRule{ID: f.nextIDLocked(), RuleTitle: ruleTitle, Namespace: namespace, CreatedAt: now()}
	f.excludedRules[er.ID] = er
	cp := *er
	return &cp, true, nil
}

func (f *Fake) ListExcludedRules(_ context.Context) ([]kure.ExcludedRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []kure.ExcludedRule
	for _, er := range f.excludedRules {
		out = append(out, *er)
	}
	return out, nil
}

func (f *Fake) DeleteExcludedRule(_ context.Context, id int64) (*kure.ExcludedRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	er, ok := f.excludedRules[id]
	if !ok {
		return nil, kure.NotFoundError("excluded rule %d not found", id)
	}
	delete(f.excludedRules, id)
	cp := *er
	return &cp, nil
}

func (f *Fake) AddTrustedRegistry(_ context.Context, registry string) (*kure.TrustedRegistry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, tr := range f.trustedRegistries {
		if tr.Registry == registry {
			cp := *tr
			return &cp, false, nil
		}
	}
	tr := &kure.TrustedRegistry{ID: f.nextIDLocked(), Registry: registry, CreatedAt: now()}
	f.trustedRegistries[tr.ID] = tr
	cp := *tr
	return &cp, true, nil
}

func (f *Fake) ListTrustedRegistries(_ context.Context) ([]kure.TrustedRegistry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []kure.TrustedRegistry
	for _, tr := range f.trustedRegistries {
		out = append(out, *tr)
	}
	return out, nil
}

func (f *Fake) DeleteTrustedRegistry(_ context.Context, id int64) (*kure.TrustedRegistry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tr, ok := f.trustedRegistries[id]
	if !ok {
		return nil, kure.NotFoundError("trusted registry %d not found", id)
	}
	delete(f.trustedRegistries, id)
	cp := *tr
	return &cp, nil
}

func (f *Fake) GetSetting(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings[key], nil
}

func (f *Fake) SetSetting(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[key] = value
	return nil
}

func (f *Fake) GetNotificationSetting(_ context.Context, provider string) (*kure.NotificationSetting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ns, ok := f.notifications[provider]
	if !ok {
		return nil, kure.NotFoundError("notification setting %s not found", provider)
	}
	return &ns, nil
}

func (f *Fake) SetNotificationSetting(_ context.Context, setting kure.NotificationSetting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications[setting.Provider] = setting
	return nil
}

func (f *Fake) GetLLMConfig(_ context.Context) (*kure.LLMConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.llmConfig == nil {
		return nil, kure.NotFoundError("llm config not set")
	}
	cp := *f.llmConfig
	return &cp, nil
}

func (f *Fake) SetLLMConfig(_ context.Context, cfg kure.LLMConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := cfg
	f.llmConfig = &cp
	return nil
}

var _ Storage = (*Fake)(nil)
