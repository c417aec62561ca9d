package scanner

import (
	"sync"

	"github.com/kure-project/kure-monitor/pkg/kure"
)

// Exclusions is a read-mostly snapshot of the backend's exclusion lists,
// refreshed wholesale whenever the WebSocket client observes an
// exclusion-change event or the orchestrator runs its startup fetch. Rule
// evaluation reads it many times per watch event, so lookups take an
// RLock and a refresh takes the single write lock (§5: "single writer,
// many readers").
type Exclusions struct {
	mu sync.RWMutex

	namespaces  map[string]bool
	pods        map[string]bool // "namespace/pod"
	globalRules []string
	scopedRules map[string][]string // namespace -> rule titles
	registries  map[string]bool

	// seedRegistries are additional trusted registries sourced from
	// ScannerConfig.AdditionalTrustedRegistries (TRUSTED_REGISTRIES); they
	// are merged into every Replace so an admin-list refresh never drops
	// them.
	seedRegistries []string
}

// NewExclusions returns an empty cache; call Replace once a startup fetch
// completes.
func NewExclusions() *Exclusions {
	return &Exclusions{
		namespaces:  map[string]bool{},
		pods:        map[string]bool{},
		scopedRules: map[string][]string{},
		registries:  map[string]bool{},
	}
}

// Replace atomically swaps in a freshly fetched exclusion snapshot.
func (e *Exclusions) Replace(namespaces []kure.ExcludedNamespace, pods []kure.ExcludedPod, rules []kure.ExcludedRule, registries []kure.TrustedRegistry) {
	nsSet := make(map[string]bool, len(namespaces))
	for _, n := range namespaces {
		nsSet[n.Namespace] = true
	}

	podSet := make(map[string]bool, len(pods))
	for _, p := range pods {
		podSet[p.Namespace+"/"+p.PodName] = true
	}

	var global []string
	scoped := map[string][]string{}
	for _, r := range rules {
		if r.Namespace == "" {
			global = append(global, r.RuleTitle)
		} else {
			scoped[r.Namespace] = append(scoped[r.Namespace], r.RuleTitle)
		}
	}

	regSet := make(map[string]bool, len(registries)+len(e.seedRegistries))
	for _, r := range registries {
		regSet[r.Registry] = true
	}
	for _, r := range e.seedRegistries {
		regSet[r] = true
	}

	e.mu.Lock()
	e.namespaces = nsSet
	e.pods = podSet
	e.globalRules = global
	e.scopedRules = scoped
	e.registries = regSet
	e.mu.Unlock()
}

// SeedTrustedRegistries records additional trusted registries to merge into
// every future Replace, without waiting for the next backend fetch.
func (e *Exclusions) SeedTrustedRegistries(registries []string) {
	e.mu.Lock()
	e.seedRegistries = registries
	for _, r := range registries {
		e.registries[r] = true
	}
	e.mu.Unlock()
}

// IsNamespaceExcluded reports whether ns is in the admin exclusion list
// (on top of the always-skipped SystemNamespaces set).
func (e *Exclusions) IsNamespaceExcluded(ns string) bool {
	if IsSystemNamespace(ns) {
		return true
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.namespaces[ns]
}

// IsPodExcluded reports whether namespace/pod is individually excluded.
func (e *Exclusions) IsPodExcluded(namespace, pod string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pods[namespace+"/"+pod]
}

// IsRuleExcluded reports whether title is excluded globally, or scoped to
// namespace, using the base-name matching contract.
func (e *Exclusions) IsRuleExcluded(namespace, title string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, excluded := range e.globalRules {
		if kure.BaseNameMatches(excluded, title) {
			return true
		}
	}
	for _, excluded := range e.scopedRules[namespace] {
		if kure.BaseNameMatches(excluded, title) {
			return true
		}
	}
	return false
}

// TrustedRegistries returns a snapshot copy of the admin-configured trusted
// registry set, suitable for passing directly into EvaluatePod.
func (e *Exclusions) TrustedRegistries() map[string]bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]bool, len(e.registries))
	for k := range e.registries {
		out[k] = true
	}
	return out
}

// Filter drops findings excluded by namespace, pod, or rule title, and is
// the single choke point the watch manager runs every finding batch
// through before posting to the backend (§4.1).
func (e *Exclusions) Filter(namespace, podName string, findings []Finding) []Finding {
	if e.IsNamespaceExcluded(namespace) {
		return nil
	}
	if podName != "" && e.IsPodExcluded(namespace, podName) {
		return nil
	}

	kept := findings[:0:0]
	for _, f := range findings {
		if e.IsRuleExcluded(namespace, f.Title) {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}
