// Package scanner implements the rule catalog, exclusion cache, and watch
// manager described in SPEC_FULL.md §4.1: for every (resource_type,
// namespace, resource_name, rule) tuple that violates a rule, emit exactly
// one finding, converging within one watch or exclusion-change event.
package scanner

import (
	"strings"

	"github.com/kure-project/kure-monitor/pkg/kure"
)

// Finding is an unsaved rule violation, ready to be sent to the backend's
// ingest endpoint.
type Finding struct {
	ResourceType string
	ResourceName string
	Title        string
	Severity     string
	Category     string
	Description  string
	Remediation  string
}

// SystemNamespaces are always skipped by every rule (§4.1).
var SystemNamespaces = map[string]bool{
	"kube-system":     true,
	"kube-public":     true,
	"kube-node-lease": true,
	"kube-flannel":    true,
	"kure-system":     true,
	"kyverno":         true,
}

// IsSystemNamespace reports whether ns is always skipped.
func IsSystemNamespace(ns string) bool { return SystemNamespaces[ns] }

// hostPathCriticalPaths elevates hostPath findings to critical severity
// (§4.1: "Severity for hostPath rules is elevated to critical when the path
// is in {/, /etc, /var, /root, /home}").
var hostPathCriticalPaths = map[string]bool{
	"/":     true,
	"/etc":  true,
	"/var":  true,
	"/root": true,
	"/home": true,
}

// hostPathSeverity returns the severity for a hostPath volume at path,
// elevating to critical for the paths named in §4.1.
func hostPathSeverity(path string) string {
	if hostPathCriticalPaths[path] {
		return kure.SeverityCritical
	}
	return kure.SeverityHigh
}

// containerScopedTitle builds the "<base>: <container>" suffixed title form
// from §4.1's rule title convention.
func containerScopedTitle(base, container string) string {
	return base + ": " + container
}

// dangerousCapabilities are the added Linux capabilities §4.1 flags.
var dangerousCapabilities = map[string]bool{
	"SYS_ADMIN":       true,
	"NET_RAW":         true,
	"SYS_PTRACE":      true,
	"SYS_MODULE":      true,
	"DAC_READ_SEARCH": true,
	"NET_ADMIN":       true,
	"SYS_RAWIO":       true,
	"SYS_BOOT":        true,
	"SYS_TIME":        true,
	"MKNOD":           true,
	"SETUID":          true,
	"SETGID":          true,
}

// builtinTrustedRegistries is the default trusted-registry set (§4.1); the
// admin list from the backend is unioned with this at evaluation time.
var builtinTrustedRegistries = map[string]bool{
	"docker.io":         true,
	"gcr.io":            true,
	"ghcr.io":           true,
	"quay.io":           true,
	"registry.k8s.io":   true,
	"mcr.microsoft.com": true,
	"public.ecr.aws":    true,
}

// imageRegistry extracts the registry host from an image reference. A bare
// image name (no registry, no slash before the first dot/colon) maps to
// "docker.io", matching Docker's own default-registry convention.
func imageRegistry(image string) string {
	parts := strings.SplitN(image, "/", 2)
	if len(parts) == 1 {
		return "docker.io"
	}
	first := parts[0]
	if strings.ContainsAny(first, ".:") || first == "localhost" {
		return first
	}
	return "docker.io"
}

// imageTag extracts the tag from an image reference, defaulting to
// "latest" when untagged (mirroring Docker's own default).
func imageTag(image string) string {
	// Strip registry/repo path, keep only the last path segment for tag
	// parsing so a registry host with a port (registry:5000/app:v1) doesn't
	// confuse the colon search.
	last := image
	if idx := strings.LastIndex(image, "/"); idx >= 0 {
		last = image[idx+1:]
	}
	if idx := strings.LastIndex(last, ":"); idx >= 0 {
		return last[idx+1:]
	}
	return "latest"
}

// sensitiveConfigKeyFragments are substrings §4.1 flags in ConfigMap keys.
var sensitiveConfigKeyFragments = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"private_key", "privatekey", "credentials", "auth",
}

func containsSensitiveKeyFragment(key string) bool {
	lower := strings.ToLower(key)
	for _, frag := range sensitiveConfigKeyFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}
