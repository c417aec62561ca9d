// Package llm implements the Solver port named in SPEC_FULL.md §6: remediation
// text generation for a PodFailure, rule-based by default and HTTP-backed
// (against an admin-configured provider) on explicit retry.
package llm

import "context"

// FailureContext is the subset of a PodFailure a Solver needs to produce
// remediation text.
type FailureContext struct {
	Namespace       string
	PodName         string
	Reason          string
	Message         string
	ContainerStates []string // e.g. "nginx: waiting (ImagePullBackOff)"
}

// Solver produces remediation text for a failure. Errors are Upstream per
// §7 — a Solver failure never fails the ingest that triggered it; callers
// fall back to an empty solution string.
type Solver interface {
	Solve(ctx context.Context, fc FailureContext) (string, error)
}
