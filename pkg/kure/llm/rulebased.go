package llm

import (
	"context"
	"fmt"
	"strings"
)

// RuleBasedSolver maps a failure reason onto a fixed remediation template.
// This is the default Solver attached on every ingest (§4.2: "always
// compute/attach a solution string (rule-based by default; AI only on
// explicit retry)").
type RuleBasedSolver struct{}

// NewRuleBasedSolver builds a RuleBasedSolver.
func NewRuleBasedSolver() *RuleBasedSolver { return &RuleBasedSolver{} }

// templates maps a known failure reason to remediation text. Reasons not in
// this table fall through to a generic suggestion.
var templates = map[string]string{
	"ImagePullBackOff":           "Verify the image name and tag exist in the registry and that imagePullSecrets grant access.",
	"ErrImagePull":               "Check registry connectivity and credentials; confirm the image reference is correct.",
	"CrashLoopBackOff":           "Inspect the container logs for the startup error and check readiness/liveness probe configuration.",
	"CreateContainerConfigError": "Check that referenced ConfigMaps and Secrets exist in the pod's namespace.",
	"InvalidImageName":           "Correct the malformed image reference in the pod spec.",
	"ErrImageNeverPull":          "Set imagePullPolicy appropriately or ensure the image is present on the node.",
	"CreateContainerError":       "Inspect the container runtime error in the node's kubelet logs.",
	"OOMKilled":                  "Increase the container's memory limit or investigate a memory leak.",
	"Evicted":                    "Check node resource pressure and pod resource requests.",
}

// Solve implements Solver.
func (s *RuleBasedSolver) Solve(_ context.Context, fc FailureContext) (string, error) {
	if tpl, ok := templates[fc.Reason]; ok {
		return tpl, nil
	}
	if len(fc.ContainerStates) > 0 {
		return fmt.Sprintf("Review container state(s): %s", strings.Join(fc.ContainerStates, "; ")), nil
	}
	return fmt.Sprintf("Investigate pod %s/%s: %s", fc.Namespace, fc.PodName, fc.Message), nil
}
