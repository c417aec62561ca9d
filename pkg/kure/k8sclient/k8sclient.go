// Package k8sclient builds a Kubernetes clientset the way every binary in
// this system needs it: in-cluster config preferred, kubeconfig fallback
// (§4.1 startup sequence step 1), grounded on the teacher pack's
// jordigilh-kubernaut/pkg/k8s client construction shape (there: logrus +
// ginkgo-tested NewClient; here: slog + table-driven tests, since the
// teacher's own in-cluster/kubeconfig helper files were not present in the
// retrieval pack and had to be rebuilt from the construction pattern its
// tests exercise).
package k8sclient

import (
	"fmt"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// NewClientset builds a Kubernetes clientset. When kubeconfigPath is empty,
// in-cluster config is tried first; any error there falls back to the
// default kubeconfig loading rules (so `go run ./cmd/scanner` works from a
// developer machine against whatever context is current).
func NewClientset(kubeconfigPath string) (*kubernetes.Clientset, error) {
	cfg, err := buildConfig(kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("building kubernetes config: %w", err)
	}

	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes clientset: %w", err)
	}
	return cs, nil
}

func buildConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	}

	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}

	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	overrides := &clientcmd.ConfigOverrides{}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
}
