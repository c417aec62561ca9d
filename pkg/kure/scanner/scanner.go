package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/kure-project/kure-monitor/internal/telemetry"
)

// startupRetryAttempts and startupRetryInterval implement spec §4.1's
// startup-sequence contract: block on the exclusion-list fetch with bounded
// retry, refusing to emit findings until exclusions are known.
const (
	startupRetryAttempts = 30
	startupRetryInterval = 2 * time.Second
)

// Scanner is the cmd/scanner entrypoint's top-level orchestrator,
// implementing the startup sequence and full-sweep contract of §4.1.
type Scanner struct {
	clientset  kubernetes.Interface
	client     *BackendClient
	exclusions *Exclusions
	watchMgr   *WatchManager
	logger     *slog.Logger
}

// New builds a Scanner ready to Run.
func New(clientset kubernetes.Interface, client *BackendClient, logger *slog.Logger) *Scanner {
	exclusions := NewExclusions()
	return &Scanner{
		clientset:  clientset,
		client:     client,
		exclusions: exclusions,
		watchMgr:   NewWatchManager(clientset, client, exclusions, logger),
		logger:     logger,
	}
}

// Run executes the startup sequence described in spec §4.1 and then blocks
// serving watch events and WebSocket-triggered rescans until ctx is done.
func (s *Scanner) Run(ctx context.Context) error {
	if err := s.fetchExclusionsWithRetry(ctx); err != nil {
		return fmt.Errorf("fetching exclusions at startup: %w", err)
	}

	if err := s.client.ClearAllFindings(ctx); err != nil {
		return fmt.Errorf("clearing stale findings at startup: %w", err)
	}

	s.logger.Info("running full sweep")
	s.FullSweep(ctx)

	ws := NewWSClient(s.client.baseURL, s.client.apiKey, s, s.logger)
	go ws.Run(ctx)

	s.logger.Info("watches open, serving events")
	return s.watchMgr.Run(ctx)
}

func (s *Scanner) fetchExclusionsWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= startupRetryAttempts; attempt++ {
		namespaces, pods, rules, registries, err := s.client.FetchExclusions(ctx)
		if err == nil {
			s.exclusions.Replace(namespaces, pods, rules, registries)
			return nil
		}
		lastErr = err
		s.logger.Warn("fetching exclusions, retrying", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(startupRetryInterval):
		}
	}
	return fmt.Errorf("exhausted %d attempts: %w", startupRetryAttempts, lastErr)
}

// SeedTrustedRegistries merges additional registries (from ScannerConfig's
// TRUSTED_REGISTRIES) into the exclusion cache's trusted-registry set,
// before the admin-authoritative list is first fetched.
func (s *Scanner) SeedTrustedRegistries(registries []string) {
	s.exclusions.SeedTrustedRegistries(registries)
}

// RefreshExclusions re-fetches every exclusion list, used by the WebSocket
// client on every exclusion-change message (§4.1).
func (s *Scanner) RefreshExclusions(ctx context.Context) error {
	namespaces, pods, rules, registries, err := s.client.FetchExclusions(ctx)
	if err != nil {
		return err
	}
	s.exclusions.Replace(namespaces, pods, rules, registries)
	return nil
}

// FullSweep evaluates every rule against every currently-listed resource of
// every watched kind, reporting one finding per violation. It is run once at
// startup and again for a full-cluster rescan (global rule inclusion,
// trusted-registry change).
func (s *Scanner) FullSweep(ctx context.Context) {
	start := time.Now()
	defer func() { telemetry.SecurityScanDurationSeconds.Set(time.Since(start).Seconds()) }()

	sweeps := []func(context.Context){
		s.sweepPods,
		s.sweepDeployments,
		s.sweepServices,
		s.sweepIngresses,
		s.sweepCronJobs,
		s.sweepClusterRoles,
		s.sweepRoles,
		s.sweepClusterRoleBindings,
		s.sweepNamespaces,
		s.sweepPersistentVolumes,
		s.sweepConfigMaps,
	}

	var g errgroup.Group
	for _, sweep := range sweeps {
		g.Go(func() error {
			sweep(ctx)
			return nil
		})
	}
	g.Wait()
}

// SweepNamespace reruns every applicable rule against a single namespace's
// pods and ConfigMaps, used by the WebSocket client's namespace-inclusion
// and rule-inclusion handlers (§4.1).
func (s *Scanner) SweepNamespace(ctx context.Context, namespace string) {
	if s.exclusions.IsNamespaceExcluded(namespace) {
		return
	}
	s.sweepPodsIn(ctx, namespace)
	s.sweepConfigMapsIn(ctx, namespace)
}

func (s *Scanner) sweepPods(ctx context.Context) { s.sweepPodsIn(ctx, metav1.NamespaceAll) }

func (s *Scanner) sweepPodsIn(ctx context.Context, namespace string) {
	list, err := s.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		s.logger.Error("listing pods for sweep", "error", err)
		return
	}
	trusted := s.exclusions.TrustedRegistries()
	for i := range list.Items {
		pod := &list.Items[i]
		if s.exclusions.IsNamespaceExcluded(pod.Namespace) || s.exclusions.IsPodExcluded(pod.Namespace, pod.Name) {
			continue
		}
		manifest, err := marshalManifest(pod.DeepCopy())
		if err != nil {
			manifest = ""
		}
		s.watchMgr.report(ctx, "Pod", pod.Namespace, pod.Name, manifest, EvaluatePod(pod, trusted))
	}
}

func (s *Scanner) sweepDeployments(ctx context.Context) {
	list, err := s.clientset.AppsV1().Deployments(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		s.logger.Error("listing deployments for sweep", "error", err)
		return
	}
	for i := range list.Items {
		d := &list.Items[i]
		if s.exclusions.IsNamespaceExcluded(d.Namespace) {
			continue
		}
		manifest, err := marshalManifest(d.DeepCopy())
		if err != nil {
			manifest = ""
		}
		s.watchMgr.report(ctx, "Deployment", d.Namespace, d.Name, manifest, EvaluateDeployment(d))
	}
}

func (s *Scanner) sweepServices(ctx context.Context) {
	list, err := s.clientset.CoreV1().Services(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		s.logger.Error("listing services for sweep", "error", err)
		return
	}
	for i := range list.Items {
		svc := &list.Items[i]
		if s.exclusions.IsNamespaceExcluded(svc.Namespace) {
			continue
		}
		manifest, err := marshalManifest(svc.DeepCopy())
		if err != nil {
			manifest = ""
		}
		s.watchMgr.report(ctx, "Service", svc.Namespace, svc.Name, manifest, EvaluateService(svc))
	}
}

func (s *Scanner) sweepIngresses(ctx context.Context) {
	list, err := s.clientset.NetworkingV1().Ingresses(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		s.logger.Error("listing ingresses for sweep", "error", err)
		return
	}
	for i := range list.Items {
		ing := &list.Items[i]
		if s.exclusions.IsNamespaceExcluded(ing.Namespace) {
			continue
		}
		manifest, err := marshalManifest(ing.DeepCopy())
		if err != nil {
			manifest = ""
		}
		s.watchMgr.report(ctx, "Ingress", ing.Namespace, ing.Name, manifest, EvaluateIngress(ing))
	}
}

func (s *Scanner) sweepCronJobs(ctx context.Context) {
	list, err := s.clientset.BatchV1().CronJobs(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		s.logger.Error("listing cronjobs for sweep", "error", err)
		return
	}
	for i := range list.Items {
		cj := &list.Items[i]
		if s.exclusions.IsNamespaceExcluded(cj.Namespace) {
			continue
		}
		manifest, err := marshalManifest(cj.DeepCopy())
		if err != nil {
			manifest = ""
		}
		s.watchMgr.report(ctx, "CronJob", cj.Namespace, cj.Name, manifest, EvaluateCronJob(cj))
	}
}

func (s *Scanner) sweepClusterRoles(ctx context.Context) {
	list, err := s.clientset.RbacV1().ClusterRoles().List(ctx, metav1.ListOptions{})
	if err != nil {
		s.logger.Error("listing cluster roles for sweep", "error", err)
		return
	}
	for i := range list.Items {
		cr := &list.Items[i]
		manifest, err := marshalManifest(cr.DeepCopy())
		if err != nil {
			manifest = ""
		}
		s.watchMgr.report(ctx, "ClusterRole", "", cr.Name, manifest, EvaluateClusterRole(cr))
	}
}

func (s *Scanner) sweepRoles(ctx context.Context) {
	list, err := s.clientset.RbacV1().Roles(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		s.logger.Error("listing roles for sweep", "error", err)
		return
	}
	for i := range list.Items {
		r := &list.Items[i]
		if s.exclusions.IsNamespaceExcluded(r.Namespace) {
			continue
		}
		manifest, err := marshalManifest(r.DeepCopy())
		if err != nil {
			manifest = ""
		}
		s.watchMgr.report(ctx, "Role", r.Namespace, r.Name, manifest, EvaluateRole(r))
	}
}

func (s *Scanner) sweepClusterRoleBindings(ctx context.Context) {
	list, err := s.clientset.RbacV1().ClusterRoleBindings().List(ctx, metav1.ListOptions{})
	if err != nil {
		s.logger.Error("listing cluster role bindings for sweep", "error", err)
		return
	}
	for i := range list.Items {
		crb := &list.Items[i]
		manifest, err := marshalManifest(crb.DeepCopy())
		if err != nil {
			manifest = ""
		}
		s.watchMgr.report(ctx, "ClusterRoleBinding", "", crb.Name, manifest, EvaluateClusterRoleBinding(crb))
	}
}

func (s *Scanner) sweepPersistentVolumes(ctx context.Context) {
	list, err := s.clientset.CoreV1().PersistentVolumes().List(ctx, metav1.ListOptions{})
	if err != nil {
		s.logger.Error("listing persistent volumes for sweep", "error", err)
		return
	}
	for i := range list.Items {
		pv := &list.Items[i]
		manifest, err := marshalManifest(pv.DeepCopy())
		if err != nil {
			manifest = ""
		}
		s.watchMgr.report(ctx, "PersistentVolume", "", pv.Name, manifest, EvaluatePersistentVolume(pv))
	}
}

func (s *Scanner) sweepConfigMaps(ctx context.Context) { s.sweepConfigMapsIn(ctx, metav1.NamespaceAll) }

func (s *Scanner) sweepConfigMapsIn(ctx context.Context, namespace string) {
	list, err := s.clientset.CoreV1().ConfigMaps(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		s.logger.Error("listing configmaps for sweep", "error", err)
		return
	}
	for i := range list.Items {
		cm := &list.Items[i]
		if s.exclusions.IsNamespaceExcluded(cm.Namespace) {
			continue
		}
		manifest, err := marshalManifest(cm.DeepCopy())
		if err != nil {
			manifest = ""
		}
		s.watchMgr.report(ctx, "ConfigMap", cm.Namespace, cm.Name, manifest, EvaluateConfigMap(cm))
	}
}

func (s *Scanner) sweepNamespaces(ctx context.Context) {
	list, err := s.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		s.logger.Error("listing namespaces for sweep", "error", err)
		return
	}
	for i := range list.Items {
		ns := &list.Items[i]
		if IsSystemNamespace(ns.Name) {
			continue
		}
		snap, err := s.namespaceSnapshot(ctx, ns)
		if err != nil {
			s.logger.Error("building namespace snapshot", "namespace", ns.Name, "error", err)
			continue
		}
		manifest, err := marshalManifest(ns.DeepCopy())
		if err != nil {
			manifest = ""
		}
		s.watchMgr.report(ctx, "Namespace", "", ns.Name, manifest, EvaluateNamespace(snap))
	}
}

func (s *Scanner) namespaceSnapshot(ctx context.Context, ns *corev1.Namespace) (NamespaceSnapshot, error) {
	snap := NamespaceSnapshot{Namespace: ns}

	pods, err := s.clientset.CoreV1().Pods(ns.Name).List(ctx, metav1.ListOptions{Limit: 1})
	if err != nil {
		return snap, err
	}
	snap.HasPods = len(pods.Items) > 0

	netpols, err := s.clientset.NetworkingV1().NetworkPolicies(ns.Name).List(ctx, metav1.ListOptions{Limit: 1})
	if err != nil {
		return snap, err
	}
	snap.HasNetworkPolicy = len(netpols.Items) > 0

	quotas, err := s.clientset.CoreV1().ResourceQuotas(ns.Name).List(ctx, metav1.ListOptions{Limit: 1})
	if err != nil {
		return snap, err
	}
	snap.HasResourceQuota = len(quotas.Items) > 0

	limits, err := s.clientset.CoreV1().LimitRanges(ns.Name).List(ctx, metav1.ListOptions{Limit: 1})
	if err != nil {
		return snap, err
	}
	snap.HasLimitRange = len(limits.Items) > 0

	return snap, nil
}
