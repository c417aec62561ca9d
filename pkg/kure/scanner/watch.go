package scanner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"

	"github.com/kure-project/kure-monitor/internal/telemetry"
)

// queueDepth bounds the watch manager's event queue (§5). An overflowing
// queue drops the oldest pending event rather than blocking the informer's
// delivery goroutine.
const queueDepth = 1024

// WatchManager runs one client-go SharedIndexInformer per watched kind,
// funnels their ADDED/MODIFIED/DELETED callbacks onto a single bounded
// queue, and drains it on its own goroutine so slow backend calls never
// stall informer delivery (§4.1, §5).
type WatchManager struct {
	clientset  kubernetes.Interface
	client     *BackendClient
	exclusions *Exclusions
	logger     *slog.Logger

	queue chan func(context.Context)

	mu       sync.RWMutex
	disabled map[string]bool
}

// NewWatchManager wires a watch manager against an already-authenticated
// clientset, with logger for the per-kind restart/disable diagnostics §4.1
// calls for.
func NewWatchManager(clientset kubernetes.Interface, client *BackendClient, exclusions *Exclusions, logger *slog.Logger) *WatchManager {
	return &WatchManager{
		clientset:  clientset,
		client:     client,
		exclusions: exclusions,
		logger:     logger,
		queue:      make(chan func(context.Context), queueDepth),
		disabled:   map[string]bool{},
	}
}

func (m *WatchManager) enqueue(fn func(context.Context)) {
	select {
	case m.queue <- fn:
		return
	default:
	}
	// Queue full: drop the oldest pending event to make room, per §5's
	// oldest-drop-on-overflow policy.
	select {
	case <-m.queue:
	default:
	}
	select {
	case m.queue <- fn:
	default:
	}
}

func (m *WatchManager) isDisabled(kind string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.disabled[kind]
}

func (m *WatchManager) disable(kind string, err error) {
	m.mu.Lock()
	m.disabled[kind] = true
	m.mu.Unlock()
	m.logger.Warn("watch disabled: missing RBAC permission", "kind", kind, "error", err)
}

// watchErrorHandler returns a cache.WatchErrorHandler that disables kind's
// watch on a 403 (missing RBAC) without crashing the process, and otherwise
// logs and lets the informer relist/rewatch on client-go's own reflector
// backoff.
func (m *WatchManager) watchErrorHandler(kind string) func(r *cache.Reflector, err error) {
	return func(r *cache.Reflector, err error) {
		if apierrors.IsForbidden(err) {
			m.disable(kind, err)
			return
		}
		m.logger.Warn("watch error, retrying", "kind", kind, "error", err)
	}
}

// Run starts every informer, waits for the initial cache sync, then drains
// the event queue until ctx is cancelled. It blocks until ctx.Done().
func (m *WatchManager) Run(ctx context.Context) error {
	factory := informers.NewSharedInformerFactory(m.clientset, 0)

	m.wirePod(factory)
	m.wireDeployment(factory)
	m.wireService(factory)
	m.wireIngress(factory)
	m.wireCronJob(factory)
	m.wireClusterRole(factory)
	m.wireRole(factory)
	m.wireClusterRoleBinding(factory)
	m.wirePersistentVolume(factory)
	m.wireConfigMap(factory)
	m.wireDeletionOnly(factory)

	factory.Start(ctx.Done())
	factory.WaitForCacheSync(ctx.Done())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-m.queue:
			fn(ctx)
		}
	}
}

func (m *WatchManager) wirePod(factory informers.SharedInformerFactory) {
	const kind = "Pod"
	informer := factory.Core().V1().Pods().Informer()
	informer.SetWatchErrorHandler(m.watchErrorHandler(kind))
	informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj any) { m.enqueuePod(kind, obj) },
		UpdateFunc: func(_, obj any) { m.enqueuePod(kind, obj) },
		DeleteFunc: func(obj any) { m.enqueueDelete(kind, asPod(obj)) },
	})
}

func (m *WatchManager) enqueuePod(kind string, obj any) {
	pod, ok := obj.(*corev1.Pod)
	if !ok {
		return
	}
	telemetry.WatchEventsTotal.WithLabelValues(kind, "observed").Inc()
	m.enqueue(func(ctx context.Context) {
		if m.isDisabled(kind) || m.exclusions.IsNamespaceExcluded(pod.Namespace) || m.exclusions.IsPodExcluded(pod.Namespace, pod.Name) {
			return
		}
		findings := EvaluatePod(pod, m.exclusions.TrustedRegistries())
		manifest, err := marshalManifest(pod.DeepCopy())
		if err != nil {
			m.logger.Error("marshaling pod manifest", "error", err)
			manifest = ""
		}
		m.report(ctx, kind, pod.Namespace, pod.Name, manifest, findings)
	})
}

func asPod(obj any) *corev1.Pod {
	if pod, ok := obj.(*corev1.Pod); ok {
		return pod
	}
	if tomb, ok := obj.(cache.DeletedFinalStateUnknown); ok {
		if pod, ok := tomb.Obj.(*corev1.Pod); ok {
			return pod
		}
	}
	return nil
}

func (m *WatchManager) wireDeployment(factory informers.SharedInformerFactory) {
	const kind = "Deployment"
	informer := factory.Apps().V1().Deployments().Informer()
	informer.SetWatchErrorHandler(m.watchErrorHandler(kind))
	informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj any) { m.enqueueDeployment(obj) },
		UpdateFunc: func(_, obj any) { m.enqueueDeployment(obj) },
		DeleteFunc: func(obj any) {
			if d, ok := obj.(*appsv1.Deployment); ok {
				m.enqueueDeleteMeta(kind, d.Namespace, d.Name)
			}
		},
	})
}

func (m *WatchManager) enqueueDeployment(obj any) {
	d, ok := obj.(*appsv1.Deployment)
	if !ok {
		return
	}
	const kind = "Deployment"
	telemetry.WatchEventsTotal.WithLabelValues(kind, "observed").Inc()
	m.enqueue(func(ctx context.Context) {
		if m.isDisabled(kind) || m.exclusions.IsNamespaceExcluded(d.Namespace) {
			return
		}
		manifest, err := marshalManifest(d.DeepCopy())
		if err != nil {
			manifest = ""
		}
		m.report(ctx, kind, d.Namespace, d.Name, manifest, EvaluateDeployment(d))
	})
}

func (m *WatchManager) wireService(factory informers.SharedInformerFactory) {
	const kind = "Service"
	informer := factory.Core().V1().Services().Informer()
	informer.SetWatchErrorHandler(m.watchErrorHandler(kind))
	informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj any) { m.enqueueService(obj) },
		UpdateFunc: func(_, obj any) { m.enqueueService(obj) },
		DeleteFunc: func(obj any) {
			if s, ok := obj.(*corev1.Service); ok {
				m.enqueueDeleteMeta(kind, s.Namespace, s.Name)
			}
		},
	})
}

func (m *WatchManager) enqueueService(obj any) {
	s, ok := obj.(*corev1.Service)
	if !ok {
		return
	}
	const kind = "Service"
	telemetry.WatchEventsTotal.WithLabelValues(kind, "observed").Inc()
	m.enqueue(func(ctx context.Context) {
		if m.isDisabled(kind) || m.exclusions.IsNamespaceExcluded(s.Namespace) {
			return
		}
		manifest, err := marshalManifest(s.DeepCopy())
		if err != nil {
			manifest = ""
		}
		m.report(ctx, kind, s.Namespace, s.Name, manifest, EvaluateService(s))
	})
}

func (m *WatchManager) wireIngress(factory informers.SharedInformerFactory) {
	const kind = "Ingress"
	informer := factory.Networking().V1().Ingresses().Informer()
	informer.SetWatchErrorHandler(m.watchErrorHandler(kind))
	informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj any) { m.enqueueIngress(obj) },
		UpdateFunc: func(_, obj any) { m.enqueueIngress(obj) },
		DeleteFunc: func(obj any) {
			if ing, ok := obj.(*networkingv1.Ingress); ok {
				m.enqueueDeleteMeta(kind, ing.Namespace, ing.Name)
			}
		},
	})
}

func (m *WatchManager) enqueueIngress(obj any) {
	ing, ok := obj.(*networkingv1.Ingress)
	if !ok {
		return
	}
	const kind = "Ingress"
	telemetry.WatchEventsTotal.WithLabelValues(kind, "observed").Inc()
	m.enqueue(func(ctx context.Context) {
		if m.isDisabled(kind) || m.exclusions.IsNamespaceExcluded(ing.Namespace) {
			return
		}
		manifest, err := marshalManifest(ing.DeepCopy())
		if err != nil {
			manifest = ""
		}
		m.report(ctx, kind, ing.Namespace, ing.Name, manifest, EvaluateIngress(ing))
	})
}

func (m *WatchManager) wireCronJob(factory informers.SharedInformerFactory) {
	const kind = "CronJob"
	informer := factory.Batch().V1().CronJobs().Informer()
	informer.SetWatchErrorHandler(m.watchErrorHandler(kind))
	informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj any) { m.enqueueCronJob(obj) },
		UpdateFunc: func(_, obj any) { m.enqueueCronJob(obj) },
		DeleteFunc: func(obj any) {
			if cj, ok := obj.(*batchv1.CronJob); ok {
				m.enqueueDeleteMeta(kind, cj.Namespace, cj.Name)
			}
		},
	})
}

func (m *WatchManager) enqueueCronJob(obj any) {
	cj, ok := obj.(*batchv1.CronJob)
	if !ok {
		return
	}
	const kind = "CronJob"
	telemetry.WatchEventsTotal.WithLabelValues(kind, "observed").Inc()
	m.enqueue(func(ctx context.Context) {
		if m.isDisabled(kind) || m.exclusions.IsNamespaceExcluded(cj.Namespace) {
			return
		}
		manifest, err := marshalManifest(cj.DeepCopy())
		if err != nil {
			manifest = ""
		}
		m.report(ctx, kind, cj.Namespace, cj.Name, manifest, EvaluateCronJob(cj))
	})
}

func (m *WatchManager) wireClusterRole(factory informers.SharedInformerFactory) {
	const kind = "ClusterRole"
	informer := factory.Rbac().V1().ClusterRoles().Informer()
	informer.SetWatchErrorHandler(m.watchErrorHandler(kind))
	informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj any) { m.enqueueClusterRole(obj) },
		UpdateFunc: func(_, obj any) { m.enqueueClusterRole(obj) },
		DeleteFunc: func(obj any) {
			if cr, ok := obj.(*rbacv1.ClusterRole); ok {
				m.enqueueDeleteMeta(kind, "", cr.Name)
			}
		},
	})
}

func (m *WatchManager) enqueueClusterRole(obj any) {
	cr, ok := obj.(*rbacv1.ClusterRole)
	if !ok {
		return
	}
	const kind = "ClusterRole"
	telemetry.WatchEventsTotal.WithLabelValues(kind, "observed").Inc()
	m.enqueue(func(ctx context.Context) {
		if m.isDisabled(kind) {
			return
		}
		manifest, err := marshalManifest(cr.DeepCopy())
		if err != nil {
			manifest = ""
		}
		m.report(ctx, kind, "", cr.Name, manifest, EvaluateClusterRole(cr))
	})
}

func (m *WatchManager) wireRole(factory informers.SharedInformerFactory) {
	const kind = "Role"
	informer := factory.Rbac().V1().Roles().Informer()
	informer.SetWatchErrorHandler(m.watchErrorHandler(kind))
	informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj any) { m.enqueueRole(obj) },
		UpdateFunc: func(_, obj any) { m.enqueueRole(obj) },
		DeleteFunc: func(obj any) {
			if r, ok := obj.(*rbacv1.Role); ok {
				m.enqueueDeleteMeta(kind, r.Namespace, r.Name)
			}
		},
	})
}

func (m *WatchManager) enqueueRole(obj any) {
	r, ok := obj.(*rbacv1.Role)
	if !ok {
		return
	}
	const kind = "Role"
	telemetry.WatchEventsTotal.WithLabelValues(kind, "observed").Inc()
	m.enqueue(func(ctx context.Context) {
		if m.isDisabled(kind) || m.exclusions.IsNamespaceExcluded(r.Namespace) {
			return
		}
		manifest, err := marshalManifest(r.DeepCopy())
		if err != nil {
			manifest = ""
		}
		m.report(ctx, kind, r.Namespace, r.Name, manifest, EvaluateRole(r))
	})
}

func (m *WatchManager) wireClusterRoleBinding(factory informers.SharedInformerFactory) {
	const kind = "ClusterRoleBinding"
	informer := factory.Rbac().V1().ClusterRoleBindings().Informer()
	informer.SetWatchErrorHandler(m.watchErrorHandler(kind))
	informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj any) { m.enqueueClusterRoleBinding(obj) },
		UpdateFunc: func(_, obj any) { m.enqueueClusterRoleBinding(obj) },
		DeleteFunc: func(obj any) {
			if crb, ok := obj.(*rbacv1.ClusterRoleBinding); ok {
				m.enqueueDeleteMeta(kind, "", crb.Name)
			}
		},
	})
}

func (m *WatchManager) enqueueClusterRoleBinding(obj any) {
	crb, ok := obj.(*rbacv1.ClusterRoleBinding)
	if !ok {
		return
	}
	const kind = "ClusterRoleBinding"
	telemetry.WatchEventsTotal.WithLabelValues(kind, "observed").Inc()
	m.enqueue(func(ctx context.Context) {
		if m.isDisabled(kind) {
			return
		}
		manifest, err := marshalManifest(crb.DeepCopy())
		if err != nil {
			manifest = ""
		}
		m.report(ctx, kind, "", crb.Name, manifest, EvaluateClusterRoleBinding(crb))
	})
}

func (m *WatchManager) wirePersistentVolume(factory informers.SharedInformerFactory) {
	const kind = "PersistentVolume"
	informer := factory.Core().V1().PersistentVolumes().Informer()
	informer.SetWatchErrorHandler(m.watchErrorHandler(kind))
	informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj any) { m.enqueuePersistentVolume(obj) },
		UpdateFunc: func(_, obj any) { m.enqueuePersistentVolume(obj) },
		DeleteFunc: func(obj any) {
			if pv, ok := obj.(*corev1.PersistentVolume); ok {
				m.enqueueDeleteMeta(kind, "", pv.Name)
			}
		},
	})
}

func (m *WatchManager) enqueuePersistentVolume(obj any) {
	pv, ok := obj.(*corev1.PersistentVolume)
	if !ok {
		return
	}
	const kind = "PersistentVolume"
	telemetry.WatchEventsTotal.WithLabelValues(kind, "observed").Inc()
	m.enqueue(func(ctx context.Context) {
		if m.isDisabled(kind) {
			return
		}
		manifest, err := marshalManifest(pv.DeepCopy())
		if err != nil {
			manifest = ""
		}
		m.report(ctx, kind, "", pv.Name, manifest, EvaluatePersistentVolume(pv))
	})
}

func (m *WatchManager) wireConfigMap(factory informers.SharedInformerFactory) {
	const kind = "ConfigMap"
	informer := factory.Core().V1().ConfigMaps().Informer()
	informer.SetWatchErrorHandler(m.watchErrorHandler(kind))
	informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj any) { m.enqueueConfigMap(obj) },
		UpdateFunc: func(_, obj any) { m.enqueueConfigMap(obj) },
		DeleteFunc: func(obj any) {
			if cm, ok := obj.(*corev1.ConfigMap); ok {
				m.enqueueDeleteMeta(kind, cm.Namespace, cm.Name)
			}
		},
	})
}

func (m *WatchManager) enqueueConfigMap(obj any) {
	cm, ok := obj.(*corev1.ConfigMap)
	if !ok {
		return
	}
	const kind = "ConfigMap"
	telemetry.WatchEventsTotal.WithLabelValues(kind, "observed").Inc()
	m.enqueue(func(ctx context.Context) {
		if m.isDisabled(kind) || m.exclusions.IsNamespaceExcluded(cm.Namespace) {
			return
		}
		manifest, err := marshalManifest(cm.DeepCopy())
		if err != nil {
			manifest = ""
		}
		m.report(ctx, kind, cm.Namespace, cm.Name, manifest, EvaluateConfigMap(cm))
	})
}

// wireDeletionOnly wires Namespace, DaemonSet and StatefulSet watches in
// deletion-only mode (§4.1): these kinds never emit findings from ADD/MODIFY
// (Namespace's own rules run as part of a full sweep, see scanner.go), but
// their deletion still needs to purge any resource-scoped findings filed
// directly against them.
func (m *WatchManager) wireDeletionOnly(factory informers.SharedInformerFactory) {
	nsInformer := factory.Core().V1().Namespaces().Informer()
	nsInformer.SetWatchErrorHandler(m.watchErrorHandler("Namespace"))
	nsInformer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		DeleteFunc: func(obj any) {
			if ns, ok := obj.(*corev1.Namespace); ok {
				m.enqueueDeleteMeta("Namespace", "", ns.Name)
			}
		},
	})

	dsInformer := factory.Apps().V1().DaemonSets().Informer()
	dsInformer.SetWatchErrorHandler(m.watchErrorHandler("DaemonSet"))
	dsInformer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		DeleteFunc: func(obj any) {
			if ds, ok := obj.(*appsv1.DaemonSet); ok {
				m.enqueueDeleteMeta("DaemonSet", ds.Namespace, ds.Name)
			}
		},
	})

	stsInformer := factory.Apps().V1().StatefulSets().Informer()
	stsInformer.SetWatchErrorHandler(m.watchErrorHandler("StatefulSet"))
	stsInformer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		DeleteFunc: func(obj any) {
			if sts, ok := obj.(*appsv1.StatefulSet); ok {
				m.enqueueDeleteMeta("StatefulSet", sts.Namespace, sts.Name)
			}
		},
	})
}

func (m *WatchManager) enqueueDeleteMeta(kind, namespace, name string) {
	telemetry.WatchEventsTotal.WithLabelValues(kind, "deleted").Inc()
	m.enqueue(func(ctx context.Context) {
		if err := m.client.ClearResourceFindings(ctx, kind, namespace, name); err != nil {
			m.logger.Error("clearing findings for deleted resource", "kind", kind, "namespace", namespace, "name", name, "error", err)
		}
	})
}

func (m *WatchManager) enqueueDelete(kind string, pod *corev1.Pod) {
	if pod == nil {
		return
	}
	m.enqueueDeleteMeta(kind, pod.Namespace, pod.Name)
}

// report implements the single-resource scan contract (§4.1): clear prior
// findings for (kind, namespace, name), then ingest every surviving,
// non-excluded finding.
func (m *WatchManager) report(ctx context.Context, kind, namespace, name, manifest string, findings []Finding) {
	if err := m.client.ClearResourceFindings(ctx, kind, namespace, name); err != nil {
		m.logger.Error("clearing findings before rescan", "kind", kind, "namespace", namespace, "name", name, "error", err)
		telemetry.RulesEvaluatedTotal.WithLabelValues(kind, "error").Inc()
		return
	}

	kept := m.exclusions.Filter(namespace, "", findings)
	if len(kept) == 0 {
		telemetry.RulesEvaluatedTotal.WithLabelValues(kind, "clean").Inc()
	} else {
		telemetry.RulesEvaluatedTotal.WithLabelValues(kind, "violation").Inc()
	}
	for _, f := range kept {
		if err := m.client.IngestFinding(ctx, namespace, manifest, f); err != nil {
			m.logger.Error("ingesting finding", "kind", kind, "namespace", namespace, "name", name, "title", f.Title, "error", err)
		}
	}
}

// watchRestartBackoff is not passed to the informers: how long a watch waits
// before re-listing after a non-403 error is set by client-go's reflector
// backoff, not by this constant.
const watchRestartBackoff = 5 * time.Second
