package backend

import "github.com/kure-project/kure-monitor/internal/httpserver"

// Mount attaches every handler in this package onto srv's Public and
// Protected mounts. Public carries the ingest endpoints consumed by the
// agent/scanner plus /auth/login, per §4.2's fixed auth allow-list. The SSE
// log stream and /ws are mounted on Protected: AuthMiddleware's token
// extraction already falls back to a ?token= query parameter, which is the
// only way an EventSource or browser WebSocket request (no custom headers)
// can authenticate.
func (b *Backend) Mount(srv *httpserver.Server) {
	srv.Public.Post("/auth/login", b.HandleLogin)

	srv.Public.Post("/api/pods/failed", b.HandleIngestPodFailure)
	srv.Public.Post("/api/pods/dismiss-deleted", b.HandleDismissDeleted)
	srv.Public.Post("/api/security/findings", b.HandleIngestFinding)
	srv.Public.Delete("/api/security/findings/resource/{kind}/{ns}/{name}", b.HandleDeleteFindingsByResource)
	srv.Public.Post("/api/security/scan/clear", b.HandleClearFindings)
	srv.Public.Post("/api/metrics/cluster", b.HandleReportClusterMetrics)
	srv.Protected.Get("/ws", b.HandleWebSocket)

	srv.Protected.Get("/api/metrics/cluster", b.HandleGetClusterMetrics)
	srv.Protected.Get("/api/metrics/pods/{ns}/{pod}/history", b.HandleGetPodMetricsHistory)

	srv.Protected.Get("/api/pods/{ns}/{pod}/logs/stream", b.HandleStreamLogs)
	srv.Protected.Get("/api/pods/failed", b.HandleListPodFailures)
	srv.Protected.Patch("/api/pods/failed/{id}/status", b.HandlePatchPodStatus)
	srv.Protected.Delete("/api/pods/records/{id}", b.HandleDeletePodRecord)

	srv.Protected.Get("/api/security/findings", b.HandleListFindings)

	srv.Protected.Get("/api/admin/excluded-namespaces", b.HandleListExcludedNamespaces)
	srv.Protected.Post("/api/admin/excluded-namespaces", b.HandleAddExcludedNamespace)
	srv.Protected.Delete("/api/admin/excluded-namespaces/{id}", b.HandleDeleteExcludedNamespace)

	srv.Protected.Get("/api/admin/excluded-pods", b.HandleListExcludedPods)
	srv.Protected.Post("/api/admin/excluded-pods", b.HandleAddExcludedPod)
	srv.Protected.Delete("/api/admin/excluded-pods/{id}", b.HandleDeleteExcludedPod)

	srv.Protected.Get("/api/admin/excluded-rules", b.HandleListExcludedRules)
	srv.Protected.Post("/api/admin/excluded-rules", b.HandleAddExcludedRule)
	srv.Protected.Delete("/api/admin/excluded-rules/{id}", b.HandleDeleteExcludedRule)

	srv.Protected.Get("/api/admin/trusted-registries", b.HandleListTrustedRegistries)
	srv.Protected.Post("/api/admin/trusted-registries", b.HandleAddTrustedRegistry)
	srv.Protected.Delete("/api/admin/trusted-registries/{id}", b.HandleDeleteTrustedRegistry)

	srv.Protected.Get("/api/admin/settings/history-retention", b.HandleGetHistoryRetention)
	srv.Protected.Put("/api/admin/settings/history-retention", b.HandlePutHistoryRetention)
	srv.Protected.Get("/api/admin/settings/ignored-retention", b.HandleGetIgnoredRetention)
	srv.Protected.Put("/api/admin/settings/ignored-retention", b.HandlePutIgnoredRetention)

	srv.Protected.Get("/api/admin/settings/notifications/{provider}", b.HandleGetNotificationSetting)
	srv.Protected.Put("/api/admin/settings/notifications/{provider}", b.HandlePutNotificationSetting)

	srv.Protected.Get("/api/admin/settings/llm", b.HandleGetLLMConfig)
	srv.Protected.Put("/api/admin/settings/llm", b.HandlePutLLMConfig)
}
