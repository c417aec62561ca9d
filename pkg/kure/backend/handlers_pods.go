package backend

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kure-project/kure-monitor/internal/httpserver"
	"github.com/kure-project/kure-monitor/internal/telemetry"
	"github.com/kure-project/kure-monitor/pkg/kure"
	"github.com/kure-project/kure-monitor/pkg/kure/hub"
	"github.com/kure-project/kure-monitor/pkg/kure/llm"
	"github.com/kure-project/kure-monitor/pkg/kure/notify"
	"github.com/kure-project/kure-monitor/pkg/kure/storage"
)

// ingestPodFailureRequest is the body of POST /api/pods/failed.
type ingestPodFailureRequest struct {
	Namespace       string                 `json:"namespace" validate:"required"`
	PodName         string                 `json:"pod_name" validate:"required"`
	Reason          string                 `json:"reason" validate:"required"`
	Message         string                 `json:"message"`
	NodeName        string                 `json:"node_name"`
	Phase           string                 `json:"phase"`
	ContainerStatus []kure.ContainerStatus `json:"container_statuses"`
	RecentEvents    []kure.PodEvent        `json:"recent_events"`
	Logs            string                 `json:"logs"`
	Manifest        string                 `json:"manifest"`
}

// HandleIngestPodFailure implements POST /api/pods/failed.
func (b *Backend) HandleIngestPodFailure(w http.ResponseWriter, r *http.Request) {
	var req ingestPodFailureRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	containerStates := make([]string, 0, len(req.ContainerStatus))
	for _, cs := range req.ContainerStatus {
		containerStates = append(containerStates, cs.Name+": "+cs.State+" ("+cs.Reason+")")
	}

	solution, err := b.Solver.Solve(r.Context(), llm.FailureContext{
		Namespace:       req.Namespace,
		PodName:         req.PodName,
		Reason:          req.Reason,
		Message:         req.Message,
		ContainerStates: containerStates,
	})
	if err != nil {
		// Upstream failure on the solver never fails the ingest (§7).
		b.Logger.Warn("solver failed, attaching empty solution", "error", err)
		solution = ""
	}

	pf, isNew, err := b.Store.UpsertPodFailure(r.Context(), storage.PodFailureInput{
		Namespace:       req.Namespace,
		PodName:         req.PodName,
		Reason:          req.Reason,
		Message:         req.Message,
		NodeName:        req.NodeName,
		Phase:           req.Phase,
		ContainerStatus: req.ContainerStatus,
		RecentEvents:    req.RecentEvents,
		Logs:            req.Logs,
		Manifest:        req.Manifest,
		Solution:        solution,
	})
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	telemetry.PodFailuresTotal.WithLabelValues(req.Namespace, req.Reason).Inc()
	b.broadcast(hub.TypePodFailure, pf)

	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	httpserver.Respond(w, status, pf)
}

// HandleListPodFailures implements GET /api/pods/failed, paginated via
// ?page=&page_size= (defaults to the full first page, DefaultPageSize items).
func (b *Backend) HandleListPodFailures(w http.ResponseWriter, r *http.Request) {
	filter := storage.PodFailureFilter{
		Namespace: r.URL.Query().Get("namespace"),
		Status:    r.URL.Query().Get("status"),
	}

	pageParams, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, string(kure.KindValidation), err.Error())
		return
	}

	rows, err := b.Store.ListPodFailures(r.Context(), filter)
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, httpserver.Paginate(rows, pageParams))
}

type patchPodStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=new investigating resolved ignored"`
	Note   string `json:"resolution_note"`
}

// HandlePatchPodStatus implements PATCH /api/pods/failed/{id}/status.
func (b *Backend) HandlePatchPodStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	var req patchPodStatusRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	pf, err := b.Store.UpdatePodFailureStatus(r.Context(), id, req.Status, req.Note)
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	b.broadcast(hub.TypePodStatusChange, pf)
	httpserver.Respond(w, http.StatusOK, pf)
}

// HandleDeletePodRecord implements DELETE /api/pods/records/{id}.
func (b *Backend) HandleDeletePodRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	if err := b.Store.DeletePodFailureRecord(r.Context(), id); err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	b.broadcast(hub.TypePodRecordDeleted, map[string]int64{"id": id})
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type dismissDeletedRequest struct {
	Namespace string `json:"namespace" validate:"required"`
	PodName   string `json:"pod_name" validate:"required"`
}

// HandleDismissDeleted implements POST /api/pods/dismiss-deleted. Every
// active row for the pod is auto-resolved (§3's "on auto-resolve... all
// active rows are swept to resolved"); if none matched the UI still needs to
// drop its stale entry, hence the pod_deleted fallback broadcast (§4.2).
func (b *Backend) HandleDismissDeleted(w http.ResponseWriter, r *http.Request) {
	var req dismissDeletedRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	resolved, err := b.Store.DismissDeletedPod(r.Context(), req.Namespace, req.PodName)
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	if len(resolved) == 0 {
		b.broadcast(hub.TypePodDeleted, map[string]string{"namespace": req.Namespace, "pod_name": req.PodName})
		httpserver.Respond(w, http.StatusOK, map[string]string{"status": "no_active_rows"})
		return
	}

	for _, pf := range resolved {
		telemetry.PodFailuresResolvedTotal.Inc()
		b.broadcast(hub.TypePodStatusChange, pf)

		if b.Notifier != nil {
			if err := b.Notifier.Notify(r.Context(), notify.Event{
				Kind:      notify.KindPodResolved,
				Namespace: pf.Namespace,
				PodName:   pf.PodName,
				Reason:    pf.Reason,
				Note:      pf.ResolutionNote,
			}); err != nil {
				b.Logger.Warn("resolved notification failed", "error", err)
			}
		}
	}

	httpserver.Respond(w, http.StatusOK, resolved)
}

func (b *Backend) broadcast(msgType string, data any) {
	if b.Hub == nil {
		return
	}
	telemetry.HubBroadcastsTotal.WithLabelValues(msgType).Inc()
	b.Hub.Broadcast(msgType, data)
}

func parseID(r *http.Request, param string) (int64, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, kure.ValidationError("invalid id %q", raw)
	}
	return id, nil
}
