package backend

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kure-project/kure-monitor/internal/httpserver"
	"github.com/kure-project/kure-monitor/internal/telemetry"
	"github.com/kure-project/kure-monitor/pkg/kure"
	"github.com/kure-project/kure-monitor/pkg/kure/hub"
	"github.com/kure-project/kure-monitor/pkg/kure/storage"
)

type ingestFindingRequest struct {
	Namespace    string `json:"namespace" validate:"required"`
	ResourceType string `json:"resource_type" validate:"required"`
	ResourceName string `json:"resource_name" validate:"required"`
	Title        string `json:"title" validate:"required"`
	Severity     string `json:"severity" validate:"required,oneof=critical high medium low"`
	Category     string `json:"category" validate:"required"`
	Description  string `json:"description"`
	Remediation  string `json:"remediation"`
	Manifest     string `json:"manifest"`
}

// HandleIngestFinding implements POST /api/security/findings. Per §3's dedup
// rule, a second ingest of the same identity updates in place and does not
// broadcast; only a genuinely new identity inserts and broadcasts.
func (b *Backend) HandleIngestFinding(w http.ResponseWriter, r *http.Request) {
	var req ingestFindingRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	sf, isNew, err := b.Store.UpsertSecurityFinding(r.Context(), storage.SecurityFindingInput{
		Namespace:    req.Namespace,
		ResourceType: req.ResourceType,
		ResourceName: req.ResourceName,
		Title:        req.Title,
		Severity:     req.Severity,
		Category:     req.Category,
		Description:  req.Description,
		Remediation:  req.Remediation,
		Manifest:     req.Manifest,
	})
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	telemetry.SecurityFindingsTotal.WithLabelValues(req.Severity).Inc()

	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
		b.broadcast(hub.TypeSecurityFinding, sf)
	}
	httpserver.Respond(w, status, map[string]any{"finding": sf, "is_new": isNew})
}

// HandleListFindings implements GET /api/security/findings, paginated via
// ?page=&page_size= (defaults to the full first page, DefaultPageSize items).
func (b *Backend) HandleListFindings(w http.ResponseWriter, r *http.Request) {
	filter := storage.SecurityFindingFilter{
		Namespace: r.URL.Query().Get("namespace"),
		Severity:  r.URL.Query().Get("severity"),
	}

	pageParams, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, string(kure.KindValidation), err.Error())
		return
	}

	rows, err := b.Store.ListSecurityFindings(r.Context(), filter)
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, httpserver.Paginate(rows, pageParams))
}

// HandleDeleteFindingsByResource implements
// DELETE /api/security/findings/resource/{kind}/{ns}/{name}, the scanner's
// single-resource scan contract (§4.1): clear prior findings before
// re-evaluating a resource so fixed issues disappear without a sweep.
func (b *Backend) HandleDeleteFindingsByResource(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	ns := chi.URLParam(r, "ns")
	name := chi.URLParam(r, "name")

	deleted, err := b.Store.DeleteFindingsByResource(r.Context(), kind, ns, name)
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	for _, sf := range deleted {
		b.broadcast(hub.TypeSecurityFindingDeleted, map[string]int64{"id": sf.ID})
	}
	httpserver.Respond(w, http.StatusOK, map[string]int{"deleted": len(deleted)})
}

// HandleClearFindings implements POST /api/security/scan/clear, dropping all
// non-dismissed findings at the start of a scanner sweep (§4.1 step 3).
func (b *Backend) HandleClearFindings(w http.ResponseWriter, r *http.Request) {
	n, err := b.Store.ClearSecurityFindings(r.Context())
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]int64{"deleted": n})
}
