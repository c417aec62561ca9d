package backend

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kure-project/kure-monitor/internal/httpserver"
	"github.com/kure-project/kure-monitor/pkg/kure"
	"github.com/kure-project/kure-monitor/pkg/kure/crypto"
	"github.com/kure-project/kure-monitor/pkg/kure/hub"
)

type excludedNamespaceRequest struct {
	Namespace string `json:"namespace" validate:"required"`
}

// HandleListExcludedNamespaces implements GET /api/admin/excluded-namespaces.
func (b *Backend) HandleListExcludedNamespaces(w http.ResponseWriter, r *http.Request) {
	rows, err := b.Store.ListExcludedNamespaces(r.Context())
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, rows)
}

// HandleAddExcludedNamespace implements POST /api/admin/excluded-namespaces.
// Per §4.2's cascading-delete contract: insert the exclusion, delete every
// matching active pod failure and finding, broadcast one deletion event per
// row, then broadcast the exclusion change itself.
func (b *Backend) HandleAddExcludedNamespace(w http.ResponseWriter, r *http.Request) {
	var req excludedNamespaceRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	en, inserted, err := b.Store.AddExcludedNamespace(r.Context(), req.Namespace)
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	if inserted {
		b.cascadeNamespaceExclusion(r, req.Namespace)
		b.broadcast(hub.TypeNamespaceExclusion, en)
	}
	httpserver.Respond(w, http.StatusOK, en)
}

func (b *Backend) cascadeNamespaceExclusion(r *http.Request, namespace string) {
	findings, err := b.Store.DeleteFindingsByNamespace(r.Context(), namespace)
	if err != nil {
		b.Logger.Error("cascading delete of findings by namespace failed", "namespace", namespace, "error", err)
	} else {
		for _, sf := range findings {
			b.broadcast(hub.TypeSecurityFindingDeleted, map[string]int64{"id": sf.ID})
		}
	}

	failures, err := b.Store.DeletePodFailuresByNamespace(r.Context(), namespace)
	if err != nil {
		b.Logger.Error("cascading delete of pod failures by namespace failed", "namespace", namespace, "error", err)
		return
	}
	for _, pf := range failures {
		b.broadcast(hub.TypePodRecordDeleted, map[string]int64{"id": pf.ID})
	}
}

// HandleDeleteExcludedNamespace implements
// DELETE /api/admin/excluded-namespaces/{id}. Removal broadcasts only the
// exclusion change — no rescan on the backend, the scanner does that (§4.2).
func (b *Backend) HandleDeleteExcludedNamespace(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	en, err := b.Store.DeleteExcludedNamespace(r.Context(), id)
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	b.broadcast(hub.TypeNamespaceExclusion, en)
	httpserver.Respond(w, http.StatusOK, en)
}

type excludedPodRequest struct {
	Namespace string `json:"namespace" validate:"required"`
	PodName   string `json:"pod_name" validate:"required"`
}

// HandleListExcludedPods implements GET /api/admin/excluded-pods.
func (b *Backend) HandleListExcludedPods(w http.ResponseWriter, r *http.Request) {
	rows, err := b.Store.ListExcludedPods(r.Context())
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, rows)
}

// HandleAddExcludedPod implements POST /api/admin/excluded-pods.
func (b *Backend) HandleAddExcludedPod(w http.ResponseWriter, r *http.Request) {
	var req excludedPodRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	ep, inserted, err := b.Store.AddExcludedPod(r.Context(), req.Namespace, req.PodName)
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	if inserted {
		if failures, err := b.Store.DeletePodFailureByPod(r.Context(), req.Namespace, req.PodName); err != nil {
			b.Logger.Error("cascading delete of pod failures by pod failed", "error", err)
		} else {
			for _, pf := range failures {
				b.broadcast(hub.TypePodRecordDeleted, map[string]int64{"id": pf.ID})
			}
		}
		b.broadcast(hub.TypePodExclusion, ep)
	}
	httpserver.Respond(w, http.StatusOK, ep)
}

// HandleDeleteExcludedPod implements DELETE /api/admin/excluded-pods/{id}.
func (b *Backend) HandleDeleteExcludedPod(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	ep, err := b.Store.DeleteExcludedPod(r.Context(), id)
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	b.broadcast(hub.TypePodExclusion, ep)
	httpserver.Respond(w, http.StatusOK, ep)
}

type excludedRuleRequest struct {
	RuleTitle string `json:"rule_title" validate:"required"`
	Namespace string `json:"namespace"`
}

// HandleListExcludedRules implements GET /api/admin/excluded-rules.
func (b *Backend) HandleListExcludedRules(w http.ResponseWriter, r *http.Request) {
	rows, err := b.Store.ListExcludedRules(r.Context())
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, rows)
}

// HandleAddExcludedRule implements POST /api/admin/excluded-rules. Matching
// uses the base-name predicate (kure.BaseNameMatches) so excluding the base
// title also suppresses every container-suffixed instance (§4.1).
func (b *Backend) HandleAddExcludedRule(w http.ResponseWriter, r *http.Request) {
	var req excludedRuleRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	er, inserted, err := b.Store.AddExcludedRule(r.Context(), req.RuleTitle, req.Namespace)
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	if inserted {
		findings, err := b.Store.DeleteFindingsByRuleTitle(r.Context(), req.RuleTitle, req.Namespace)
		if err != nil {
			b.Logger.Error("cascading delete of findings by rule title failed", "error", err)
		} else {
			for _, sf := range findings {
				b.broadcast(hub.TypeSecurityFindingDeleted, map[string]int64{"id": sf.ID})
			}
		}
		b.broadcast(hub.TypeRuleExclusion, er)
	}
	httpserver.Respond(w, http.StatusOK, er)
}

// HandleDeleteExcludedRule implements DELETE /api/admin/excluded-rules/{id}.
func (b *Backend) HandleDeleteExcludedRule(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	er, err := b.Store.DeleteExcludedRule(r.Context(), id)
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	b.broadcast(hub.TypeRuleExclusion, er)
	httpserver.Respond(w, http.StatusOK, er)
}

type trustedRegistryRequest struct {
	Registry string `json:"registry" validate:"required"`
}

// HandleListTrustedRegistries implements GET /api/admin/trusted-registries.
func (b *Backend) HandleListTrustedRegistries(w http.ResponseWriter, r *http.Request) {
	rows, err := b.Store.ListTrustedRegistries(r.Context())
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, rows)
}

// HandleAddTrustedRegistry implements POST /api/admin/trusted-registries.
// No cascading delete here: a new trusted registry can only reduce
// findings, and §4.1 specifies the scanner itself re-scans on this change,
// bracketed by rescan_status reports.
func (b *Backend) HandleAddTrustedRegistry(w http.ResponseWriter, r *http.Request) {
	var req trustedRegistryRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	tr, inserted, err := b.Store.AddTrustedRegistry(r.Context(), req.Registry)
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	if inserted {
		b.broadcast(hub.TypeTrustedRegistry, tr)
	}
	httpserver.Respond(w, http.StatusOK, tr)
}

// HandleDeleteTrustedRegistry implements
// DELETE /api/admin/trusted-registries/{id}.
func (b *Backend) HandleDeleteTrustedRegistry(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	tr, err := b.Store.DeleteTrustedRegistry(r.Context(), id)
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	b.broadcast(hub.TypeTrustedRegistry, tr)
	httpserver.Respond(w, http.StatusOK, tr)
}

type retentionSettingRequest struct {
	Minutes int `json:"minutes" validate:"gte=0"`
}

// HandleGetHistoryRetention implements GET /api/admin/settings/history-retention.
func (b *Backend) HandleGetHistoryRetention(w http.ResponseWriter, r *http.Request) {
	b.handleGetRetention(w, r, kure.SettingHistoryRetentionMinutes)
}

// HandlePutHistoryRetention implements PUT /api/admin/settings/history-retention.
func (b *Backend) HandlePutHistoryRetention(w http.ResponseWriter, r *http.Request) {
	b.handlePutRetention(w, r, kure.SettingHistoryRetentionMinutes)
}

// HandleGetIgnoredRetention implements GET /api/admin/settings/ignored-retention.
func (b *Backend) HandleGetIgnoredRetention(w http.ResponseWriter, r *http.Request) {
	b.handleGetRetention(w, r, kure.SettingIgnoredRetentionMinutes)
}

// HandlePutIgnoredRetention implements PUT /api/admin/settings/ignored-retention.
func (b *Backend) HandlePutIgnoredRetention(w http.ResponseWriter, r *http.Request) {
	b.handlePutRetention(w, r, kure.SettingIgnoredRetentionMinutes)
}

func (b *Backend) handleGetRetention(w http.ResponseWriter, r *http.Request, key string) {
	value, err := b.Store.GetSetting(r.Context(), key)
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"minutes": value})
}

func (b *Backend) handlePutRetention(w http.ResponseWriter, r *http.Request, key string) {
	var req retentionSettingRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := kure.ValidateRetentionMinutes(req.Minutes); err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	if err := b.Store.SetSetting(r.Context(), key, strconv.Itoa(req.Minutes)); err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]int{"minutes": req.Minutes})
}

// HandleGetNotificationSetting implements
// GET /api/admin/settings/notifications/{provider}.
func (b *Backend) HandleGetNotificationSetting(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	setting, err := b.Store.GetNotificationSetting(r.Context(), provider)
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, setting)
}

type putNotificationSettingRequest struct {
	Config  json.RawMessage `json:"config"`
	Enabled bool            `json:"enabled"`
}

// HandlePutNotificationSetting implements
// PUT /api/admin/settings/notifications/{provider}.
func (b *Backend) HandlePutNotificationSetting(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	var req putNotificationSettingRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	setting := kure.NotificationSetting{Provider: provider, Config: req.Config, Enabled: req.Enabled}
	if err := b.Store.SetNotificationSetting(r.Context(), setting); err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, setting)
}

// llmConfigResponse never carries the decrypted API key; only whether one is
// set, mirroring the teacher's masked-secret response shape
// (internal/auth/oidcadmin.go's OIDCConfigResponse).
type llmConfigResponse struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	BaseURL   string `json:"base_url"`
	APIKeySet bool   `json:"api_key_set"`
}

// HandleGetLLMConfig implements GET /api/admin/settings/llm. Decrypting the
// stored key (rather than just reporting it's present) confirms
// ENCRYPTION_KEY still matches what it was encrypted with before any caller
// relies on it.
func (b *Backend) HandleGetLLMConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := b.Store.GetLLMConfig(r.Context())
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}

	resp := llmConfigResponse{Provider: cfg.Provider, Model: cfg.Model, BaseURL: cfg.BaseURL}
	if cfg.APIKey != "" {
		if b.EncryptionKey == "" {
			httpserver.RespondDomainError(w, r, b.Logger, kure.ValidationError("ENCRYPTION_KEY is not configured, cannot read stored LLM config"))
			return
		}
		if _, err := crypto.Decrypt(cfg.APIKey, b.EncryptionKey); err != nil {
			httpserver.RespondDomainError(w, r, b.Logger, kure.Wrap(kure.KindInternal, "decrypting stored LLM config", err))
			return
		}
		resp.APIKeySet = true
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

type putLLMConfigRequest struct {
	Provider string `json:"provider" validate:"required"`
	APIKey   string `json:"api_key" validate:"required"`
	Model    string `json:"model" validate:"required"`
	BaseURL  string `json:"base_url" validate:"required,url"`
}

// HandlePutLLMConfig implements PUT /api/admin/settings/llm, encrypting the
// API key at rest (§6: "ENCRYPTION_KEY required if LLM config is stored").
func (b *Backend) HandlePutLLMConfig(w http.ResponseWriter, r *http.Request) {
	var req putLLMConfigRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if b.EncryptionKey == "" {
		httpserver.RespondDomainError(w, r, b.Logger, kure.ValidationError("ENCRYPTION_KEY must be configured before an LLM config can be stored"))
		return
	}

	encrypted, err := crypto.Encrypt(req.APIKey, b.EncryptionKey)
	if err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, kure.Wrap(kure.KindInternal, "encrypting LLM config api key", err))
		return
	}

	cfg := kure.LLMConfig{Provider: req.Provider, APIKey: encrypted, Model: req.Model, BaseURL: req.BaseURL}
	if err := b.Store.SetLLMConfig(r.Context(), cfg); err != nil {
		httpserver.RespondDomainError(w, r, b.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, llmConfigResponse{Provider: cfg.Provider, Model: cfg.Model, BaseURL: cfg.BaseURL, APIKeySet: true})
}
