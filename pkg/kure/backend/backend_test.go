package backend

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kure-project/kure-monitor/pkg/kure"
	"github.com/kure-project/kure-monitor/pkg/kure/llm"
	"github.com/kure-project/kure-monitor/pkg/kure/storage"
)

func newTestBackend() *Backend {
	return &Backend{
		Store:   storage.NewFake(),
		Solver:  llm.NewRuleBasedSolver(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: kure.NewClusterMetrics(),
	}
}

func newTestRouter(b *Backend) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/pods/failed", b.HandleIngestPodFailure)
	r.Get("/api/pods/failed", b.HandleListPodFailures)
	r.Patch("/api/pods/failed/{id}/status", b.HandlePatchPodStatus)
	r.Post("/api/pods/dismiss-deleted", b.HandleDismissDeleted)
	r.Post("/api/security/findings", b.HandleIngestFinding)
	r.Get("/api/security/findings", b.HandleListFindings)
	r.Post("/api/admin/excluded-rules", b.HandleAddExcludedRule)
	r.Post("/api/metrics/cluster", b.HandleReportClusterMetrics)
	r.Get("/api/metrics/cluster", b.HandleGetClusterMetrics)
	r.Get("/api/metrics/pods/{ns}/{pod}/history", b.HandleGetPodMetricsHistory)
	r.Get("/api/admin/settings/notifications/{provider}", b.HandleGetNotificationSetting)
	r.Put("/api/admin/settings/notifications/{provider}", b.HandlePutNotificationSetting)
	r.Get("/api/admin/settings/llm", b.HandleGetLLMConfig)
	r.Put("/api/admin/settings/llm", b.HandlePutLLMConfig)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIngestPodFailureDedupAndStatusTransition(t *testing.T) {
	b := newTestBackend()
	h := newTestRouter(b)

	body := map[string]any{
		"namespace": "prod",
		"pod_name":  "web",
		"reason":    "ImagePullBackOff",
	}

	rec := doJSON(t, h, http.MethodPost, "/api/pods/failed", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first ingest status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var first map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if first["solution"] == "" {
		t.Error("expected a non-empty rule-based solution to be attached")
	}

	rec = doJSON(t, h, http.MethodPost, "/api/pods/failed", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("re-ingest status = %d, want 200 (dedup update)", rec.Code)
	}

	listRec := doJSON(t, h, http.MethodGet, "/api/pods/failed", nil)
	var page struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(listRec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decoding list response: %v", err)
	}
	rows := page.Items
	if len(rows) != 1 {
		t.Fatalf("expected exactly one active row after re-ingest, got %d", len(rows))
	}

	id := int64(rows[0]["id"].(float64))

	patchRec := doJSON(t, h, http.MethodPatch, "/api/pods/failed/"+strconv.FormatInt(id, 10)+"/status", map[string]string{"status": "investigating"})
	if patchRec.Code != http.StatusOK {
		t.Fatalf("valid transition status = %d", patchRec.Code)
	}

	patchRec = doJSON(t, h, http.MethodPatch, "/api/pods/failed/"+strconv.FormatInt(id, 10)+"/status", map[string]string{"status": "new"})
	if patchRec.Code != http.StatusBadRequest {
		t.Fatalf("invalid transition status = %d, want 400", patchRec.Code)
	}
}

func TestIngestFindingDedupNoBroadcastOnUpdate(t *testing.T) {
	b := newTestBackend()
	h := newTestRouter(b)

	finding := map[string]any{
		"namespace":     "prod",
		"resource_type": "Pod",
		"resource_name": "web",
		"title":         "Writable root filesystem: nginx",
		"severity":      "high",
		"category":      "Security",
	}

	rec := doJSON(t, h, http.MethodPost, "/api/security/findings", finding)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first finding ingest status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var first map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if first["is_new"] != true {
		t.Error("expected is_new=true on first ingest")
	}

	rec = doJSON(t, h, http.MethodPost, "/api/security/findings", finding)
	var second map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if second["is_new"] != false {
		t.Error("expected is_new=false on re-ingest of identical finding")
	}
}

func TestDismissDeletedResolvesActiveRows(t *testing.T) {
	b := newTestBackend()
	h := newTestRouter(b)

	doJSON(t, h, http.MethodPost, "/api/pods/failed", map[string]any{
		"namespace": "prod",
		"pod_name":  "web",
		"reason":    "CrashLoopBackOff",
	})

	rec := doJSON(t, h, http.MethodPost, "/api/pods/dismiss-deleted", map[string]string{
		"namespace": "prod",
		"pod_name":  "web",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("dismiss-deleted status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resolved []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resolved); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resolved) != 1 || resolved[0]["status"] != "resolved" {
		t.Fatalf("expected one resolved row, got %v", resolved)
	}
}

func TestReportClusterMetricsStoresSnapshotAndHistory(t *testing.T) {
	b := newTestBackend()
	h := newTestRouter(b)

	rec := doJSON(t, h, http.MethodPost, "/api/metrics/cluster", map[string]any{
		"node_count":   3,
		"pod_count":    12,
		"cpu_millis":   1500,
		"memory_bytes": 4 * 1024 * 1024 * 1024,
		"pods": []map[string]any{
			{"namespace": "prod", "pod_name": "web", "cpu_millis": 100, "memory_bytes": 128 * 1024 * 1024},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("report status = %d, body = %s", rec.Code, rec.Body.String())
	}

	getRec := doJSON(t, h, http.MethodGet, "/api/metrics/cluster", nil)
	var snap map[string]any
	if err := json.Unmarshal(getRec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if snap["node_count"].(float64) != 3 {
		t.Fatalf("node_count = %v, want 3", snap["node_count"])
	}

	historyRec := doJSON(t, h, http.MethodGet, "/api/metrics/pods/prod/web/history", nil)
	var history []map[string]any
	if err := json.Unmarshal(historyRec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decoding history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one history point, got %d", len(history))
	}
}

func TestNotificationSettingGetMissingThenPutThenGet(t *testing.T) {
	b := newTestBackend()
	h := newTestRouter(b)

	missRec := doJSON(t, h, http.MethodGet, "/api/admin/settings/notifications/slack", nil)
	if missRec.Code != http.StatusNotFound {
		t.Fatalf("missing setting status = %d, want 404", missRec.Code)
	}

	putRec := doJSON(t, h, http.MethodPut, "/api/admin/settings/notifications/slack", map[string]any{
		"config":  map[string]string{"channel": "#alerts"},
		"enabled": true,
	})
	if putRec.Code != http.StatusOK {
		t.Fatalf("put status = %d, body = %s", putRec.Code, putRec.Body.String())
	}

	getRec := doJSON(t, h, http.MethodGet, "/api/admin/settings/notifications/slack", nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d", getRec.Code)
	}
	var setting map[string]any
	if err := json.Unmarshal(getRec.Body.Bytes(), &setting); err != nil {
		t.Fatalf("decoding setting: %v", err)
	}
	if setting["enabled"] != true {
		t.Errorf("expected enabled=true, got %v", setting["enabled"])
	}
}

func TestLLMConfigPutWithoutEncryptionKeyRejected(t *testing.T) {
	b := newTestBackend()
	h := newTestRouter(b)

	rec := doJSON(t, h, http.MethodPut, "/api/admin/settings/llm", map[string]any{
		"provider": "openai",
		"api_key":  "sk-test-key",
		"model":    "gpt-4",
		"base_url": "https://api.openai.com/v1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("put status = %d, body = %s, want 400", rec.Code, rec.Body.String())
	}
}

func TestLLMConfigPutThenGetMasksAPIKey(t *testing.T) {
	b := newTestBackend()
	b.EncryptionKey = "test-encryption-key-0123456789"
	h := newTestRouter(b)

	putRec := doJSON(t, h, http.MethodPut, "/api/admin/settings/llm", map[string]any{
		"provider": "openai",
		"api_key":  "sk-test-key",
		"model":    "gpt-4",
		"base_url": "https://api.openai.com/v1",
	})
	if putRec.Code != http.StatusOK {
		t.Fatalf("put status = %d, body = %s", putRec.Code, putRec.Body.String())
	}

	getRec := doJSON(t, h, http.MethodGet, "/api/admin/settings/llm", nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", getRec.Code, getRec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(getRec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["provider"] != "openai" || resp["model"] != "gpt-4" {
		t.Fatalf("unexpected response: %v", resp)
	}
	if resp["api_key_set"] != true {
		t.Errorf("expected api_key_set=true, got %v", resp["api_key_set"])
	}
	if _, present := resp["api_key"]; present {
		t.Errorf("response must not include the decrypted api_key, got %v", resp)
	}
}
