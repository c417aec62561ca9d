package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kure-project/kure-monitor/pkg/kure"
)

// BackendClient is the scanner's outbound connection to cmd/backend: findings
// ingest, resource-scoped clears, the startup exclusion-list fetch, and the
// scan-clear call. Wrapped in a circuit breaker exactly like llm.HTTPSolver,
// so a backend outage degrades scanning (stop emitting, keep watching)
// instead of retrying into a dead service.
type BackendClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewBackendClient builds a client against baseURL (e.g. http://backend:8080)
// authenticating with the shared static bearer token.
func NewBackendClient(baseURL, apiKey string) *BackendClient {
	return &BackendClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "scanner-backend-client",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

type ingestFindingRequest struct {
	ResourceType string `json:"resource_type"`
	ResourceName string `json:"resource_name"`
	Namespace    string `json:"namespace"`
	Title        string `json:"title"`
	Severity     string `json:"severity"`
	Category     string `json:"category"`
	Description  string `json:"description"`
	Remediation  string `json:"remediation"`
	Manifest     string `json:"manifest"`
}

// IngestFinding posts one finding with a 30 s deadline (§5).
func (c *BackendClient) IngestFinding(ctx context.Context, namespace, manifest string, f Finding) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	body, err := json.Marshal(ingestFindingRequest{
		ResourceType: f.ResourceType,
		ResourceName: f.ResourceName,
		Namespace:    namespace,
		Title:        f.Title,
		Severity:     f.Severity,
		Category:     f.Category,
		Description:  f.Description,
		Remediation:  f.Remediation,
		Manifest:     manifest,
	})
	if err != nil {
		return fmt.Errorf("encoding finding: %w", err)
	}

	_, err = c.doWithBreaker(ctx, http.MethodPost, "/api/security/findings", body)
	return err
}

// ClearResourceFindings issues the single-resource-scan contract's required
// DELETE before a rescan emits fresh findings for kind/namespace/name (§4.1).
func (c *BackendClient) ClearResourceFindings(ctx context.Context, kind, namespace, name string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	path := "/api/security/findings/resource/" + url.PathEscape(kind) + "/" + url.PathEscape(namespace) + "/" + url.PathEscape(name)
	_, err := c.doWithBreaker(ctx, http.MethodDelete, path, nil)
	return err
}

// ClearAllFindings implements the startup sequence's step 3, dropping every
// stale non-dismissed finding before the first full sweep (spec §2).
func (c *BackendClient) ClearAllFindings(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := c.doWithBreaker(ctx, http.MethodPost, "/api/security/scan/clear", nil)
	return err
}

// FetchExclusions fetches every exclusion list with the 10 s deadline §5
// assigns to exclusion-fetch calls.
func (c *BackendClient) FetchExclusions(ctx context.Context) ([]kure.ExcludedNamespace, []kure.ExcludedPod, []kure.ExcludedRule, []kure.TrustedRegistry, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var namespaces []kure.ExcludedNamespace
	if err := c.getJSON(ctx, "/api/admin/excluded-namespaces", &namespaces); err != nil {
		return nil, nil, nil, nil, err
	}
	var pods []kure.ExcludedPod
	if err := c.getJSON(ctx, "/api/admin/excluded-pods", &pods); err != nil {
		return nil, nil, nil, nil, err
	}
	var rules []kure.ExcludedRule
	if err := c.getJSON(ctx, "/api/admin/excluded-rules", &rules); err != nil {
		return nil, nil, nil, nil, err
	}
	var registries []kure.TrustedRegistry
	if err := c.getJSON(ctx, "/api/admin/trusted-registries", &registries); err != nil {
		return nil, nil, nil, nil, err
	}

	return namespaces, pods, rules, registries, nil
}

func (c *BackendClient) getJSON(ctx context.Context, path string, out any) error {
	data, err := c.doWithBreaker(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (c *BackendClient) doWithBreaker(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.do(ctx, method, path, body)
	})
	if err != nil {
		return nil, fmt.Errorf("scanner backend client: %w", err)
	}
	return result.([]byte), nil
}

func (c *BackendClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling backend: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backend returned status %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}
