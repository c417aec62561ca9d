package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kure-project/kure-monitor/pkg/kure"
)

// BackendClient is the agent's outbound connection to cmd/backend's ingest
// endpoints, with the same 30 s ingest deadline and breaker trip threshold
// as the scanner's client (§5).
type BackendClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewBackendClient builds a client against baseURL, authenticating with the
// shared static bearer token.
func NewBackendClient(baseURL, apiKey string) *BackendClient {
	return &BackendClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "agent-backend-client",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

type ingestPodFailureRequest struct {
	Namespace       string                 `json:"namespace"`
	PodName         string                 `json:"pod_name"`
	Reason          string                 `json:"reason"`
	Message         string                 `json:"message"`
	NodeName        string                 `json:"node_name"`
	Phase           string                 `json:"phase"`
	ContainerStatus []kure.ContainerStatus `json:"container_statuses"`
	RecentEvents    []kure.PodEvent        `json:"recent_events"`
	Logs            string                 `json:"logs"`
	Manifest        string                 `json:"manifest"`
}

// IngestPodFailure reports one classified failure (§4.3, §4.2's
// POST /api/pods/failed contract).
func (c *BackendClient) IngestPodFailure(ctx context.Context, namespace, podName, nodeName, phase string, cl Classification, fc FailureContext) error {
	body, err := json.Marshal(ingestPodFailureRequest{
		Namespace:       namespace,
		PodName:         podName,
		Reason:          cl.Reason,
		Message:         cl.Message,
		NodeName:        nodeName,
		Phase:           phase,
		ContainerStatus: fc.ContainerStates,
		RecentEvents:    fc.RecentEvents,
		Logs:            fc.Logs,
		Manifest:        fc.Manifest,
	})
	if err != nil {
		return fmt.Errorf("encoding pod failure: %w", err)
	}

	_, err = c.doWithBreaker(ctx, http.MethodPost, "/api/pods/failed", body)
	return err
}

type dismissDeletedRequest struct {
	Namespace string `json:"namespace"`
	PodName   string `json:"pod_name"`
}

// DismissDeleted reports a pod that has disappeared from the cluster so the
// backend can auto-resolve its active records (§4.3 reconciliation).
func (c *BackendClient) DismissDeleted(ctx context.Context, namespace, podName string) error {
	body, err := json.Marshal(dismissDeletedRequest{Namespace: namespace, PodName: podName})
	if err != nil {
		return fmt.Errorf("encoding dismiss-deleted request: %w", err)
	}

	_, err = c.doWithBreaker(ctx, http.MethodPost, "/api/pods/dismiss-deleted", body)
	return err
}

type podMetricSample struct {
	Namespace   string  `json:"namespace"`
	PodName     string  `json:"pod_name"`
	CPUMillis   float64 `json:"cpu_millis"`
	MemoryBytes float64 `json:"memory_bytes"`
}

type reportClusterMetricsRequest struct {
	NodeCount   int               `json:"node_count"`
	PodCount    int               `json:"pod_count"`
	CPUMillis   float64           `json:"cpu_millis"`
	MemoryBytes float64           `json:"memory_bytes"`
	Pods        []podMetricSample `json:"pods"`
}

// ReportClusterMetrics reports one cluster-wide sample plus a per-pod
// resource breakdown (§3's ClusterMetrics supplement).
func (c *BackendClient) ReportClusterMetrics(ctx context.Context, nodeCount, podCount int, cpuMillis, memoryBytes float64, pods []podResourceSample) error {
	samples := make([]podMetricSample, 0, len(pods))
	for _, p := range pods {
		samples = append(samples, podMetricSample{
			Namespace:   p.Namespace,
			PodName:     p.PodName,
			CPUMillis:   p.CPUMillis,
			MemoryBytes: p.MemoryBytes,
		})
	}

	body, err := json.Marshal(reportClusterMetricsRequest{
		NodeCount:   nodeCount,
		PodCount:    podCount,
		CPUMillis:   cpuMillis,
		MemoryBytes: memoryBytes,
		Pods:        samples,
	})
	if err != nil {
		return fmt.Errorf("encoding cluster metrics: %w", err)
	}

	_, err = c.doWithBreaker(ctx, http.MethodPost, "/api/metrics/cluster", body)
	return err
}

func (c *BackendClient) doWithBreaker(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.do(ctx, method, path, body)
	})
	if err != nil {
		return nil, fmt.Errorf("agent backend client: %w", err)
	}
	return result.([]byte), nil
}

func (c *BackendClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
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
