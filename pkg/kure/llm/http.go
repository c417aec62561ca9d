package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// llmQPS and llmBurst bound outbound calls to the configured provider so a
// burst of pod failures can't blow through its own rate limit before the
// circuit breaker ever sees a failure.
const (
	llmQPS   rate.Limit = 2
	llmBurst            = 4
)

// HTTPSolver calls an admin-configured LLM provider's completion endpoint
// over plain net/http — no vendor SDK, since spec §6 names no specific
// provider and the teacher never imports one either. Wrapped in a circuit
// breaker so a failing provider degrades the "AI retry" path without
// hammering it, mirroring the scanner's outbound-call resilience shape.
type HTTPSolver struct {
	baseURL  string
	apiKey   string
	model    string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	throttle *rate.Limiter
}

// NewHTTPSolver builds an HTTPSolver from a decrypted LLMConfig. The 60 s
// client timeout matches §5's "60 s for NVD/LLM calls" deadline.
func NewHTTPSolver(baseURL, apiKey, model string) *HTTPSolver {
	return &HTTPSolver{
		baseURL:  baseURL,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: 60 * time.Second},
		throttle: rate.NewLimiter(llmQPS, llmBurst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "llm-solver",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

type completionRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Completion string `json:"completion"`
}

// Solve implements Solver.
func (s *HTTPSolver) Solve(ctx context.Context, fc FailureContext) (string, error) {
	if err := s.throttle.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm solver: %w", err)
	}
	result, err := s.breaker.Execute(func() (any, error) {
		return s.call(ctx, fc)
	})
	if err != nil {
		return "", fmt.Errorf("llm solver: %w", err)
	}
	return result.(string), nil
}

func (s *HTTPSolver) call(ctx context.Context, fc FailureContext) (string, error) {
	prompt := fmt.Sprintf("Pod %s/%s failed with reason %q: %s", fc.Namespace, fc.PodName, fc.Reason, fc.Message)

	body, err := json.Marshal(completionRequest{Model: s.model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var out completionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return out.Completion, nil
}
