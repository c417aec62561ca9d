package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPSolverCallsProviderAndReturnsCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization header = %q, want Bearer secret", got)
		}
		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(completionResponse{Completion: "try restarting the pod"})
	}))
	defer srv.Close()

	s := NewHTTPSolver(srv.URL, "secret", "test-model")
	got, err := s.Solve(context.Background(), FailureContext{Namespace: "prod", PodName: "web", Reason: "OOMKilled"})
	if err != nil {
		t.Fatalf("Solve returned error: %v", err)
	}
	if got != "try restarting the pod" {
		t.Errorf("got %q, want %q", got, "try restarting the pod")
	}
}

func TestHTTPSolverNonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewHTTPSolver(srv.URL, "", "test-model")
	if _, err := s.Solve(context.Background(), FailureContext{Reason: "OOMKilled"}); err == nil {
		t.Error("expected error on non-200 provider response")
	}
}
