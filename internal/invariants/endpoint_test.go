//go:build invariants
// +build invariants

package invariants

import (
	"net/http"
	"os"
	"testing"
)

// TestRunningServiceInvariants runs the checker against a deployed service.
// Point EVENT_MEMORY_API at it; defaults to localhost:8080.
func TestRunningServiceInvariants(t *testing.T) {
	baseURL := os.Getenv("EVENT_MEMORY_API")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	resp, err := http.Get(baseURL + "/api/health")
	if err != nil {
		t.Skipf("event-memory service not reachable at %s: %v", baseURL, err)
	}
	resp.Body.Close()

	checker := NewInvariantChecker(baseURL)
	checker.CheckIngestIdempotency(t, "invariants")
	checker.CheckCommitChain(t, "invariants")
	checker.CheckProjectIsolation(t, "invariants-a", "invariants-b")
}
