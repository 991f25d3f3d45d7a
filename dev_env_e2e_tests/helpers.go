//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// env returns the value of key or the provided fallback when the env var is unset.
func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ping checks that a GET request to the given URL returns HTTP 200.
// It is used to quickly skip tests when the dev stack is not running.
func ping(url string) error {
	r, err := http.Get(url)
	if err != nil {
		return err
	}
	r.Body.Close()
	if r.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", r.StatusCode)
	}
	return nil
}

// baseURL returns the service address or skips the test when it is down.
func baseURL(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping in short mode")
	}
	u := env("EVENT_MEMORY_API", "http://localhost:8080")
	if err := ping(u + "/api/health"); err != nil {
		t.Skipf("event-memory service %s unreachable: %v", u, err)
	}
	return u
}

// postJSON sends body as JSON and returns the raw response.
func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

// mustJSON decodes the HTTP response body into v or fails the test with context.
func mustJSON(t *testing.T, resp *http.Response, v interface{}) {
	if resp == nil {
		t.Fatalf("nil response")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("http %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

// waitForHealthy polls /api/health until the service reports {"status":"healthy"}
// or the timeout elapses.
func waitForHealthy(t *testing.T, base string, timeout time.Duration) {
	t.Logf("Checking event-memory health at %s/api/health (timeout %s)", base, timeout)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/api/health")
		if err == nil && resp.StatusCode == http.StatusOK {
			var data struct {
				Status string `json:"status"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&data); err == nil && data.Status == "healthy" {
				_ = resp.Body.Close()
				return
			}
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("event-memory not healthy within %s", timeout)
}

type searchHit struct {
	EventID string  `json:"event_id"`
	Score   float64 `json:"score"`
}

// waitForHit polls /api/search until eventID shows up among the top k hits.
// Indexing is asynchronous so a fresh event is not searchable immediately.
func waitForHit(t *testing.T, base, query, eventID string, k int, timeout time.Duration) []searchHit {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var hits []searchHit
	for time.Now().Before(deadline) {
		var res struct {
			Hits []searchHit `json:"hits"`
		}
		mustJSON(t, postJSON(t, base+"/api/search", map[string]any{"query": query, "k": k}), &res)
		hits = res.Hits
		for _, h := range hits {
			if h.EventID == eventID {
				return hits
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("event %s not searchable within %s (last hits %v)", eventID, timeout, hits)
	return nil
}

func event(id, project, typ, message string, importance float64, ts time.Time) map[string]any {
	return map[string]any{
		"id":         id,
		"type":       typ,
		"timestamp":  ts.UTC().Format(time.RFC3339),
		"project":    project,
		"source":     "e2e",
		"importance": importance,
		"data":       map[string]any{"message": message},
	}
}
