//go:build e2e
// +build e2e

package e2e

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Ingest -> search -> retrieve -> daily digest against a running service.
func TestDevEnv_IngestSearchRetrieve(t *testing.T) {
	base := baseURL(t)
	waitForHealthy(t, base, 30*time.Second)

	project := fmt.Sprintf("e2e-%d", time.Now().UnixNano())
	id := uuid.NewString()
	msg := "checkout button unresponsive on safari " + id

	var ingest struct {
		EventID  string `json:"event_id"`
		Inserted bool   `json:"inserted"`
	}
	resp := postJSON(t, base+"/api/events", event(id, project, "test-failure", msg, 4, time.Now().Add(-time.Hour)))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("ingest status %d", resp.StatusCode)
	}
	mustJSON(t, resp, &ingest)
	if !ingest.Inserted || ingest.EventID != id {
		t.Fatalf("unexpected ingest result %+v", ingest)
	}

	// 1. Fresh event becomes searchable
	waitForHit(t, base, msg, id, 10, 30*time.Second)

	// 2. Retrieval is scoped to the project and carries the score breakdown
	var ret struct {
		Results []struct {
			Event struct {
				ID      string `json:"id"`
				Project string `json:"project"`
			} `json:"event"`
			Score float64 `json:"score"`
		} `json:"results"`
	}
	mustJSON(t, postJSON(t, base+"/api/retrieve", map[string]any{
		"query": msg, "project": project, "max_events": 5,
	}), &ret)
	if len(ret.Results) == 0 || ret.Results[0].Event.ID != id {
		t.Fatalf("expected %s first, got %+v", id, ret.Results)
	}
	for _, r := range ret.Results {
		if r.Event.Project != project {
			t.Fatalf("retrieve leaked project %s", r.Event.Project)
		}
	}

	// 3. Daily digest always answers, with or without a reachable LLM
	var digest struct {
		Summary string `json:"summary"`
	}
	mustJSON(t, postJSON(t, base+"/api/summaries/daily", map[string]any{
		"project": project, "date": time.Now().UTC().Format("2006-01-02"),
	}), &digest)
	if digest.Summary == "" {
		t.Fatalf("empty daily summary")
	}
}
