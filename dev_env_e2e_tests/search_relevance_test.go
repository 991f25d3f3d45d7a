//go:build e2e
// +build e2e

package e2e

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Topic-distinct events: each topical query must rank its own event first
// within the project.
func TestDevEnv_RetrieveRelevance(t *testing.T) {
	base := baseURL(t)
	waitForHealthy(t, base, 30*time.Second)

	project := fmt.Sprintf("e2e-rel-%d", time.Now().UnixNano())
	now := time.Now().Add(-30 * time.Minute)

	topics := []struct {
		typ, message, query string
	}{
		{"document-upload", "invoice pdf upload rejected because the file exceeded the size limit", "invoice pdf upload size limit"},
		{"signing-attempt", "electronic signature failed after the certificate expired", "signature certificate expired"},
		{"performance-regression", "dashboard p95 latency doubled after the cache eviction change", "dashboard latency cache eviction"},
	}
	ids := make([]string, len(topics))
	for i, tc := range topics {
		ids[i] = uuid.NewString()
		var res struct {
			Inserted bool `json:"inserted"`
		}
		mustJSON(t, postJSON(t, base+"/api/events", event(ids[i], project, tc.typ, tc.message, 3, now)), &res)
		if !res.Inserted {
			t.Fatalf("event %d deduplicated unexpectedly", i)
		}
	}
	for i := range topics {
		waitForHit(t, base, topics[i].message, ids[i], 50, 30*time.Second)
	}

	for i, tc := range topics {
		t.Run(tc.typ, func(t *testing.T) {
			var ret struct {
				Results []struct {
					Event struct {
						ID string `json:"id"`
					} `json:"event"`
				} `json:"results"`
			}
			mustJSON(t, postJSON(t, base+"/api/retrieve", map[string]any{
				"query": tc.query, "project": project, "max_events": 3,
			}), &ret)
			if len(ret.Results) == 0 {
				t.Fatalf("no results for %q", tc.query)
			}
			if got := ret.Results[0].Event.ID; got != ids[i] {
				t.Fatalf("query %q ranked %s first, want %s", tc.query, got, ids[i])
			}
		})
	}
}
