// Package invariants checks the event store's guarantees through the public
// HTTP API only. The service is treated as an external system.
package invariants

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// InvariantChecker exercises a running event-memory service.
type InvariantChecker struct {
	baseURL string
	client  *http.Client
}

// NewInvariantChecker creates a new invariant checker
func NewInvariantChecker(baseURL string) *InvariantChecker {
	return &InvariantChecker{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CheckIngestIdempotency: re-ingesting identical content is a no-op that
// reports the same checksum, and reusing an id for different content is
// rejected without touching the stored event.
func (ic *InvariantChecker) CheckIngestIdempotency(t *testing.T, project string) {
	id := uniqueID("idem")
	ts := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	msg := "rollout finished " + id
	ev := eventRequest(id, project, "deployment", msg, ts)

	var first, second IngestResponse
	ic.decode(t, ic.makeRequest(t, "POST", "/api/events", ev, http.StatusCreated), &first)
	require.True(t, first.Inserted)
	require.NotEmpty(t, first.Checksum)

	t.Run("DuplicateIsNoop", func(t *testing.T) {
		ic.decode(t, ic.makeRequest(t, "POST", "/api/events", ev, http.StatusOK), &second)
		assert.False(t, second.Inserted)
		assert.Equal(t, first.Checksum, second.Checksum)
		assert.False(t, second.IndexQueued, "duplicates must not be re-indexed")
	})

	t.Run("SameContentNewIDIsNoop", func(t *testing.T) {
		other := eventRequest(uniqueID("idem"), project, "deployment", msg, ts)
		var res IngestResponse
		ic.decode(t, ic.makeRequest(t, "POST", "/api/events", other, http.StatusOK), &res)
		assert.False(t, res.Inserted)
		assert.Equal(t, first.Checksum, res.Checksum)
	})

	t.Run("ConflictingContentRejected", func(t *testing.T) {
		changed := eventRequest(id, project, "deployment", "rollout aborted "+id, ts)
		ic.makeRequest(t, "POST", "/api/events", changed, http.StatusConflict)

		var stored struct {
			Data map[string]any `json:"data"`
		}
		ic.decode(t, ic.makeRequest(t, "GET", "/api/events/"+id, nil, http.StatusOK), &stored)
		assert.Equal(t, msg, stored.Data["message"], "stored events are immutable")
	})
}

// CheckCommitChain: every commit on a branch points at the previous head and
// the log walks that chain newest first.
func (ic *InvariantChecker) CheckCommitChain(t *testing.T, project string) {
	branch := uniqueID("inv/branch")
	ic.makeRequest(t, "POST", "/api/branches", map[string]any{"name": branch}, http.StatusCreated)

	t.Run("BranchCreationIsIdempotent", func(t *testing.T) {
		var res struct {
			Created bool `json:"created"`
		}
		ic.decode(t, ic.makeRequest(t, "POST", "/api/branches", map[string]any{"name": branch}, http.StatusOK), &res)
		assert.False(t, res.Created)
	})

	ts := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	e1, e2 := uniqueID("chain"), uniqueID("chain")
	ic.makeRequest(t, "POST", "/api/events", eventRequest(e1, project, "user-feedback", "first "+e1, ts), http.StatusCreated)
	ic.makeRequest(t, "POST", "/api/events", eventRequest(e2, project, "user-feedback", "second "+e2, ts), http.StatusCreated)

	c1 := ic.commit(t, branch, []string{e1}, "first")
	c2 := ic.commit(t, branch, []string{e2}, "second")

	t.Run("ParentIsPreviousHead", func(t *testing.T) {
		assert.Nil(t, c1.ParentCommit, "first commit on a branch has no parent")
		require.NotNil(t, c2.ParentCommit)
		assert.Equal(t, c1.CommitID, *c2.ParentCommit)
	})

	t.Run("LogWalksChainNewestFirst", func(t *testing.T) {
		var log struct {
			Commits []CommitResponse `json:"commits"`
		}
		ic.decode(t, ic.makeRequest(t, "GET", "/api/branches/"+branch+"/log", nil, http.StatusOK), &log)
		require.Len(t, log.Commits, 2)
		assert.Equal(t, c2.CommitID, log.Commits[0].CommitID)
		assert.Equal(t, c1.CommitID, log.Commits[1].CommitID)
	})

	t.Run("SnapshotHoldsCommittedEvents", func(t *testing.T) {
		var snap struct {
			Events []struct {
				ID string `json:"id"`
			} `json:"events"`
		}
		ic.decode(t, ic.makeRequest(t, "GET", "/api/commits/"+c1.CommitID+"/events", nil, http.StatusOK), &snap)
		require.Len(t, snap.Events, 1)
		assert.Equal(t, e1, snap.Events[0].ID)
	})

	t.Run("UnknownBranchRejected", func(t *testing.T) {
		ic.makeRequest(t, "POST", "/api/branches/"+uniqueID("missing")+"/commits",
			map[string]any{"event_ids": []string{e1}, "message": "nope"}, http.StatusNotFound)
	})

	t.Run("TagsNeverMove", func(t *testing.T) {
		tag := uniqueID("v")
		ic.makeRequest(t, "POST", "/api/tags", map[string]any{"tag_name": tag, "commit_id": c1.CommitID}, http.StatusCreated)

		var res struct {
			Created bool `json:"created"`
		}
		ic.decode(t, ic.makeRequest(t, "POST", "/api/tags",
			map[string]any{"tag_name": tag, "commit_id": c2.CommitID}, http.StatusOK), &res)
		assert.False(t, res.Created)

		var tags struct {
			Tags []struct {
				Name     string `json:"tag_name"`
				CommitID string `json:"commit_id"`
			} `json:"tags"`
		}
		ic.decode(t, ic.makeRequest(t, "GET", "/api/tags", nil, http.StatusOK), &tags)
		found := false
		for _, tg := range tags.Tags {
			if tg.Name == tag {
				found = true
				assert.Equal(t, c1.CommitID, tg.CommitID)
			}
		}
		assert.True(t, found, "tag %s not listed", tag)
	})
}

// CheckProjectIsolation: queries scoped to one project never return another
// project's events.
func (ic *InvariantChecker) CheckProjectIsolation(t *testing.T, projectA, projectB string) {
	ts := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	a, b := uniqueID("iso"), uniqueID("iso")
	ic.makeRequest(t, "POST", "/api/events", eventRequest(a, projectA, "user-feedback", "alpha "+a, ts), http.StatusCreated)
	ic.makeRequest(t, "POST", "/api/events", eventRequest(b, projectB, "user-feedback", "beta "+b, ts), http.StatusCreated)

	var res struct {
		Events []struct {
			ID      string `json:"id"`
			Project string `json:"project"`
		} `json:"events"`
	}
	ic.decode(t, ic.makeRequest(t, "GET", "/api/events?project="+projectA+"&limit=1000", nil, http.StatusOK), &res)
	ids := make([]string, 0, len(res.Events))
	for _, e := range res.Events {
		assert.Equal(t, projectA, e.Project)
		ids = append(ids, e.ID)
	}
	assert.Contains(t, ids, a)
	assert.NotContains(t, ids, b)
}

func (ic *InvariantChecker) commit(t *testing.T, branch string, eventIDs []string, message string) CommitResponse {
	var c CommitResponse
	ic.decode(t, ic.makeRequest(t, "POST", "/api/branches/"+branch+"/commits",
		map[string]any{"event_ids": eventIDs, "message": message, "author": "invariants"}, http.StatusCreated), &c)
	require.NotEmpty(t, c.CommitID)
	return c
}

func (ic *InvariantChecker) decode(t *testing.T, body []byte, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body, v), "body: %s", string(body))
}

func (ic *InvariantChecker) makeRequest(t *testing.T, method, path string, body interface{}, expectedStatus int) []byte {
	t.Helper()
	var reqBody []byte
	var err error

	if body != nil {
		reqBody, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, ic.baseURL+path, bytes.NewBuffer(reqBody))
	require.NoError(t, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ic.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, expectedStatus, resp.StatusCode,
		"%s %s: %s", method, path, string(respBody))

	return respBody
}

var seq atomic.Int64

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}

func eventRequest(id, project, typ, message string, ts time.Time) map[string]any {
	return map[string]any{
		"id":         id,
		"type":       typ,
		"timestamp":  ts.Format(time.RFC3339),
		"project":    project,
		"source":     "invariants",
		"importance": 2,
		"data":       map[string]any{"message": message},
	}
}

// IngestResponse mirrors POST /api/events.
type IngestResponse struct {
	EventID     string `json:"event_id"`
	Inserted    bool   `json:"inserted"`
	Checksum    string `json:"checksum"`
	IndexQueued bool   `json:"indexed_queued"`
}

// CommitResponse mirrors a journal commit.
type CommitResponse struct {
	CommitID     string   `json:"commit_id"`
	Branch       string   `json:"branch"`
	EventIDs     []string `json:"event_ids"`
	ParentCommit *string  `json:"parent_commit,omitempty"`
}
