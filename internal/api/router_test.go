package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaintel/eventmemory/internal/embeddings/hash"
	"github.com/qaintel/eventmemory/internal/health"
	"github.com/qaintel/eventmemory/internal/indexqueue"
	"github.com/qaintel/eventmemory/internal/llm"
	"github.com/qaintel/eventmemory/internal/retriever"
	"github.com/qaintel/eventmemory/internal/services"
	"github.com/qaintel/eventmemory/internal/store/sqlite"
	"github.com/qaintel/eventmemory/internal/vectorindex"
)

type staticHealth struct{ report health.Report }

func (s staticHealth) Report() health.Report { return s.report }

type testEnv struct {
	server *httptest.Server
	index  *vectorindex.Index
}

// newTestEnv wires the real stack: SQLite in a temp dir, the hash embedder,
// an in-memory index with its queue and an LLM server that always fails so
// summaries use their deterministic fallbacks.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	nop := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())

	st, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "events.db"), nop)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	idx, err := vectorindex.New(ctx, hash.New(1024), vectorindex.Options{Model: "hash", Logger: nop})
	require.NoError(t, err)

	q := indexqueue.New(idx, indexqueue.Config{QueueSize: 64, SaveInterval: time.Hour}, nop)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(llmSrv.Close)
	summarizer := llm.New(llm.Config{BaseURL: llmSrv.URL, Timeout: 2 * time.Second}, nop)

	router := NewRouter(Deps{
		Memory:    services.NewMemoryService(st, q, nop),
		Digests:   services.NewDigestService(st, summarizer, nop),
		Index:     idx,
		Retriever: retriever.New(idx, st, nop),
		Queue:     q,
		Health: staticHealth{health.Report{
			Healthy:    true,
			Components: map[string]bool{"store": true, "embedder": true, "llm": false},
		}},
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, index: idx}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func eventBody(id, typ, message string, ts time.Time, importance float64) map[string]any {
	return map[string]any{
		"id":         id,
		"type":       typ,
		"timestamp":  ts.UTC().Format(time.RFC3339),
		"project":    "web",
		"source":     "ci",
		"importance": importance,
		"tags":       []string{"nightly"},
		"data":       map[string]any{"message": message},
	}
}

type ingestResponse struct {
	EventID       string `json:"event_id"`
	Inserted      bool   `json:"inserted"`
	Checksum      string `json:"checksum"`
	IndexedQueued bool   `json:"indexed_queued"`
}

type eventsResponse struct {
	Events []struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"events"`
	Count int `json:"count"`
}

func TestAPI_IngestAndGet(t *testing.T) {
	env := newTestEnv(t)
	ts := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)

	resp := env.do(t, "POST", "/api/events", eventBody("e1", "test-failure", "login timeout", ts, 4))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var first ingestResponse
	decode(t, resp, &first)
	assert.True(t, first.Inserted)
	assert.True(t, first.IndexedQueued)
	assert.Len(t, first.Checksum, 64)

	// Same content under another id is a duplicate, not an error.
	resp = env.do(t, "POST", "/api/events", eventBody("e2", "test-failure", "login timeout", ts, 1))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dup ingestResponse
	decode(t, resp, &dup)
	assert.False(t, dup.Inserted)
	assert.False(t, dup.IndexedQueued)
	assert.Equal(t, first.Checksum, dup.Checksum)

	// Same id with different content conflicts.
	resp = env.do(t, "POST", "/api/events", eventBody("e1", "test-failure", "other message", ts, 1))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, "GET", "/api/events/e1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got struct {
		ID         string         `json:"id"`
		Importance float64        `json:"importance"`
		Branch     string         `json:"branch"`
		Data       map[string]any `json:"data"`
	}
	decode(t, resp, &got)
	assert.Equal(t, "e1", got.ID)
	assert.Equal(t, 4.0, got.Importance)
	assert.Equal(t, "main", got.Branch)
	assert.Equal(t, "login timeout", got.Data["message"])

	resp = env.do(t, "GET", "/api/events/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_IngestGeneratesIDAndTimestamp(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, "POST", "/api/events", map[string]any{
		"type":    "deployment",
		"project": "web",
		"source":  "cd",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var res ingestResponse
	decode(t, resp, &res)
	require.NotEmpty(t, res.EventID)

	resp = env.do(t, "GET", "/api/events/"+res.EventID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_IngestValidation(t *testing.T) {
	env := newTestEnv(t)
	ts := time.Now().UTC()

	tests := []struct {
		name string
		body any
	}{
		{"invalid json", `{"type":`},
		{"unknown type", eventBody("x1", "coffee-break", "m", ts, 1)},
		{"importance out of range", eventBody("x2", "test-pass", "m", ts, 9)},
		{"missing project", map[string]any{"id": "x3", "type": "test-pass", "source": "ci"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, "POST", "/api/events", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestAPI_QueryAndRecent(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC().Truncate(time.Second)

	for _, b := range []map[string]any{
		eventBody("q1", "test-failure", "checkout broke", now.Add(-time.Hour), 4),
		eventBody("q2", "test-pass", "checkout ok", now.Add(-2*time.Hour), 1),
		eventBody("q3", "test-failure", "old failure", now.Add(-72*time.Hour), 2),
	} {
		require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/events", b).StatusCode)
	}

	var out eventsResponse
	resp := env.do(t, "GET", "/api/events?project=web&type=test-failure", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &out)
	require.Equal(t, 2, out.Count)
	assert.Equal(t, "q1", out.Events[0].ID, "newest first")
	assert.Equal(t, "q3", out.Events[1].ID)

	resp = env.do(t, "GET", "/api/events?project=web&min_importance=3", nil)
	decode(t, resp, &out)
	assert.Equal(t, 1, out.Count)

	resp = env.do(t, "GET", "/api/events?project=web&exclude_tag=nightly", nil)
	decode(t, resp, &out)
	assert.Equal(t, 0, out.Count)

	resp = env.do(t, "GET", "/api/events?project=web&limit=1&offset=1", nil)
	decode(t, resp, &out)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "q2", out.Events[0].ID)

	resp = env.do(t, "GET", "/api/events/recent?project=web&hours=24", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &out)
	assert.Equal(t, 2, out.Count)

	for _, bad := range []string{
		"/api/events?type=nope",
		"/api/events?limit=abc",
		"/api/events?since=yesterday",
		"/api/events/recent?hours=-2",
	} {
		assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", bad, nil).StatusCode, bad)
	}
}

func TestAPI_SearchRetrieveAndRebuild(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/events",
		eventBody("s1", "test-failure", "login timeout on submit", now.Add(-time.Hour), 3)).StatusCode)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/events",
		eventBody("s2", "test-failure", "payment declined by gateway", now.Add(-time.Hour), 3)).StatusCode)

	require.Eventually(t, func() bool { return env.index.Len() == 2 }, 5*time.Second, 10*time.Millisecond)

	resp := env.do(t, "POST", "/api/search", map[string]any{"query": "login timeout", "k": 5})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var search struct {
		Hits []vectorindex.Hit `json:"hits"`
	}
	decode(t, resp, &search)
	require.NotEmpty(t, search.Hits)
	assert.Equal(t, "s1", search.Hits[0].EventID)

	resp = env.do(t, "POST", "/api/retrieve", map[string]any{"query": "login timeout", "project": "web", "max_events": 5})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ret struct {
		Results []struct {
			Event struct {
				ID string `json:"id"`
			} `json:"event"`
			Score float64 `json:"score"`
		} `json:"results"`
	}
	decode(t, resp, &ret)
	require.NotEmpty(t, ret.Results)
	assert.Equal(t, "s1", ret.Results[0].Event.ID)

	// Another project sees nothing.
	resp = env.do(t, "POST", "/api/retrieve", map[string]any{"query": "login timeout", "project": "mobile"})
	decode(t, resp, &ret)
	assert.Empty(t, ret.Results)

	assert.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/search", map[string]any{"query": ""}).StatusCode)
	assert.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/retrieve", map[string]any{"query": "x"}).StatusCode)
	assert.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/retrieve", map[string]any{
		"query": "x", "project": "web", "weights": map[string]any{"semantic": -1},
	}).StatusCode)

	resp = env.do(t, "POST", "/api/index/rebuild", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rebuilt struct {
		Indexed int `json:"indexed"`
	}
	decode(t, resp, &rebuilt)
	assert.Equal(t, 2, rebuilt.Indexed)
	assert.Equal(t, 2, env.index.Len())

	resp = env.do(t, "GET", "/api/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats struct {
		TotalEvents int `json:"total_events"`
		Index       struct {
			Size      int `json:"size"`
			Dimension int `json:"dimension"`
			Queue     struct {
				Indexed int `json:"indexed"`
			} `json:"queue"`
		} `json:"index"`
	}
	decode(t, resp, &stats)
	assert.Equal(t, 2, stats.TotalEvents)
	assert.Equal(t, 2, stats.Index.Size)
	assert.Equal(t, 1024, stats.Index.Dimension)
	assert.Equal(t, 2, stats.Index.Queue.Indexed)
}

func TestAPI_Journal(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC().Truncate(time.Second)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/events", eventBody("j1", "deployment", "v1", now, 2)).StatusCode)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/events", eventBody("j2", "deployment", "v2", now.Add(time.Second), 2)).StatusCode)

	resp := env.do(t, "POST", "/api/branches", map[string]any{"name": "release/v1", "description": "first release"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = env.do(t, "POST", "/api/branches", map[string]any{"name": "release/v1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var created struct {
		Created bool `json:"created"`
	}
	decode(t, resp, &created)
	assert.False(t, created.Created)
	assert.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/branches", map[string]any{"name": "has space"}).StatusCode)

	resp = env.do(t, "GET", "/api/branches", nil)
	var branches struct {
		Count int `json:"count"`
	}
	decode(t, resp, &branches)
	assert.Equal(t, 2, branches.Count, "main plus release/v1")

	resp = env.do(t, "POST", "/api/branches/release/v1/commits", map[string]any{
		"event_ids": []string{"j1", "j2"},
		"message":   "release snapshot",
		"author":    "qa-bot",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var commit struct {
		CommitID string   `json:"commit_id"`
		Branch   string   `json:"branch"`
		EventIDs []string `json:"event_ids"`
	}
	decode(t, resp, &commit)
	require.NotEmpty(t, commit.CommitID)
	assert.Equal(t, "release/v1", commit.Branch)
	assert.Equal(t, []string{"j1", "j2"}, commit.EventIDs)

	resp = env.do(t, "GET", "/api/branches/release/v1/log", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var log struct {
		Count int `json:"count"`
	}
	decode(t, resp, &log)
	assert.Equal(t, 1, log.Count)

	assert.Equal(t, http.StatusOK, env.do(t, "GET", "/api/commits/"+commit.CommitID, nil).StatusCode)
	resp = env.do(t, "GET", "/api/commits/"+commit.CommitID+"/events", nil)
	var snap eventsResponse
	decode(t, resp, &snap)
	assert.Equal(t, 2, snap.Count)

	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/api/commits/nope", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, env.do(t, "POST", "/api/branches/ghost/commits", map[string]any{
		"event_ids": []string{"j1"}, "message": "m",
	}).StatusCode)
	assert.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/branches/main/commits", map[string]any{
		"event_ids": []string{}, "message": "m",
	}).StatusCode)

	tag := map[string]any{"tag_name": "v1.0", "commit_id": commit.CommitID, "message": "ship it"}
	assert.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/tags", tag).StatusCode)
	assert.Equal(t, http.StatusOK, env.do(t, "POST", "/api/tags", tag).StatusCode)
	assert.Equal(t, http.StatusNotFound, env.do(t, "POST", "/api/tags", map[string]any{"tag_name": "v2", "commit_id": "nope"}).StatusCode)

	resp = env.do(t, "GET", "/api/tags", nil)
	var tags struct {
		Count int `json:"count"`
	}
	decode(t, resp, &tags)
	assert.Equal(t, 1, tags.Count)
}

func TestAPI_Summaries(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"f1", "f2", "f3"} {
		ts := now.Add(-time.Duration(i+1) * time.Minute)
		require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/events",
			eventBody(id, "test-failure", "connection refused to db-01", ts, 4)).StatusCode)
	}

	resp := env.do(t, "POST", "/api/summaries/daily", map[string]any{"project": "web"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var daily struct {
		Period  string `json:"period"`
		Summary string `json:"summary"`
	}
	decode(t, resp, &daily)
	assert.Equal(t, "daily", daily.Period)
	assert.NotEmpty(t, daily.Summary)

	resp = env.do(t, "POST", "/api/summaries/weekly", map[string]any{"project": "web"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var weekly struct {
		Period  string `json:"period"`
		Summary string `json:"summary"`
	}
	decode(t, resp, &weekly)
	assert.Equal(t, "weekly", weekly.Period)
	assert.Contains(t, weekly.Summary, "web")

	resp = env.do(t, "POST", "/api/summaries/patterns", map[string]any{"project": "web", "days": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var patterns struct {
		Count    int `json:"count"`
		Patterns []struct {
			Summary string `json:"summary"`
		} `json:"patterns"`
	}
	decode(t, resp, &patterns)
	require.Equal(t, 1, patterns.Count)
	assert.NotEmpty(t, patterns.Patterns[0].Summary)

	assert.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/summaries/daily", map[string]any{}).StatusCode)
	assert.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/summaries/daily", map[string]any{"project": "web", "date": "01/02/2026"}).StatusCode)
	assert.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/summaries/patterns", map[string]any{"project": "web", "days": -1}).StatusCode)
}

func TestAPI_Health(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, "GET", "/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Status     string          `json:"status"`
		Components map[string]bool `json:"components"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "healthy", body.Status)
	assert.False(t, body.Components["llm"])
}

func TestHealthHandler_NilReporterIsUnhealthy(t *testing.T) {
	h := NewHealthHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	h.CheckHealth(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unhealthy"`)
}
