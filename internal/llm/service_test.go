package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaintel/eventmemory/internal/insights"
	"github.com/qaintel/eventmemory/internal/model"
)

func newTestService(url string) *Service {
	return New(Config{BaseURL: url, Model: "test-model", Timeout: 2 * time.Second, HealthTimeout: time.Second}, zerolog.Nop())
}

func completionServer(t *testing.T, content string, got *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		if got != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateCompletion(t *testing.T) {
	var req chatRequest
	srv := completionServer(t, "  all green  ", &req)
	s := newTestService(srv.URL + "/v1/")

	out := s.GenerateCompletion(context.Background(), []Message{{Role: "user", Content: "hi"}}, 0.3, 50)
	assert.Equal(t, "all green", out)
	assert.Equal(t, "test-model", req.Model)
	assert.Equal(t, 0.3, req.Temperature)
	assert.Equal(t, 50, req.MaxTokens)
	require.Len(t, req.Messages, 1)
}

func TestGenerateCompletion_FailsOpen(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		"no choices": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices":[]}`))
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices":`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			assert.Empty(t, newTestService(srv.URL).GenerateCompletion(context.Background(), nil, 0, 0))
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		assert.Empty(t, newTestService(url).GenerateCompletion(context.Background(), nil, 0, 0))
	})
}

func TestCheckHealth(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	s := newTestService(srv.URL)
	assert.True(t, s.CheckHealth(context.Background()))
	status.Store(http.StatusBadGateway)
	assert.False(t, s.CheckHealth(context.Background()))
	assert.Error(t, s.HealthPing(context.Background()))
}

func TestSummarizeDailyEvents_FallbackIsDeterministic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()
	s := newTestService(srv.URL)

	stats := insights.DailyStats{TotalEvents: 5, HighImportanceCount: 2, ByType: map[string]int{"test-failure": 3}}
	date := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)

	first := s.SummarizeDailyEvents(context.Background(), nil, stats, "web", date)
	second := s.SummarizeDailyEvents(context.Background(), nil, stats, "web", date)
	assert.Equal(t, first, second)
	assert.Equal(t, "Recorded 5 events today for project web. 2 were high-importance. Most common event type: test-failure (3).", first)
	for _, want := range []string{"5", "2", "test-failure"} {
		assert.Contains(t, first, want)
	}
}

func TestSummaries_UseModelOutputAndTemperatures(t *testing.T) {
	var req chatRequest
	srv := completionServer(t, "model says hi", &req)
	s := newTestService(srv.URL + "/v1")
	ctx := context.Background()
	date := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "model says hi", s.SummarizeDailyEvents(ctx, nil, insights.DailyStats{}, "web", date))
	assert.Equal(t, narrativeTemperature, req.Temperature)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[1].Content, "# Daily events for web on 2026-05-02")

	assert.Equal(t, "model says hi", s.SummarizeWeeklyEvents(ctx, nil, insights.WeeklyStats{}, insights.Trends{}, "web", date))
	assert.Equal(t, narrativeTemperature, req.Temperature)

	assert.Equal(t, "model says hi", s.SummarizeFailurePattern(ctx, nil, "timeout"))
	assert.Equal(t, analyticalTemperature, req.Temperature)
}

func TestFallbacks(t *testing.T) {
	week := time.Date(2026, 4, 13, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "No events recorded today for project api.", DailyFallback(insights.DailyStats{}, "api"))

	weekly := WeeklyFallback(
		insights.WeeklyStats{TotalEvents: 10, HighImportanceCount: 1, FailureCount: 3, PassCount: 1, ByType: map[string]int{"test-failure": 3, "deployment": 6}},
		insights.Trends{EventDelta: -2, FailureRate: 0.75, PreviousFailureRate: 0.5, RecurringIssues: []string{"test-failure"}},
		"web", week)
	assert.Contains(t, weekly, "Recorded 10 events for project web in the week of 2026-04-13 (-2 vs previous week).")
	assert.Contains(t, weekly, "failure rate 75.0% (previous week 50.0%)")
	assert.Contains(t, weekly, "Most common event type: deployment (6).")
	assert.Contains(t, weekly, "Recurring issues: test-failure.")

	failures := []model.Event{
		{Timestamp: week.Add(time.Hour), Data: map[string]any{"test_id": "t1"}},
		{Timestamp: week, Data: map[string]any{"test_id": "t2"}},
		{Timestamp: week.Add(2 * time.Hour), Data: map[string]any{"test_id": "t1"}},
	}
	pattern := PatternFallback(failures, "timeout")
	assert.True(t, strings.HasPrefix(pattern, "Pattern timeout occurred 3 times across 2 tests."))
	assert.Contains(t, pattern, "First seen 2026-04-13T00:00:00Z, last seen 2026-04-13T02:00:00Z.")
	assert.Equal(t, "No failures recorded for pattern x.", PatternFallback(nil, "x"))
}

func TestContextBlocksAreStable(t *testing.T) {
	date := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	events := []model.Event{{ID: "1", Type: model.EventTestFailure, Timestamp: date, Source: "login.spec", Importance: 4, Data: map[string]any{"error": "timeout"}}}
	stats := insights.Daily(events)
	stats.ByType["test-pass"] = 1

	a := DailyContext(events, stats, "web", date)
	b := DailyContext(events, stats, "web", date)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "## Events by type\n- test-failure: 1\n- test-pass: 1\n")
	assert.Contains(t, a, `error="timeout"`)

	p := PatternContext(events, "timeout")
	assert.Contains(t, p, "- Occurrences: 1")
	assert.Contains(t, p, "## Sources\n- login.spec\n")
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))

	got := truncate("x"+strings.Repeat("日", 10), 8)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "x日日...", got)
}
