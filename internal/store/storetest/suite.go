// Package storetest holds a compliance suite shared by every store.Store driver.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaintel/eventmemory/internal/model"
	"github.com/qaintel/eventmemory/internal/store"
)

// Run exercises the event log and journal contract against a store.Store.
// makeStore must return a clean, isolated store for each call.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("IngestIsIdempotentByContent", func(t *testing.T) { testIngestIdempotent(t, makeStore(t)) })
	t.Run("IngestConflictingID", func(t *testing.T) { testConflictingID(t, makeStore(t)) })
	t.Run("IngestRejectsInvalid", func(t *testing.T) { testIngestRejectsInvalid(t, makeStore(t)) })
	t.Run("GetEventRoundTrip", func(t *testing.T) { testGetEventRoundTrip(t, makeStore(t)) })
	t.Run("StoredEventReingestsAsDuplicate", func(t *testing.T) { testStoredEventReingests(t, makeStore(t)) })
	t.Run("QueryFilters", func(t *testing.T) { testQueryFilters(t, makeStore(t)) })
	t.Run("QueryTagsPruneAfterLimit", func(t *testing.T) { testTagsPruneAfterLimit(t, makeStore(t)) })
	t.Run("RecentEvents", func(t *testing.T) { testRecentEvents(t, makeStore(t)) })
	t.Run("Stats", func(t *testing.T) { testStats(t, makeStore(t)) })
	t.Run("CommitChain", func(t *testing.T) { testCommitChain(t, makeStore(t)) })
	t.Run("BranchesAndTags", func(t *testing.T) { testBranchesAndTags(t, makeStore(t)) })
	t.Run("SnapshotEvents", func(t *testing.T) { testSnapshotEvents(t, makeStore(t)) })
}

// NewEvent builds a valid event with a unique id and content.
func NewEvent(project string, typ model.EventType, ts time.Time) *model.Event {
	id := uuid.New().String()
	return &model.Event{
		ID:         id,
		Type:       typ,
		Timestamp:  ts.UTC(),
		Project:    project,
		Branch:     model.DefaultBranch,
		Data:       map[string]any{"message": "event " + id},
		Importance: 1,
		Source:     "storetest",
	}
}

func mustIngest(t *testing.T, s store.Store, ev *model.Event) {
	t.Helper()
	inserted, err := s.Ingest(context.Background(), ev)
	require.NoError(t, err)
	require.True(t, inserted, "event %s should be new", ev.ID)
}

func testIngestIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	ts := time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)
	first := &model.Event{
		ID: "e-first", Type: model.EventTestFailure, Timestamp: ts, Project: "web",
		Source: "login.spec", Data: map[string]any{"error": "timeout"}, Importance: 2, Tags: []string{"a"},
	}
	second := *first
	second.ID = "e-second"
	second.Importance = 5
	second.Tags = []string{"b"}

	inserted, err := s.Ingest(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Ingest(ctx, &second)
	require.NoError(t, err)
	assert.False(t, inserted, "same content with a new id is a duplicate")

	inserted, err = s.Ingest(ctx, first)
	require.NoError(t, err)
	assert.False(t, inserted, "re-ingesting the same event is a no-op")

	got, err := s.GetEvent(ctx, "e-second")
	require.NoError(t, err)
	assert.Nil(t, got)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalEvents)
}

func testConflictingID(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := NewEvent("web", model.EventTestPass, time.Now())
	mustIngest(t, s, a)

	b := NewEvent("web", model.EventTestPass, time.Now())
	b.ID = a.ID
	_, err := s.Ingest(ctx, b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConflict), "got %v", err)
}

func testIngestRejectsInvalid(t *testing.T, s store.Store) {
	ev := NewEvent("web", "not-a-type", time.Now())
	_, err := s.Ingest(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrValidation))
}

func testGetEventRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	parent := "p-1"
	ev := &model.Event{
		ID:         "round-trip",
		Type:       model.EventHealingAction,
		Timestamp:  time.Date(2026, 2, 1, 12, 0, 0, 123456000, time.UTC),
		Project:    "signing",
		Branch:     "release",
		Data:       map[string]any{"selector": "#submit", "attempts": 3},
		Importance: 4.5,
		Tags:       []string{"healing", "selector"},
		Source:     "healer",
		ParentID:   &parent,
		RelatedIDs: []string{"r-1", "r-2"},
	}
	mustIngest(t, s, ev)

	got, err := s.GetEvent(ctx, "round-trip")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ev.Type, got.Type)
	assert.True(t, ev.Timestamp.Equal(got.Timestamp), "timestamp %v != %v", ev.Timestamp, got.Timestamp)
	assert.Equal(t, "release", got.Branch)
	assert.Equal(t, "#submit", got.Data["selector"])
	assert.Equal(t, json.Number("3"), got.Data["attempts"])
	assert.Equal(t, 4.5, got.Importance)
	assert.Equal(t, []string{"healing", "selector"}, got.Tags)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, "p-1", *got.ParentID)
	assert.Equal(t, []string{"r-1", "r-2"}, got.RelatedIDs)

	missing, err := s.GetEvent(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// A fetched event must hash like the original: sub-microsecond timestamps and
// integers beyond float64 precision survive the round trip.
func testStoredEventReingests(t *testing.T, s store.Store) {
	ctx := context.Background()
	ev := NewEvent("web", model.EventAPIError, time.Now())
	ev.Data["big"] = int64(9007199254740993)
	ev.Data["ratio"] = 0.25
	mustIngest(t, s, ev)

	got, err := s.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, json.Number("9007199254740993"), got.Data["big"])

	want, err := model.Checksum(got)
	require.NoError(t, err)
	norm := *ev
	norm.Normalize()
	orig, err := model.Checksum(&norm)
	require.NoError(t, err)
	assert.Equal(t, orig, want)

	inserted, err := s.Ingest(ctx, got)
	require.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = s.Ingest(ctx, ev)
	require.NoError(t, err)
	assert.False(t, inserted)
}

func testQueryFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 12; i++ {
		project := []string{"web", "api"}[i%2]
		branch := []string{"main", "main", "release"}[i%3]
		typ := []model.EventType{model.EventTestFailure, model.EventTestPass}[i%2]
		ev := NewEvent(project, typ, base.Add(time.Duration(i)*time.Minute))
		ev.Branch = branch
		ev.Importance = float64(i % 6)
		if i%4 == 0 {
			ev.Tags = []string{"X"}
		}
		mustIngest(t, s, ev)
	}

	for _, project := range []string{"web", "api"} {
		for _, branch := range []string{"main", "release"} {
			got, err := s.QueryEvents(ctx, model.EventQuery{Project: project, Branch: branch})
			require.NoError(t, err)
			for _, ev := range got {
				assert.Equal(t, project, ev.Project)
				assert.Equal(t, branch, ev.Branch)
			}
			for i := 1; i < len(got); i++ {
				assert.False(t, got[i].Timestamp.After(got[i-1].Timestamp), "results must be newest first")
			}
		}
	}

	defaulted, err := s.QueryEvents(ctx, model.EventQuery{Project: "web"})
	require.NoError(t, err)
	for _, ev := range defaulted {
		assert.Equal(t, model.DefaultBranch, ev.Branch)
	}

	tagged, err := s.QueryEvents(ctx, model.EventQuery{Project: "web", TagsInclude: []string{"X"}})
	require.NoError(t, err)
	require.NotEmpty(t, tagged)
	for _, ev := range tagged {
		assert.Contains(t, ev.Tags, "X")
	}

	untagged, err := s.QueryEvents(ctx, model.EventQuery{Project: "web", TagsExclude: []string{"X"}})
	require.NoError(t, err)
	for _, ev := range untagged {
		assert.NotContains(t, ev.Tags, "X")
	}

	important, err := s.QueryEvents(ctx, model.EventQuery{Project: "web", MinImportance: 4})
	require.NoError(t, err)
	for _, ev := range important {
		assert.GreaterOrEqual(t, ev.Importance, 4.0)
	}

	failures, err := s.QueryEvents(ctx, model.EventQuery{Project: "web", Types: []model.EventType{model.EventTestFailure}})
	require.NoError(t, err)
	for _, ev := range failures {
		assert.Equal(t, model.EventTestFailure, ev.Type)
	}

	page1, err := s.QueryEvents(ctx, model.EventQuery{Project: "web", Limit: 2})
	require.NoError(t, err)
	page2, err := s.QueryEvents(ctx, model.EventQuery{Project: "web", Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotEmpty(t, page2)
	assert.NotEqual(t, page1[0].ID, page2[0].ID)

	everyBranch, err := s.QueryEvents(ctx, model.EventQuery{Project: "web", AllBranches: true})
	require.NoError(t, err)
	assert.Len(t, everyBranch, 6)

	everything, err := s.QueryEvents(ctx, model.EventQuery{AllBranches: true})
	require.NoError(t, err)
	assert.Len(t, everything, 12)

	none, err := s.QueryEvents(ctx, model.EventQuery{Project: "unknown"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func testTagsPruneAfterLimit(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	// Newest three events carry no tag; the tagged one is fourth newest.
	for i := 0; i < 4; i++ {
		ev := NewEvent("web", model.EventTestPass, base.Add(-time.Duration(i)*time.Minute))
		if i == 3 {
			ev.Tags = []string{"nightly"}
		}
		mustIngest(t, s, ev)
	}

	got, err := s.QueryEvents(ctx, model.EventQuery{Project: "web", TagsInclude: []string{"nightly"}, Limit: 3})
	require.NoError(t, err)
	assert.Empty(t, got, "tag pruning runs on the limited page")

	got, err = s.QueryEvents(ctx, model.EventQuery{Project: "web", TagsInclude: []string{"nightly"}, Limit: 4})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func testRecentEvents(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	fresh := NewEvent("web", model.EventTestPass, now.Add(-time.Hour))
	stale := NewEvent("web", model.EventTestPass, now.Add(-48*time.Hour))
	other := NewEvent("api", model.EventTestPass, now.Add(-2*time.Hour))
	other.Branch = "feature"
	for _, ev := range []*model.Event{fresh, stale, other} {
		mustIngest(t, s, ev)
	}

	got, err := s.RecentEvents(ctx, "web", 24*time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fresh.ID, got[0].ID)

	all, err := s.RecentEvents(ctx, "", 24*time.Hour, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func testStats(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		ev := NewEvent("web", model.EventTestFailure, now.Add(-time.Duration(i)*time.Minute))
		ev.Importance = 4.5
		mustIngest(t, s, ev)
	}
	mustIngest(t, s, NewEvent("api", model.EventDocumentUpload, now))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.TotalEvents)
	assert.Equal(t, 3, st.HighImportanceCount)
	assert.Equal(t, 3, st.ByType[string(model.EventTestFailure)])
	assert.Equal(t, 1, st.ByType[string(model.EventDocumentUpload)])
	assert.Equal(t, 3, st.ByProject["web"])
	assert.Equal(t, 4, st.ByBranch[model.DefaultBranch])
	assert.Equal(t, 1, st.Branches, "main exists after init")
	assert.Equal(t, 0, st.Commits)
}

func testCommitChain(t *testing.T, s store.Store) {
	ctx := context.Background()

	branches, err := s.ListBranches(ctx)
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, model.DefaultBranch, branches[0].Name)
	assert.Nil(t, branches[0].HeadCommit)

	first, err := s.CommitEvents(ctx, model.CommitRequest{Branch: "main", EventIDs: []string{"e1", "e2"}, Message: "nightly run"})
	require.NoError(t, err)
	require.NotEmpty(t, first)

	branches, err = s.ListBranches(ctx)
	require.NoError(t, err)
	require.NotNil(t, branches[0].HeadCommit)
	assert.Equal(t, first, *branches[0].HeadCommit)

	second, err := s.CommitEvents(ctx, model.CommitRequest{Branch: "main", EventIDs: []string{"e3"}, Message: "follow-up"})
	require.NoError(t, err)

	c, err := s.GetCommit(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, c)
	require.NotNil(t, c.ParentCommit)
	assert.Equal(t, first, *c.ParentCommit)
	assert.Equal(t, model.DefaultAuthor, c.Author)
	assert.Equal(t, []string{"e3"}, c.EventIDs)

	root, err := s.GetCommit(ctx, first)
	require.NoError(t, err)
	assert.Nil(t, root.ParentCommit)
	assert.Equal(t, []string{"e1", "e2"}, root.EventIDs)

	log, err := s.Log(ctx, "main", 0)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, second, log[0].CommitID)
	assert.Equal(t, first, log[1].CommitID)

	limited, err := s.Log(ctx, "main", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = s.CommitEvents(ctx, model.CommitRequest{Branch: "ghost", Message: "x"})
	assert.True(t, errors.Is(err, model.ErrNotFound))

	_, err = s.Log(ctx, "ghost", 0)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	missing, err := s.GetCommit(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testBranchesAndTags(t *testing.T, s store.Store) {
	ctx := context.Background()

	created, err := s.CreateBranch(ctx, "experiments", "scratch space")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateBranch(ctx, "experiments", "again")
	require.NoError(t, err)
	assert.False(t, created)

	created, err = s.CreateBranch(ctx, model.DefaultBranch, "")
	require.NoError(t, err)
	assert.False(t, created, "main is created at init")

	branches, err := s.ListBranches(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(branches))
	for _, b := range branches {
		names = append(names, b.Name)
	}
	assert.Equal(t, []string{"experiments", "main"}, names)

	// Commits on one branch never move another branch's head.
	expCommit, err := s.CommitEvents(ctx, model.CommitRequest{Branch: "experiments", Message: "try", Author: "qa", Tags: []string{"wip"}})
	require.NoError(t, err)
	mainLog, err := s.Log(ctx, "main", 0)
	require.NoError(t, err)
	assert.Empty(t, mainLog)

	ok, err := s.CreateTag(ctx, "v1", expCommit, "first cut")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CreateTag(ctx, "v1", expCommit, "dup")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.CreateTag(ctx, "v2", "missing-commit", "")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	tags, err := s.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, expCommit, tags[0].CommitID)

	c, err := s.GetCommit(ctx, expCommit)
	require.NoError(t, err)
	assert.Equal(t, "qa", c.Author)
	assert.Equal(t, []string{"wip"}, c.Tags)
}

func testSnapshotEvents(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	var ids []string
	for i := 0; i < 3; i++ {
		ev := NewEvent("web", model.EventTestPass, now.Add(time.Duration(i)*time.Second))
		mustIngest(t, s, ev)
		ids = append(ids, ev.ID)
	}
	ids = append(ids, "never-stored")
	commitID, err := s.CommitEvents(ctx, model.CommitRequest{EventIDs: ids, Message: "snapshot"})
	require.NoError(t, err)

	events, err := s.SnapshotEvents(ctx, commitID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, ids[i], ev.ID, fmt.Sprintf("position %d", i))
	}

	_, err = s.SnapshotEvents(ctx, "missing")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}
