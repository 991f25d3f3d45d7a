package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() *Event {
	return &Event{
		ID:         "e1",
		Type:       EventTestFailure,
		Timestamp:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Project:    "web",
		Source:     "login.spec",
		Data:       map[string]any{"error": "timeout", "test_id": "T-1"},
		Importance: 3,
		Tags:       []string{"login"},
	}
}

func TestChecksum_IgnoresIDImportanceTags(t *testing.T) {
	a := sampleEvent()
	b := sampleEvent()
	b.ID = "e2"
	b.Importance = 5
	b.Tags = []string{"other"}
	b.Branch = "release"

	ca, err := Checksum(a)
	require.NoError(t, err)
	cb, err := Checksum(b)
	require.NoError(t, err)
	assert.Equal(t, ca, cb)
}

func TestChecksum_CoreFieldsParticipate(t *testing.T) {
	base, err := Checksum(sampleEvent())
	require.NoError(t, err)

	mutations := map[string]func(e *Event){
		"timestamp": func(e *Event) { e.Timestamp = e.Timestamp.Add(time.Microsecond) },
		"type":      func(e *Event) { e.Type = EventTestPass },
		"project":   func(e *Event) { e.Project = "api" },
		"source":    func(e *Event) { e.Source = "other.spec" },
		"data":      func(e *Event) { e.Data["error"] = "assertion" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			e := sampleEvent()
			mutate(e)
			got, err := Checksum(e)
			require.NoError(t, err)
			assert.NotEqual(t, base, got)
		})
	}
}

func TestChecksum_TimezoneInsensitive(t *testing.T) {
	a := sampleEvent()
	b := sampleEvent()
	b.Timestamp = a.Timestamp.In(time.FixedZone("CET", 3600))

	ca, _ := Checksum(a)
	cb, _ := Checksum(b)
	assert.Equal(t, ca, cb)
}

func TestChecksum_NilAndEmptyDataMatch(t *testing.T) {
	a := sampleEvent()
	a.Data = nil
	b := sampleEvent()
	b.Data = map[string]any{}

	ca, _ := Checksum(a)
	cb, _ := Checksum(b)
	assert.Equal(t, ca, cb)
}

func TestValidate(t *testing.T) {
	ok := sampleEvent()
	require.NoError(t, ok.Validate())

	cases := map[string]func(e *Event){
		"missing id":          func(e *Event) { e.ID = "" },
		"unknown type":        func(e *Event) { e.Type = "bogus" },
		"zero timestamp":      func(e *Event) { e.Timestamp = time.Time{} },
		"missing project":     func(e *Event) { e.Project = "" },
		"missing source":      func(e *Event) { e.Source = "" },
		"negative importance": func(e *Event) { e.Importance = -1 },
		"importance too high": func(e *Event) { e.Importance = 5.5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			e := sampleEvent()
			mutate(e)
			err := e.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
		})
	}
}

func TestNormalize_DefaultsBranchAndUTC(t *testing.T) {
	e := sampleEvent()
	e.Timestamp = e.Timestamp.In(time.FixedZone("EST", -5*3600))
	e.Normalize()
	assert.Equal(t, DefaultBranch, e.Branch)
	assert.Equal(t, time.UTC, e.Timestamp.Location())
}

func TestNormalize_TruncatesToMicroseconds(t *testing.T) {
	e := sampleEvent()
	e.Timestamp = time.Date(2026, 3, 4, 5, 6, 7, 123456789, time.UTC)
	e.Normalize()
	assert.Equal(t, 123456000, e.Timestamp.Nanosecond())

	again := *e
	again.Normalize()
	assert.True(t, e.Timestamp.Equal(again.Timestamp), "normalize is idempotent")
}

func TestEventQuery_MatchesTags(t *testing.T) {
	e := &Event{Tags: []string{"smoke", "login"}}

	assert.True(t, EventQuery{TagsInclude: []string{"smoke"}}.MatchesTags(e))
	assert.False(t, EventQuery{TagsInclude: []string{"smoke", "nightly"}}.MatchesTags(e))
	assert.False(t, EventQuery{TagsExclude: []string{"login"}}.MatchesTags(e))
	assert.True(t, EventQuery{}.MatchesTags(e))
}

func TestClone_IsDeep(t *testing.T) {
	parent := "p"
	e := sampleEvent()
	e.ParentID = &parent
	e.Data["steps"] = []any{map[string]any{"name": "login"}}

	c := e.Clone()
	c.Data["error"] = "other"
	c.Data["steps"].([]any)[0].(map[string]any)["name"] = "logout"
	c.Tags[0] = "other"
	*c.ParentID = "q"

	assert.Equal(t, "timeout", e.Data["error"])
	assert.Equal(t, "login", e.Data["steps"].([]any)[0].(map[string]any)["name"])
	assert.Equal(t, []string{"login"}, e.Tags)
	assert.Equal(t, "p", *e.ParentID)
}
