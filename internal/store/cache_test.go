package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaintel/eventmemory/internal/model"
)

type countingStore struct {
	EventStore
	events map[string]*model.Event
	gets   int
	err    error
}

func (s *countingStore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.gets++
	if s.err != nil {
		return nil, s.err
	}
	ev, ok := s.events[id]
	if !ok {
		return nil, nil
	}
	cp := *ev
	return &cp, nil
}

func TestCachedEvents_ReadThrough(t *testing.T) {
	backing := &countingStore{events: map[string]*model.Event{
		"e1": {ID: "e1", Type: model.EventTestPass, Timestamp: time.Now().UTC(), Project: "web", Source: "s"},
	}}
	c, err := NewCachedEvents(backing, 100)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	first, err := c.GetEvent(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, first)
	c.Wait()

	second, err := c.GetEvent(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "e1", second.ID)
	assert.Equal(t, 1, backing.gets)
}

func TestCachedEvents_ReturnsIndependentCopies(t *testing.T) {
	backing := &countingStore{events: map[string]*model.Event{
		"e1": {
			ID: "e1", Type: model.EventTestFailure, Timestamp: time.Now().UTC(), Project: "web", Source: "s",
			Data: map[string]any{"error": "timeout", "meta": map[string]any{"retries": "2"}},
			Tags: []string{"nightly"},
		},
	}}
	c, err := NewCachedEvents(backing, 100)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	first, err := c.GetEvent(ctx, "e1")
	require.NoError(t, err)
	c.Wait()
	first.Data["error"] = "changed"
	first.Tags[0] = "changed"

	cached, err := c.GetEvent(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 1, backing.gets, "second read is served from the cache")
	cached.Data["meta"].(map[string]any)["retries"] = "9"
	cached.Tags = append(cached.Tags, "extra")

	again, err := c.GetEvent(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "timeout", again.Data["error"])
	assert.Equal(t, "2", again.Data["meta"].(map[string]any)["retries"])
	assert.Equal(t, []string{"nightly"}, again.Tags)
}

func TestCachedEvents_MissesAreNotCached(t *testing.T) {
	backing := &countingStore{events: map[string]*model.Event{}}
	c, err := NewCachedEvents(backing, 100)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ev, err := c.GetEvent(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, ev)
		c.Wait()
	}
	assert.Equal(t, 3, backing.gets)
}

func TestCachedEvents_PropagatesErrors(t *testing.T) {
	backing := &countingStore{err: errors.New("db down")}
	c, err := NewCachedEvents(backing, 100)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.GetEvent(context.Background(), "e1")
	assert.Error(t, err)
}
