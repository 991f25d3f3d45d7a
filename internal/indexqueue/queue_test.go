package indexqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaintel/eventmemory/internal/model"
)

type fakeIndex struct {
	mu      sync.Mutex
	ids     []string
	saves   int
	failIDs map[string]bool
}

func (f *fakeIndex) AddEvent(_ context.Context, ev *model.Event) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[ev.ID] {
		return false, errors.New("embed failed")
	}
	for _, id := range f.ids {
		if id == ev.ID {
			return false, nil
		}
	}
	f.ids = append(f.ids, ev.ID)
	return true, nil
}

func (f *fakeIndex) Rebuild(_ context.Context, evs []model.Event) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = nil
	for _, ev := range evs {
		f.ids = append(f.ids, ev.ID)
	}
	return len(evs), nil
}

func (f *fakeIndex) Save() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	return nil
}

func (f *fakeIndex) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...), f.saves
}

func TestQueue_IndexesInOrderAndSaves(t *testing.T) {
	idx := &fakeIndex{failIDs: map[string]bool{"bad": true}}
	q := New(idx, Config{QueueSize: 8, SaveInterval: 10 * time.Millisecond}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	for _, id := range []string{"a", "b", "bad", "a", "c"} {
		require.True(t, q.Enqueue(&model.Event{ID: id}))
	}
	assert.Eventually(t, func() bool {
		ids, saves := idx.snapshot()
		return len(ids) == 3 && saves > 0
	}, time.Second, 5*time.Millisecond)

	ids, _ := idx.snapshot()
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	st := q.Stats()
	assert.EqualValues(t, 3, st.Indexed)
	assert.EqualValues(t, 1, st.Failed)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestQueue_EnqueueRejectsWhenFull(t *testing.T) {
	q := New(&fakeIndex{}, Config{QueueSize: 1}, zerolog.Nop())
	assert.True(t, q.Enqueue(&model.Event{ID: "a"}))
	assert.False(t, q.Enqueue(&model.Event{ID: "b"}))
	assert.EqualValues(t, 1, q.Stats().Dropped)
	assert.Equal(t, 1, q.Stats().Pending)
}

func TestQueue_RebuildWaitsForWorker(t *testing.T) {
	idx := &fakeIndex{}
	q := New(idx, Config{QueueSize: 4, SaveInterval: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	require.True(t, q.Enqueue(&model.Event{ID: "old"}))
	n, err := q.Rebuild(context.Background(), events("x", "y"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	ids, _ := idx.snapshot()
	assert.Equal(t, []string{"x", "y"}, ids)

	cancel()
	<-done
	_, saves := idx.snapshot()
	assert.Equal(t, 1, saves, "dirty index is saved on shutdown")

	_, err = q.Rebuild(context.Background(), events())
	assert.ErrorIs(t, err, ErrClosed)
}

func events(ids ...string) Loader {
	return func(context.Context) ([]model.Event, error) {
		evs := make([]model.Event, 0, len(ids))
		for _, id := range ids {
			evs = append(evs, model.Event{ID: id})
		}
		return evs, nil
	}
}

// An event ingested after the rebuild has read the store must survive the swap.
func TestQueue_RebuildKeepsEventsEnqueuedDuringLoad(t *testing.T) {
	idx := &fakeIndex{}
	q := New(idx, Config{QueueSize: 4, SaveInterval: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	load := func(context.Context) ([]model.Event, error) {
		stored := []model.Event{{ID: "x"}, {ID: "y"}}
		assert.True(t, q.Enqueue(&model.Event{ID: "late"}))
		assert.True(t, q.Enqueue(&model.Event{ID: "y"}))
		return stored, nil
	}
	n, err := q.Rebuild(context.Background(), load)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Eventually(t, func() bool {
		ids, _ := idx.snapshot()
		return len(ids) == 3
	}, time.Second, 5*time.Millisecond)
	ids, _ := idx.snapshot()
	assert.Equal(t, []string{"x", "y", "late"}, ids)
}

func TestQueue_RebuildLoadErrorLeavesIndex(t *testing.T) {
	idx := &fakeIndex{ids: []string{"kept"}}
	q := New(idx, Config{QueueSize: 4, SaveInterval: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	boom := errors.New("store unavailable")
	_, err := q.Rebuild(context.Background(), func(context.Context) ([]model.Event, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	ids, _ := idx.snapshot()
	assert.Equal(t, []string{"kept"}, ids)
}
