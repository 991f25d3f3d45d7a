package store

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/qaintel/eventmemory/internal/model"
)

// CachedEvents decorates an EventStore with a read-through cache for GetEvent.
// Events are immutable once stored, so entries never need invalidation.
// Callers get their own deep copy and may modify it.
type CachedEvents struct {
	EventStore
	cache *ristretto.Cache
}

// NewCachedEvents caches up to maxEntries events.
func NewCachedEvents(next EventStore, maxEntries int64) (*CachedEvents, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("event cache: %w", err)
	}
	return &CachedEvents{EventStore: next, cache: c}, nil
}

func (c *CachedEvents) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if v, ok := c.cache.Get(id); ok {
		return v.(*model.Event).Clone(), nil
	}
	ev, err := c.EventStore.GetEvent(ctx, id)
	if err != nil || ev == nil {
		return ev, err
	}
	c.cache.Set(id, ev.Clone(), 1)
	return ev, nil
}

// Wait blocks until pending cache writes are applied.
func (c *CachedEvents) Wait() { c.cache.Wait() }

func (c *CachedEvents) Close() { c.cache.Close() }
