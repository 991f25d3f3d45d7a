package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/qaintel/eventmemory/internal/indexqueue"
	"github.com/qaintel/eventmemory/internal/model"
	"github.com/qaintel/eventmemory/internal/store"
)

// rebuildPageSize is how many events are read per page during a rebuild.
const rebuildPageSize = 500

// IndexQueue accepts events for asynchronous indexing.
type IndexQueue interface {
	Enqueue(ev *model.Event) bool
	Rebuild(ctx context.Context, load indexqueue.Loader) (int, error)
}

// IngestResult reports what happened to one ingested event.
type IngestResult struct {
	EventID     string `json:"event_id"`
	Inserted    bool   `json:"inserted"`
	Checksum    string `json:"checksum"`
	IndexQueued bool   `json:"indexed_queued"`
}

// MemoryService orchestrates the event log and the vector index. Ingestion
// into the two is independent: an event can be stored but not yet indexed.
type MemoryService struct {
	store store.Store
	queue IndexQueue
	log   zerolog.Logger
}

func NewMemoryService(s store.Store, q IndexQueue, log zerolog.Logger) *MemoryService {
	return &MemoryService{store: s, queue: q, log: log}
}

// Ingest stores ev and, when it is new, schedules it for indexing.
func (s *MemoryService) Ingest(ctx context.Context, ev *model.Event) (*IngestResult, error) {
	e := *ev
	e.Normalize()
	if err := e.Validate(); err != nil {
		return nil, err
	}
	checksum, err := model.Checksum(&e)
	if err != nil {
		return nil, err
	}
	inserted, err := s.store.Ingest(ctx, &e)
	if err != nil {
		return nil, err
	}
	res := &IngestResult{EventID: e.ID, Inserted: inserted, Checksum: checksum}
	if inserted && s.queue != nil {
		res.IndexQueued = s.queue.Enqueue(&e)
	}
	return res, nil
}

func (s *MemoryService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	ev, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, fmt.Errorf("%w: event %q", model.ErrNotFound, id)
	}
	return ev, nil
}

func (s *MemoryService) QueryEvents(ctx context.Context, q model.EventQuery) ([]model.Event, error) {
	return s.store.QueryEvents(ctx, q)
}

func (s *MemoryService) RecentEvents(ctx context.Context, project string, window time.Duration, limit int) ([]model.Event, error) {
	return s.store.RecentEvents(ctx, project, window, limit)
}

func (s *MemoryService) Stats(ctx context.Context) (*model.StoreStats, error) {
	return s.store.Stats(ctx)
}

// RebuildIndex re-embeds every stored event into a fresh index. The index
// is replaced as a whole, so there is no per-project variant. The store is
// read by the queue worker, so events ingested meanwhile are indexed after
// the swap.
func (s *MemoryService) RebuildIndex(ctx context.Context) (int, error) {
	if s.queue == nil {
		return 0, fmt.Errorf("index is not configured")
	}
	n, err := s.queue.Rebuild(ctx, s.allEvents)
	if err != nil {
		return 0, err
	}
	s.log.Info().Int("events", n).Msg("index rebuilt from store")
	return n, nil
}

// allEvents reads the whole log across projects and branches, oldest first.
func (s *MemoryService) allEvents(ctx context.Context) ([]model.Event, error) {
	var all []model.Event
	for offset := 0; ; offset += rebuildPageSize {
		page, err := s.store.QueryEvents(ctx, model.EventQuery{
			AllBranches: true,
			Limit:       rebuildPageSize,
			Offset:      offset,
		})
		if err != nil {
			return nil, fmt.Errorf("rebuild: read events: %w", err)
		}
		all = append(all, page...)
		if len(page) < rebuildPageSize {
			break
		}
	}
	// Oldest first, so row order follows ingestion time.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}

// Journal

func (s *MemoryService) CreateBranch(ctx context.Context, name, description string) (bool, error) {
	return s.store.CreateBranch(ctx, name, description)
}

func (s *MemoryService) ListBranches(ctx context.Context) ([]model.Branch, error) {
	return s.store.ListBranches(ctx)
}

func (s *MemoryService) CommitEvents(ctx context.Context, req model.CommitRequest) (*model.Commit, error) {
	id, err := s.store.CommitEvents(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.GetCommit(ctx, id)
}

func (s *MemoryService) GetCommit(ctx context.Context, id string) (*model.Commit, error) {
	c, err := s.store.GetCommit(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: commit %q", model.ErrNotFound, id)
	}
	return c, nil
}

func (s *MemoryService) Log(ctx context.Context, branch string, limit int) ([]model.Commit, error) {
	return s.store.Log(ctx, branch, limit)
}

func (s *MemoryService) SnapshotEvents(ctx context.Context, commitID string) ([]model.Event, error) {
	return s.store.SnapshotEvents(ctx, commitID)
}

func (s *MemoryService) CreateTag(ctx context.Context, name, commitID, message string) (bool, error) {
	return s.store.CreateTag(ctx, name, commitID, message)
}

func (s *MemoryService) ListTags(ctx context.Context) ([]model.Tag, error) {
	return s.store.ListTags(ctx)
}
