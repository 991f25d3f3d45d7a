// Package indexqueue serializes vector index mutations behind one goroutine.
// HTTP handlers enqueue events without waiting for embeddings; the worker
// embeds them, appends them to the index and saves snapshots periodically.
package indexqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/qaintel/eventmemory/internal/model"
)

// Indexer is the part of vectorindex.Index the queue drives.
type Indexer interface {
	AddEvent(ctx context.Context, ev *model.Event) (bool, error)
	Rebuild(ctx context.Context, evs []model.Event) (int, error)
	Save() error
}

// Config controls buffering and snapshot cadence.
type Config struct {
	QueueSize    int           // buffered jobs before Enqueue starts rejecting
	SaveInterval time.Duration // how often a dirty index is saved
}

// Stats is a point-in-time view of queue activity.
type Stats struct {
	Pending int   `json:"pending"`
	Indexed int64 `json:"indexed"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

var ErrClosed = errors.New("index queue is not running")

// Loader reads the events a rebuild indexes. It runs on the worker, so
// events enqueued while it reads are applied after the rebuilt index is
// swapped in rather than discarded by the swap.
type Loader func(ctx context.Context) ([]model.Event, error)

type rebuildResult struct {
	n   int
	err error
}

type job struct {
	event *model.Event
	ctx   context.Context
	load  Loader
	done  chan rebuildResult
}

type Queue struct {
	index   Indexer
	cfg     Config
	log     zerolog.Logger
	jobs    chan job
	stopped chan struct{}

	indexed atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

func New(index Indexer, cfg Config, log zerolog.Logger) *Queue {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = 30 * time.Second
	}
	return &Queue{
		index:   index,
		cfg:     cfg,
		log:     log.With().Str("component", "indexqueue").Logger(),
		jobs:    make(chan job, cfg.QueueSize),
		stopped: make(chan struct{}),
	}
}

// Enqueue schedules ev for indexing without blocking.
// Returns false when the buffer is full.
func (q *Queue) Enqueue(ev *model.Event) bool {
	cp := *ev
	select {
	case q.jobs <- job{event: &cp}:
		return true
	default:
		q.dropped.Add(1)
		q.log.Warn().Str("event_id", ev.ID).Msg("index queue full, event not indexed")
		return false
	}
}

// Rebuild replaces the index contents with what load returns and waits for
// the worker to finish. Jobs queued before it are applied first and then
// replaced by the swap; load must therefore read everything they carried.
func (q *Queue) Rebuild(ctx context.Context, load Loader) (int, error) {
	select {
	case <-q.stopped:
		return 0, ErrClosed
	default:
	}
	done := make(chan rebuildResult, 1)
	select {
	case q.jobs <- job{ctx: ctx, load: load, done: done}:
	case <-q.stopped:
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case res := <-done:
		return res.n, res.err
	case <-q.stopped:
		select {
		case res := <-done:
			return res.n, res.err
		default:
			return 0, ErrClosed
		}
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (q *Queue) Stats() Stats {
	return Stats{
		Pending: len(q.jobs),
		Indexed: q.indexed.Load(),
		Failed:  q.failed.Load(),
		Dropped: q.dropped.Load(),
	}
}

// Run processes jobs until ctx is canceled, then saves once more if needed.
func (q *Queue) Run(ctx context.Context) error {
	defer close(q.stopped)
	q.log.Info().Int("queue_size", q.cfg.QueueSize).Dur("save_interval", q.cfg.SaveInterval).Msg("index queue starting")
	ticker := time.NewTicker(q.cfg.SaveInterval)
	defer ticker.Stop()

	dirty := false
	save := func() {
		if !dirty {
			return
		}
		if err := q.index.Save(); err != nil {
			q.log.Error().Err(err).Msg("index save failed")
			return
		}
		dirty = false
	}

	for {
		select {
		case <-ctx.Done():
			save()
			if n := len(q.jobs); n > 0 {
				q.log.Warn().Int("pending", n).Msg("index queue stopping with pending jobs; rebuild to recover them")
			}
			q.log.Info().Msg("index queue stopping")
			return ctx.Err()
		case j := <-q.jobs:
			if q.handle(ctx, j) {
				dirty = true
			}
		case <-ticker.C:
			save()
		}
	}
}

func (q *Queue) rebuild(j job) bool {
	evs, err := j.load(j.ctx)
	if err != nil {
		j.done <- rebuildResult{err: err}
		q.log.Error().Err(err).Msg("index rebuild: load events failed")
		return false
	}
	n, err := q.index.Rebuild(j.ctx, evs)
	j.done <- rebuildResult{n: n, err: err}
	if err != nil {
		q.log.Error().Err(err).Msg("index rebuild failed")
		return false
	}
	return true
}

// handle applies one job and reports whether the index changed.
func (q *Queue) handle(ctx context.Context, j job) bool {
	if j.done != nil {
		return q.rebuild(j)
	}
	added, err := q.index.AddEvent(ctx, j.event)
	if err != nil {
		q.failed.Add(1)
		q.log.Error().Err(err).Str("event_id", j.event.ID).Msg("index event failed")
		return false
	}
	if added {
		q.indexed.Add(1)
	}
	return added
}
