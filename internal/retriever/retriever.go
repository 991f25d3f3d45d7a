// Package retriever ranks semantic search candidates by a weighted blend of
// similarity, importance and recency.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/qaintel/eventmemory/internal/model"
	"github.com/qaintel/eventmemory/internal/store"
	"github.com/qaintel/eventmemory/internal/vectorindex"
)

const (
	DefaultMaxEvents = 50

	// RecencyWindow is the age at which the recency score reaches zero.
	RecencyWindow = 30 * 24 * time.Hour
)

// Weights scale the three score components.
type Weights struct {
	Semantic   float64 `json:"semantic"`
	Recency    float64 `json:"recency"`
	Importance float64 `json:"importance"`
}

// DefaultWeights favour importance, then similarity, then recency.
func DefaultWeights() Weights {
	return Weights{Semantic: 1.6, Recency: 1.0, Importance: 2.0}
}

type Request struct {
	Query   string
	Project string
	// Branch is the event branch label; empty means "main".
	Branch    string
	Weights   *Weights
	MaxEvents int
}

// Result is an event with its score breakdown.
type Result struct {
	Event      model.Event `json:"event"`
	Score      float64     `json:"score"`
	Semantic   float64     `json:"semantic"`
	Recency    float64     `json:"recency"`
	Importance float64     `json:"importance"`
}

// Searcher is the vector index read path.
type Searcher interface {
	Search(ctx context.Context, query string, k int, minScore float64) ([]vectorindex.Hit, error)
}

type Retriever struct {
	index  Searcher
	events store.EventGetter
	log    zerolog.Logger
	now    func() time.Time
}

func New(index Searcher, events store.EventGetter, log zerolog.Logger) *Retriever {
	return &Retriever{index: index, events: events, log: log, now: time.Now}
}

// WithClock returns a copy that reads the current time from now.
func (r *Retriever) WithClock(now func() time.Time) *Retriever {
	cp := *r
	cp.now = now
	return &cp
}

// Retrieve searches a pool of 2*MaxEvents candidates, keeps those in the
// requested project and branch, scores them and returns the best MaxEvents.
// Candidates outside the scope are dropped and not replaced.
func (r *Retriever) Retrieve(ctx context.Context, req Request) ([]Result, error) {
	if req.MaxEvents <= 0 {
		req.MaxEvents = DefaultMaxEvents
	}
	if req.Branch == "" {
		req.Branch = model.DefaultBranch
	}
	w := DefaultWeights()
	if req.Weights != nil {
		w = *req.Weights
	}

	hits, err := r.index.Search(ctx, req.Query, 2*req.MaxEvents, 0)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	now := r.now()
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		ev, err := r.events.GetEvent(ctx, h.EventID)
		if err != nil {
			return nil, fmt.Errorf("retrieve: load %s: %w", h.EventID, err)
		}
		if ev == nil {
			r.log.Debug().Str("event_id", h.EventID).Msg("indexed event missing from store")
			continue
		}
		if ev.Project != req.Project || ev.Branch != req.Branch {
			continue
		}
		recency := RecencyScore(ev.Timestamp, now)
		results = append(results, Result{
			Event:      *ev,
			Semantic:   h.Score,
			Recency:    recency,
			Importance: ev.Importance,
			Score:      w.Semantic*h.Score + w.Importance*ev.Importance + w.Recency*recency,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > req.MaxEvents {
		results = results[:req.MaxEvents]
	}
	return results, nil
}

// RecencyScore decays linearly from 1 at age zero to 0 at RecencyWindow.
// Timestamps in the future score 1.
func RecencyScore(ts, now time.Time) float64 {
	age := now.Sub(ts)
	if age <= 0 {
		return 1
	}
	score := 1 - float64(age)/float64(RecencyWindow)
	if score < 0 {
		return 0
	}
	return score
}
