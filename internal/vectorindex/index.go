// Package vectorindex is a flat inner-product index over event embeddings.
// Vectors are unit-normalized, so the inner product is cosine similarity.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/qaintel/eventmemory/internal/embeddings"
	"github.com/qaintel/eventmemory/internal/model"
)

// Hit is one search result.
type Hit struct {
	EventID string  `json:"event_id"`
	Score   float64 `json:"score"`
}

type Options struct {
	// Path of the snapshot file. Empty keeps the index in memory only.
	Path string
	// Model names the embedding model; a snapshot from another model is discarded.
	Model  string
	Logger zerolog.Logger
}

// Index holds one row per event id. ids[i] owns vectors[i*dim:(i+1)*dim].
type Index struct {
	embedder embeddings.Provider
	opts     Options
	log      zerolog.Logger
	dim      int

	mu      sync.RWMutex
	ids     []string
	pos     map[string]int
	vectors []float32
}

// New sizes the index from the embedder and loads the snapshot at opts.Path
// when it is present and consistent. Anything else starts an empty index.
func New(ctx context.Context, embedder embeddings.Provider, opts Options) (*Index, error) {
	dim, err := dimensionOf(ctx, embedder)
	if err != nil {
		return nil, err
	}
	ix := &Index{
		embedder: embedder,
		opts:     opts,
		log:      opts.Logger.With().Str("component", "vectorindex").Logger(),
		dim:      dim,
		pos:      map[string]int{},
	}
	ix.load()
	return ix, nil
}

func dimensionOf(ctx context.Context, embedder embeddings.Provider) (int, error) {
	if d, ok := embedder.(embeddings.Dimensioned); ok && d.Dimensions() > 0 {
		return d.Dimensions(), nil
	}
	vec, err := embedder.Embed(ctx, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimension: %w", err)
	}
	if len(vec) == 0 {
		return 0, errors.New("probe embedding is empty")
	}
	return len(vec), nil
}

func (ix *Index) load() {
	if ix.opts.Path == "" {
		return
	}
	snap, err := readSnapshot(ix.opts.Path)
	if errors.Is(err, os.ErrNotExist) {
		ix.log.Info().Str("path", ix.opts.Path).Msg("no index snapshot, starting empty")
		return
	}
	if err == nil {
		err = snap.check(ix.opts.Model, ix.dim)
	}
	if err != nil {
		ix.log.Warn().Err(err).Str("path", ix.opts.Path).Msg("discarding index snapshot, starting empty")
		return
	}
	pos := make(map[string]int, len(snap.IDs))
	for i, id := range snap.IDs {
		pos[id] = i
	}
	if len(pos) != len(snap.IDs) {
		ix.log.Warn().Str("path", ix.opts.Path).Msg("index snapshot has duplicate ids, starting empty")
		return
	}
	ix.ids, ix.pos, ix.vectors = snap.IDs, pos, snap.Vectors
	ix.log.Info().Int("events", len(ix.ids)).Int("dim", ix.dim).Msg("index snapshot loaded")
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.ids)
}

func (ix *Index) Dimension() int { return ix.dim }

func (ix *Index) Contains(id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.pos[id]
	return ok
}

// embed returns the unit-normalized embedding of text.
func (ix *Index) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vec) != ix.dim {
		return nil, fmt.Errorf("embedding has %d dimensions, index has %d", len(vec), ix.dim)
	}
	return embeddings.Normalize(vec), nil
}

// AddEvent embeds and appends ev. It returns false without embedding when
// the id is already indexed.
func (ix *Index) AddEvent(ctx context.Context, ev *model.Event) (bool, error) {
	if ix.Contains(ev.ID) {
		return false, nil
	}
	vec, err := ix.embed(ctx, EventText(ev))
	if err != nil {
		return false, err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.pos[ev.ID]; ok {
		return false, nil
	}
	ix.pos[ev.ID] = len(ix.ids)
	ix.ids = append(ix.ids, ev.ID)
	ix.vectors = append(ix.vectors, vec...)
	return true, nil
}

// AddEvents adds each event in order and returns how many were new. It
// stops at the first embedding failure.
func (ix *Index) AddEvents(ctx context.Context, evs []model.Event) (int, error) {
	added := 0
	for i := range evs {
		ok, err := ix.AddEvent(ctx, &evs[i])
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// Search embeds query and returns at most k hits scoring at least minScore,
// best first. An empty index returns nil without calling the embedder.
func (ix *Index) Search(ctx context.Context, query string, k int, minScore float64) ([]Hit, error) {
	if ix.Len() == 0 {
		return nil, nil
	}
	vec, err := ix.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return ix.SearchWithVector(vec, k, minScore)
}

// SearchWithVector scores a precomputed vector. vec itself is not modified.
func (ix *Index) SearchWithVector(vec []float32, k int, minScore float64) ([]Hit, error) {
	if len(vec) != ix.dim {
		return nil, fmt.Errorf("query has %d dimensions, index has %d", len(vec), ix.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	vec = embeddings.Normalize(append([]float32(nil), vec...))

	ix.mu.RLock()
	hits := make([]Hit, 0, len(ix.ids))
	for row, id := range ix.ids {
		stored := ix.vectors[row*ix.dim : (row+1)*ix.dim]
		var score float64
		for i, v := range stored {
			score += float64(v) * float64(vec[i])
		}
		if score >= minScore {
			hits = append(hits, Hit{EventID: id, Score: score})
		}
	}
	ix.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Rebuild embeds evs into a fresh matrix and swaps it in only when every
// embedding succeeded. Duplicate ids keep their first occurrence.
func (ix *Index) Rebuild(ctx context.Context, evs []model.Event) (int, error) {
	ids := make([]string, 0, len(evs))
	pos := make(map[string]int, len(evs))
	vectors := make([]float32, 0, len(evs)*ix.dim)
	for i := range evs {
		if _, ok := pos[evs[i].ID]; ok {
			continue
		}
		vec, err := ix.embed(ctx, EventText(&evs[i]))
		if err != nil {
			return 0, fmt.Errorf("rebuild %s: %w", evs[i].ID, err)
		}
		pos[evs[i].ID] = len(ids)
		ids = append(ids, evs[i].ID)
		vectors = append(vectors, vec...)
	}

	ix.mu.Lock()
	ix.ids, ix.pos, ix.vectors = ids, pos, vectors
	ix.mu.Unlock()
	ix.log.Info().Int("events", len(ids)).Msg("index rebuilt")
	return len(ids), nil
}

// Save persists the index atomically. It is a no-op without a Path.
func (ix *Index) Save() error {
	if ix.opts.Path == "" {
		return nil
	}
	ix.mu.RLock()
	snap := &snapshot{
		Version: snapshotVersion,
		Model:   ix.opts.Model,
		Dim:     ix.dim,
		IDs:     append([]string(nil), ix.ids...),
		Vectors: append([]float32(nil), ix.vectors...),
	}
	ix.mu.RUnlock()
	if err := writeSnapshot(ix.opts.Path, snap); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	ix.log.Debug().Int("events", len(snap.IDs)).Str("path", ix.opts.Path).Msg("index saved")
	return nil
}
