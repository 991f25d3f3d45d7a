package factory

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/qaintel/eventmemory/internal/config"
	emb "github.com/qaintel/eventmemory/internal/embeddings"
	"github.com/qaintel/eventmemory/internal/indexqueue"
	"github.com/qaintel/eventmemory/internal/vectorindex"
)

// NewIndex loads the vector index snapshot from cfg.IndexPath. Remote
// providers need one successful embedding to learn the dimension, so this
// blocks until the provider answers or ctx ends.
func NewIndex(ctx context.Context, cfg *config.Config, provider emb.Provider, log zerolog.Logger) (*vectorindex.Index, error) {
	return vectorindex.New(ctx, provider, vectorindex.Options{
		Path:   cfg.IndexPath,
		Model:  cfg.EmbedProvider + ":" + cfg.EmbedModel,
		Logger: log,
	})
}

// NewIndexQueue returns the single writer of idx. Run must be started by the caller.
func NewIndexQueue(cfg *config.Config, idx indexqueue.Indexer, log zerolog.Logger) *indexqueue.Queue {
	return indexqueue.New(idx, indexqueue.Config{
		QueueSize:    cfg.IndexQueueSize,
		SaveInterval: cfg.IndexSaveInterval(),
	}, log.With().Str("component", "indexqueue").Logger())
}
