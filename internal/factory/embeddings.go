package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/qaintel/eventmemory/internal/config"
	emb "github.com/qaintel/eventmemory/internal/embeddings"
	"github.com/qaintel/eventmemory/internal/embeddings/hash"
	"github.com/qaintel/eventmemory/internal/embeddings/ollama"
	"github.com/qaintel/eventmemory/internal/embeddings/openai"
)

const warmupTimeout = 30 * time.Second

// NewEmbeddingProvider creates an embedding provider based on config.
// Launches optional async warmup; returns provider immediately for fast startup.
func NewEmbeddingProvider(ctx context.Context, cfg *config.Config, log zerolog.Logger) (emb.Provider, error) {
	var provider emb.Provider

	switch cfg.EmbedProvider {
	case "", "ollama":
		provider = ollama.New(cfg.EmbedURL, cfg.EmbedModel)
	case "openai":
		provider = openai.New(cfg.EmbedURL, cfg.EmbedModel, cfg.EmbedAPIKey)
	case "hash":
		// Offline provider, nothing to warm up.
		return hash.New(cfg.EmbedDimensions), nil
	default:
		return nil, fmt.Errorf("unknown EMBED_PROVIDER: %s", cfg.EmbedProvider)
	}

	go func() {
		warmupCtx, cancel := context.WithTimeout(ctx, warmupTimeout)
		defer cancel()

		if vec, err := provider.Embed(warmupCtx, "factory-warmup-check"); err != nil || len(vec) == 0 {
			log.Warn().Err(err).Int("vec_len", len(vec)).
				Str("provider", cfg.EmbedProvider).Str("model", cfg.EmbedModel).
				Msg("embedding provider warmup failed")
		} else {
			log.Debug().Str("provider", cfg.EmbedProvider).Str("model", cfg.EmbedModel).
				Msg("embedding provider warmup completed")
		}
	}()

	return provider, nil
}
