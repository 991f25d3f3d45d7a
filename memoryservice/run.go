package memoryservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/qaintel/eventmemory/internal/api"
	"github.com/qaintel/eventmemory/internal/config"
	emb "github.com/qaintel/eventmemory/internal/embeddings"
	"github.com/qaintel/eventmemory/internal/factory"
	"github.com/qaintel/eventmemory/internal/health"
	"github.com/qaintel/eventmemory/internal/indexqueue"
	"github.com/qaintel/eventmemory/internal/llm"
	"github.com/qaintel/eventmemory/internal/logger"
	"github.com/qaintel/eventmemory/internal/retriever"
	"github.com/qaintel/eventmemory/internal/services"
	"github.com/qaintel/eventmemory/internal/store"
	"github.com/qaintel/eventmemory/internal/vectorindex"
)

const serviceName = "event-memory"

// dependencies are the long-lived components shared by every request.
type dependencies struct {
	store    store.Store
	cache    *store.CachedEvents
	embedder emb.Provider
	index    *vectorindex.Index
	queue    *indexqueue.Queue
	llm      *llm.Service
}

// Run starts the memory service HTTP server and blocks until shutdown or error.
// override, when non-nil, adjusts the loaded configuration before startup.
func Run(override func(*config.Config) error) error {
	log := logger.New(serviceName, "info")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	if override != nil {
		if err := override(cfg); err != nil {
			log.Error().Err(err).Msg("Invalid configuration override")
			return err
		}
	}
	log = logger.New(serviceName, cfg.LogLevel)

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Str("embed_provider", cfg.EmbedProvider).
		Str("embed_model", cfg.EmbedModel).
		Str("llm_model", cfg.LLMModel).
		Msg("Memory service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	deps, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.cache.Close()
	defer func() {
		if err := deps.store.Close(); err != nil {
			log.Warn().Err(err).Msg("store close failed")
		}
	}()

	// The queue is the only writer of the index. It saves a final snapshot
	// when ctx ends, so shutdown waits for it before closing the store.
	queueDone := make(chan struct{})
	go func() {
		defer close(queueDone)
		_ = deps.queue.Run(ctx)
	}()
	defer func() {
		stop()
		<-queueDone
	}()

	memorySvc := services.NewMemoryService(deps.store, deps.queue, log)
	digestSvc := services.NewDigestService(deps.store, deps.llm, log)
	go rebuildIfEmpty(ctx, deps, memorySvc, log)

	// Start health checkers and bind service health
	svcHealth := startHealthCheckers(ctx, cfg, log, deps)

	// Block startup until dependencies report healthy; fail fast otherwise
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	router := api.NewRouter(api.Deps{
		Memory:    memorySvc,
		Digests:   digestSvc,
		Index:     deps.index,
		Retriever: retriever.New(deps.index, deps.cache, log),
		Queue:     deps.queue,
		Health:    svcHealth,
	})

	// HTTP server and serve
	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// initDependencies constructs required components and enforces fail-fast on missing deps.
// The language model is optional: its client is built once here and injected.
func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*dependencies, error) {
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return nil, err
	}

	cache, err := factory.NewEventCache(st, cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	embedder, err := factory.NewEmbeddingProvider(ctx, cfg, log)
	if err != nil {
		cache.Close()
		_ = st.Close()
		log.Error().Stack().Err(err).Msg("Embedding provider unavailable")
		return nil, err
	}

	// A remote embedder has to answer once so the index knows its dimension.
	idxCtx, cancel := context.WithTimeout(ctx, time.Duration(calculateStartupHealthTimeout(cfg.HealthIntervalSeconds))*time.Second)
	defer cancel()
	idx, err := factory.NewIndex(idxCtx, cfg, embedder, log)
	if err != nil {
		cache.Close()
		_ = st.Close()
		log.Error().Stack().Err(err).Msg("Vector index unavailable")
		return nil, err
	}

	return &dependencies{
		store:    st,
		cache:    cache,
		embedder: embedder,
		index:    idx,
		queue:    factory.NewIndexQueue(cfg, idx, log),
		llm: llm.New(llm.Config{
			BaseURL:       cfg.LLMBaseURL,
			Model:         cfg.LLMModel,
			Timeout:       cfg.LLMTimeout(),
			HealthTimeout: cfg.LLMHealthTimeout(),
		}, log),
	}, nil
}

// rebuildIfEmpty re-embeds the event log when the index starts empty but
// the store does not, e.g. after a model change discarded the snapshot.
func rebuildIfEmpty(ctx context.Context, deps *dependencies, svc *services.MemoryService, log zerolog.Logger) {
	if deps.index.Len() > 0 {
		return
	}
	stats, err := deps.store.Stats(ctx)
	if err != nil || stats.TotalEvents == 0 {
		return
	}
	log.Info().Int("events", stats.TotalEvents).Msg("index empty at startup, rebuilding from store")
	if _, err := svc.RebuildIndex(ctx); err != nil {
		log.Warn().Err(err).Msg("startup index rebuild failed")
	}
}

// startHealthCheckers starts component checkers and service-level aggregator.
// The LLM is reported but never marks the service unhealthy.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, deps *dependencies) *health.ServiceHealthChecker {
	var checkers []health.HealthChecker
	probeTimeout := cfg.HealthProbeTimeout()
	interval := cfg.HealthInterval()

	storeChecker := store.NewStoreHealthChecker(deps.store, log, probeTimeout)
	go storeChecker.Start(ctx, interval)
	checkers = append(checkers, storeChecker)

	embChecker := emb.NewProviderHealthChecker(deps.embedder, log, probeTimeout)
	go embChecker.Start(ctx, interval)
	checkers = append(checkers, embChecker)

	llmChecker := health.NewPingChecker("llm", deps.llm, log, cfg.LLMHealthTimeout())
	go llmChecker.Start(ctx, interval)

	svcHealth := health.NewServiceHealthChecker(log, checkers...).WithOptional(llmChecker)
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// Summaries wait on the language model.
		WriteTimeout: cfg.LLMTimeout() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// calculateStartupHealthTimeout returns the startup health timeout in seconds,
// calculated as interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth interface{ IsHealthy() bool }) error {
	// Health checkers start as unhealthy and need time to run their first check
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
