package invariants

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/qaintel/eventmemory/internal/api"
	"github.com/qaintel/eventmemory/internal/embeddings/hash"
	"github.com/qaintel/eventmemory/internal/indexqueue"
	"github.com/qaintel/eventmemory/internal/llm"
	"github.com/qaintel/eventmemory/internal/retriever"
	"github.com/qaintel/eventmemory/internal/services"
	"github.com/qaintel/eventmemory/internal/store/sqlite"
	"github.com/qaintel/eventmemory/internal/vectorindex"
)

// newInProcessService serves the full router over a temp SQLite store.
func newInProcessService(t *testing.T) string {
	t.Helper()
	nop := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())

	st, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "events.db"), nop)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	idx, err := vectorindex.New(ctx, hash.New(256), vectorindex.Options{Model: "hash", Logger: nop})
	require.NoError(t, err)

	q := indexqueue.New(idx, indexqueue.Config{QueueSize: 64, SaveInterval: time.Hour}, nop)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	summarizer := llm.New(llm.Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, nop)
	srv := httptest.NewServer(api.NewRouter(api.Deps{
		Memory:    services.NewMemoryService(st, q, nop),
		Digests:   services.NewDigestService(st, summarizer, nop),
		Index:     idx,
		Retriever: retriever.New(idx, st, nop),
		Queue:     q,
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestInvariants_InProcess(t *testing.T) {
	checker := NewInvariantChecker(newInProcessService(t))

	t.Run("IngestIdempotency", func(t *testing.T) {
		checker.CheckIngestIdempotency(t, "inv-web")
	})
	t.Run("CommitChain", func(t *testing.T) {
		checker.CheckCommitChain(t, "inv-web")
	})
	t.Run("ProjectIsolation", func(t *testing.T) {
		checker.CheckProjectIsolation(t, "inv-a", "inv-b")
	})
}
