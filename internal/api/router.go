package api

import (
	"github.com/gorilla/mux"

	"github.com/qaintel/eventmemory/internal/api/recovery"
	"github.com/qaintel/eventmemory/internal/services"
)

// Deps are the components the HTTP layer is wired to. Queue and Health may be nil.
type Deps struct {
	Memory    *services.MemoryService
	Digests   *services.DigestService
	Index     interface {
		Searcher
		IndexStatus
	}
	Retriever Retriever
	Queue     QueueStatus
	Health    HealthReporter
}

// NewRouter wires HTTP routes to handlers.
func NewRouter(d Deps) *mux.Router {
	root := mux.NewRouter()
	root.Use(recovery.Middleware)

	// Events
	events := NewEventHandler(d.Memory, d.Index, d.Queue)
	root.HandleFunc("/api/events", events.IngestEvent).Methods("POST")
	root.HandleFunc("/api/events", events.QueryEvents).Methods("GET")
	root.HandleFunc("/api/events/recent", events.RecentEvents).Methods("GET")
	root.HandleFunc("/api/events/{id}", events.GetEvent).Methods("GET")
	root.HandleFunc("/api/stats", events.Stats).Methods("GET")
	root.HandleFunc("/api/index/rebuild", events.RebuildIndex).Methods("POST")

	// Search and retrieval
	search := NewSearchHandler(d.Index, d.Retriever)
	root.HandleFunc("/api/search", search.Search).Methods("POST")
	root.HandleFunc("/api/retrieve", search.Retrieve).Methods("POST")

	// Journal; branch names may contain '/'
	journal := NewJournalHandler(d.Memory)
	root.HandleFunc("/api/branches", journal.ListBranches).Methods("GET")
	root.HandleFunc("/api/branches", journal.CreateBranch).Methods("POST")
	root.HandleFunc("/api/branches/{name:.+}/log", journal.Log).Methods("GET")
	root.HandleFunc("/api/branches/{name:.+}/commits", journal.Commit).Methods("POST")
	root.HandleFunc("/api/commits/{id}", journal.GetCommit).Methods("GET")
	root.HandleFunc("/api/commits/{id}/events", journal.SnapshotEvents).Methods("GET")
	root.HandleFunc("/api/tags", journal.ListTags).Methods("GET")
	root.HandleFunc("/api/tags", journal.CreateTag).Methods("POST")

	// Summaries
	summaries := NewSummaryHandler(d.Digests)
	root.HandleFunc("/api/summaries/daily", summaries.Daily).Methods("POST")
	root.HandleFunc("/api/summaries/weekly", summaries.Weekly).Methods("POST")
	root.HandleFunc("/api/summaries/patterns", summaries.Patterns).Methods("POST")

	// Health
	healthHandler := NewHealthHandler(d.Health)
	root.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")

	return root
}
