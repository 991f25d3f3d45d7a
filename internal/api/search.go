package api

import (
	"context"
	"net/http"

	respond "github.com/qaintel/eventmemory/internal/api/respond"
	"github.com/qaintel/eventmemory/internal/api/validate"
	"github.com/qaintel/eventmemory/internal/retriever"
	"github.com/qaintel/eventmemory/internal/vectorindex"
)

const defaultSearchK = 10

// Searcher is the raw similarity search over the vector index.
type Searcher interface {
	Search(ctx context.Context, query string, k int, minScore float64) ([]vectorindex.Hit, error)
}

// Retriever ranks events for a query.
type Retriever interface {
	Retrieve(ctx context.Context, req retriever.Request) ([]retriever.Result, error)
}

// SearchHandler serves POST /api/search and POST /api/retrieve.
type SearchHandler struct {
	idx Searcher
	ret Retriever
}

func NewSearchHandler(idx Searcher, ret Retriever) *SearchHandler {
	return &SearchHandler{idx: idx, ret: ret}
}

type SearchRequest struct {
	Query    string  `json:"query"`
	K        int     `json:"k"`
	MinScore float64 `json:"min_score"`
}

func (r *SearchRequest) Validate() error {
	if err := validate.Query(r.Query); err != nil {
		return err
	}
	if r.K < 0 || r.K > validate.MaxLimit {
		return errBadK
	}
	if r.K == 0 {
		r.K = defaultSearchK
	}
	return nil
}

// Search POST /api/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	hits, err := h.idx.Search(r.Context(), req.Query, req.K, req.MinScore)
	if err != nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "search unavailable: "+err.Error())
		return
	}
	if hits == nil {
		hits = []vectorindex.Hit{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"hits": hits, "count": len(hits)})
}

type RetrieveRequest struct {
	Query     string             `json:"query"`
	Project   string             `json:"project"`
	Branch    string             `json:"branch"`
	Weights   *retriever.Weights `json:"weights,omitempty"`
	MaxEvents int                `json:"max_events"`
}

func (r *RetrieveRequest) Validate() error {
	if err := validate.Query(r.Query); err != nil {
		return err
	}
	if err := validate.NonEmpty("project", r.Project); err != nil {
		return err
	}
	if r.MaxEvents < 0 || r.MaxEvents > validate.MaxEventsCap {
		return errBadMaxEvents
	}
	if r.Weights != nil {
		return validate.Weights(r.Weights.Semantic, r.Weights.Recency, r.Weights.Importance)
	}
	return nil
}

// Retrieve POST /api/retrieve
func (h *SearchHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req RetrieveRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	results, err := h.ret.Retrieve(r.Context(), retriever.Request{
		Query:     req.Query,
		Project:   req.Project,
		Branch:    req.Branch,
		Weights:   req.Weights,
		MaxEvents: req.MaxEvents,
	})
	if err != nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "retrieval unavailable: "+err.Error())
		return
	}
	if results == nil {
		results = []retriever.Result{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"results": results, "count": len(results)})
}
