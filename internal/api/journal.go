package api

import (
	"net/http"

	"github.com/gorilla/mux"

	respond "github.com/qaintel/eventmemory/internal/api/respond"
	"github.com/qaintel/eventmemory/internal/api/validate"
	"github.com/qaintel/eventmemory/internal/model"
	"github.com/qaintel/eventmemory/internal/services"
)

const defaultLogLimit = 50

// JournalHandler serves branches, commits and tags.
type JournalHandler struct {
	svc *services.MemoryService
}

func NewJournalHandler(svc *services.MemoryService) *JournalHandler {
	return &JournalHandler{svc: svc}
}

// CreateBranch POST /api/branches
// Returns 201 when created and 200 when the branch already existed.
func (h *JournalHandler) CreateBranch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(w, r, &req, false); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.Name("name", req.Name); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	created, err := h.svc.CreateBranch(r.Context(), req.Name, req.Description)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respond.WriteJSON(w, status, map[string]interface{}{"name": req.Name, "created": created})
}

// ListBranches GET /api/branches
func (h *JournalHandler) ListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.svc.ListBranches(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if branches == nil {
		branches = []model.Branch{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"branches": branches, "count": len(branches)})
}

// Log GET /api/branches/{name}/log
func (h *JournalHandler) Log(w http.ResponseWriter, r *http.Request) {
	limit, err := validate.IntParam("limit", r.URL.Query().Get("limit"), defaultLogLimit, validate.MaxLimit)
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	commits, err := h.svc.Log(r.Context(), mux.Vars(r)["name"], limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if commits == nil {
		commits = []model.Commit{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"commits": commits, "count": len(commits)})
}

// Commit POST /api/branches/{name}/commits
func (h *JournalHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req model.CommitRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	req.Branch = mux.Vars(r)["name"]
	if err := validate.CommitRequest(req.Branch, req.EventIDs, req.Message); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	c, err := h.svc.CommitEvents(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, c)
}

// GetCommit GET /api/commits/{id}
func (h *JournalHandler) GetCommit(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetCommit(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, c)
}

// SnapshotEvents GET /api/commits/{id}/events
func (h *JournalHandler) SnapshotEvents(w http.ResponseWriter, r *http.Request) {
	evs, err := h.svc.SnapshotEvents(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeEvents(w, evs)
}

// CreateTag POST /api/tags
func (h *JournalHandler) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"tag_name"`
		CommitID string `json:"commit_id"`
		Message  string `json:"message"`
	}
	if err := decodeJSON(w, r, &req, false); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.Name("tag_name", req.Name); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.NonEmpty("commit_id", req.CommitID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	created, err := h.svc.CreateTag(r.Context(), req.Name, req.CommitID, req.Message)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respond.WriteJSON(w, status, map[string]interface{}{"tag_name": req.Name, "created": created})
}

// ListTags GET /api/tags
func (h *JournalHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.ListTags(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if tags == nil {
		tags = []model.Tag{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"tags": tags, "count": len(tags)})
}
