package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	respond "github.com/qaintel/eventmemory/internal/api/respond"
	"github.com/qaintel/eventmemory/internal/api/validate"
	"github.com/qaintel/eventmemory/internal/indexqueue"
	"github.com/qaintel/eventmemory/internal/model"
	"github.com/qaintel/eventmemory/internal/services"
)

const (
	defaultRecentHours = 24
	maxRecentHours     = 24 * 365
)

// IndexStatus is the read-only view of the vector index shown by /api/stats.
type IndexStatus interface {
	Len() int
	Dimension() int
}

// QueueStatus exposes indexing queue counters.
type QueueStatus interface {
	Stats() indexqueue.Stats
}

type EventHandler struct {
	svc   *services.MemoryService
	index IndexStatus
	queue QueueStatus
	now   func() time.Time
}

func NewEventHandler(svc *services.MemoryService, index IndexStatus, queue QueueStatus) *EventHandler {
	return &EventHandler{svc: svc, index: index, queue: queue, now: time.Now}
}

// IngestEvent POST /api/events
// Missing ids are generated and a missing timestamp means now.
func (h *EventHandler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var ev model.Event
	if err := decodeJSON(w, r, &ev, false); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = h.now().UTC()
	}
	res, err := h.svc.Ingest(r.Context(), &ev)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Inserted {
		status = http.StatusCreated
	}
	respond.WriteJSON(w, status, res)
}

// GetEvent GET /api/events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.svc.GetEvent(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, ev)
}

// QueryEvents GET /api/events
func (h *EventHandler) QueryEvents(w http.ResponseWriter, r *http.Request) {
	q, err := parseEventQuery(r)
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	evs, err := h.svc.QueryEvents(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeEvents(w, evs)
}

func parseEventQuery(r *http.Request) (model.EventQuery, error) {
	v := r.URL.Query()
	q := model.EventQuery{
		Project:     v.Get("project"),
		Branch:      v.Get("branch"),
		AllBranches: v.Get("all_branches") == "true",
		TagsInclude: splitList(v["tag"]),
		TagsExclude: splitList(v["exclude_tag"]),
	}
	for _, t := range splitList(v["type"]) {
		typ := model.EventType(t)
		if !typ.Valid() {
			return q, fmt.Errorf("unknown event type %q", t)
		}
		q.Types = append(q.Types, typ)
	}
	var err error
	if q.MinImportance, err = validate.FloatParam("min_importance", v.Get("min_importance"), 0); err != nil {
		return q, err
	}
	if q.Limit, err = validate.IntParam("limit", v.Get("limit"), model.DefaultQueryLimit, validate.MaxLimit); err != nil {
		return q, err
	}
	if q.Offset, err = validate.IntParam("offset", v.Get("offset"), 0, 0); err != nil {
		return q, err
	}
	if q.Since, err = parseTimeParam("since", v.Get("since")); err != nil {
		return q, err
	}
	if q.Until, err = parseTimeParam("until", v.Get("until")); err != nil {
		return q, err
	}
	return q, nil
}

// RecentEvents GET /api/events/recent
func (h *EventHandler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	hours, err := validate.IntParam("hours", v.Get("hours"), defaultRecentHours, maxRecentHours)
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	limit, err := validate.IntParam("limit", v.Get("limit"), model.DefaultQueryLimit, validate.MaxLimit)
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	evs, err := h.svc.RecentEvents(r.Context(), v.Get("project"), time.Duration(hours)*time.Hour, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeEvents(w, evs)
}

type indexStats struct {
	Size      int               `json:"size"`
	Dimension int               `json:"dimension"`
	Queue     *indexqueue.Stats `json:"queue,omitempty"`
}

// Stats GET /api/stats
func (h *EventHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp := struct {
		*model.StoreStats
		Index *indexStats `json:"index,omitempty"`
	}{StoreStats: st}
	if h.index != nil {
		resp.Index = &indexStats{Size: h.index.Len(), Dimension: h.index.Dimension()}
		if h.queue != nil {
			qs := h.queue.Stats()
			resp.Index.Queue = &qs
		}
	}
	respond.WriteJSON(w, http.StatusOK, resp)
}

// RebuildIndex POST /api/index/rebuild
// Re-embeds the whole event log; the request body is ignored.
func (h *EventHandler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.RebuildIndex(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"indexed": n})
}

func writeEvents(w http.ResponseWriter, evs []model.Event) {
	if evs == nil {
		evs = []model.Event{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"events": evs, "count": len(evs)})
}

// splitList accepts both repeated parameters and comma-separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseTimeParam(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC 3339 timestamp", field)
	}
	t = t.UTC()
	return &t, nil
}
