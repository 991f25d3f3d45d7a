package api

import (
	"net/http"
	"time"

	respond "github.com/qaintel/eventmemory/internal/api/respond"
	"github.com/qaintel/eventmemory/internal/api/validate"
	"github.com/qaintel/eventmemory/internal/services"
)

const (
	dateLayout         = "2006-01-02"
	defaultPatternDays = 7
)

// SummaryHandler serves the daily, weekly and failure-pattern digests.
type SummaryHandler struct {
	svc *services.DigestService
	now func() time.Time
}

func NewSummaryHandler(svc *services.DigestService) *SummaryHandler {
	return &SummaryHandler{svc: svc, now: time.Now}
}

type digestRequest struct {
	Project string `json:"project"`
	// Date is the day (daily) or the first day (weekly), formatted YYYY-MM-DD.
	Date string `json:"date"`
}

func (h *SummaryHandler) decodeDigest(w http.ResponseWriter, r *http.Request, def time.Time) (string, time.Time, bool) {
	var req digestRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return "", time.Time{}, false
	}
	if err := validate.NonEmpty("project", req.Project); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return "", time.Time{}, false
	}
	if req.Date == "" {
		return req.Project, def, true
	}
	d, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		respond.WriteBadRequest(w, "date must be formatted YYYY-MM-DD")
		return "", time.Time{}, false
	}
	return req.Project, d, true
}

// Daily POST /api/summaries/daily
func (h *SummaryHandler) Daily(w http.ResponseWriter, r *http.Request) {
	project, date, ok := h.decodeDigest(w, r, h.now().UTC())
	if !ok {
		return
	}
	d, err := h.svc.Daily(r.Context(), project, date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, d)
}

// Weekly POST /api/summaries/weekly
// Without a date the week ends today.
func (h *SummaryHandler) Weekly(w http.ResponseWriter, r *http.Request) {
	project, start, ok := h.decodeDigest(w, r, h.now().UTC().AddDate(0, 0, -6))
	if !ok {
		return
	}
	d, err := h.svc.Weekly(r.Context(), project, start)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, d)
}

// Patterns POST /api/summaries/patterns
func (h *SummaryHandler) Patterns(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Project        string `json:"project"`
		Days           int    `json:"days"`
		MinOccurrences int    `json:"min_occurrences"`
	}
	if err := decodeJSON(w, r, &req, false); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.NonEmpty("project", req.Project); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if req.Days < 0 || req.Days > 365 || req.MinOccurrences < 0 {
		respond.WriteBadRequest(w, "days must be within [0, 365] and min_occurrences non-negative")
		return
	}
	if req.Days == 0 {
		req.Days = defaultPatternDays
	}
	since := h.now().UTC().AddDate(0, 0, -req.Days)
	patterns, err := h.svc.Patterns(r.Context(), req.Project, since, req.MinOccurrences)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if patterns == nil {
		patterns = []services.PatternDigest{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"project":  req.Project,
		"since":    since,
		"patterns": patterns,
		"count":    len(patterns),
	})
}
