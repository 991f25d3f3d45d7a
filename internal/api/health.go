package api

import (
	"net/http"
	"time"

	respond "github.com/qaintel/eventmemory/internal/api/respond"
	"github.com/qaintel/eventmemory/internal/health"
)

// HealthReporter is the aggregated service health.
type HealthReporter interface {
	Report() health.Report
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	reporter HealthReporter
}

// NewHealthHandler creates a new health handler. A nil reporter reports unhealthy.
func NewHealthHandler(reporter HealthReporter) *HealthHandler {
	return &HealthHandler{reporter: reporter}
}

// CheckHealth handles GET /api/health
// Always returns 200; body reports healthy/unhealthy. 500 indicates handler failure only.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	report := health.Report{Components: map[string]bool{}}
	if h.reporter != nil {
		report = h.reporter.Report()
	}
	status := "unhealthy"
	if report.Healthy {
		status = "healthy"
	}
	response := map[string]interface{}{
		"status":     status,
		"components": report.Components,
		"timestamp":  time.Now().Format(time.RFC3339),
	}
	respond.WriteJSON(w, http.StatusOK, response)
}
