package handler

import (
	"net/http"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lexgraph/legal-assistant-api/internal/events"
	"github.com/lexgraph/legal-assistant-api/internal/graph"
	"github.com/lexgraph/legal-assistant-api/internal/store"
	"github.com/lexgraph/legal-assistant-api/pkg/logger"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	graph  *graph.Client
	db     *gorm.DB
	events *events.Client
	logger *logger.Logger
}

// NewHealthHandler creates a health handler. eventsClient may be nil when
// event publishing is not configured.
func NewHealthHandler(graphClient *graph.Client, db *gorm.DB, eventsClient *events.Client, log *logger.Logger) *HealthHandler {
	return &HealthHandler{graph: graphClient, db: db, events: eventsClient, logger: log}
}

// Health handles GET /health. It reports liveness only.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready handles GET /ready. It checks both backing stores and reports 503
// when either is unreachable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"graph":    "ok",
		"database": "ok",
	}
	status := http.StatusOK

	if err := h.graph.Ping(r.Context()); err != nil {
		h.logger.Warn("graph store unreachable", zap.Error(err))
		checks["graph"] = "unreachable"
		status = http.StatusServiceUnavailable
	}
	if err := store.Ping(h.db); err != nil {
		h.logger.Warn("relational store unreachable", zap.Error(err))
		checks["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	}
	// Event publishing is best effort: a lost broker connection is reported
	// without failing readiness.
	if h.events != nil {
		checks["events"] = "ok"
		if !h.events.IsConnected() {
			h.logger.Warn("event broker disconnected")
			checks["events"] = "disconnected"
		}
	}

	body := map[string]any{"status": "ready", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	writeJSON(w, status, body)
}
