// Package api provides HTTP handlers for the engine.
//
// # Endpoints
//
// Ingestion API:
//   - POST /api/v1/monitors/{id}/heartbeats - Submit a heartbeat
//
// Monitor API:
//   - GET    /api/v1/monitors - List monitors
//   - POST   /api/v1/monitors - Create or update monitor
//   - GET    /api/v1/monitors/{id} - Get monitor details
//   - DELETE /api/v1/monitors/{id} - Delete monitor
//   - GET    /api/v1/monitors/{id}/status - Get live status
//   - GET    /api/v1/monitors/{id}/uptime - Get uptime stats for a window
//   - GET    /api/v1/monitors/{id}/events - Analytics events for a window
//
// Analytics API:
//   - GET /api/v1/status - Live status for all monitors
//   - GET /api/v1/stats/system - System-wide stats
//   - GET /api/v1/stats/top - Best-performing monitors
//   - GET /api/v1/stats/slowest - Highest-latency monitors
//
// Health:
//   - GET /api/v1/health - Health check
//   - GET /api/v1/health/engine - Engine self-health metrics
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nova-universe/pulse/internal/aggregator"
	"github.com/nova-universe/pulse/internal/metrics"
	"github.com/nova-universe/pulse/internal/service"
	"github.com/nova-universe/pulse/internal/tracker"
	"github.com/nova-universe/pulse/pkg/types"
)

const defaultRankingLimit = 10

// Server is the HTTP API server.
type Server struct {
	svc       *service.Service
	collector *metrics.Collector
	logger    *slog.Logger
	mux       *http.ServeMux
}

// NewServer creates a new API server.
func NewServer(svc *service.Service, collector *metrics.Collector, logger *slog.Logger) *Server {
	s := &Server{
		svc:       svc,
		collector: collector,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Mux returns the underlying ServeMux for registering additional routes.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("request",
		"method", r.Method,
		"path", r.URL.Path,
		"duration", time.Since(start))
}

func (s *Server) registerRoutes() {
	// Health
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/health/engine", s.handleEngineHealth)

	// Monitors
	s.mux.HandleFunc("GET /api/v1/monitors", s.handleListMonitors)
	s.mux.HandleFunc("POST /api/v1/monitors", s.handleCreateMonitor)
	s.mux.HandleFunc("GET /api/v1/monitors/{id}", s.handleGetMonitor)
	s.mux.HandleFunc("DELETE /api/v1/monitors/{id}", s.handleDeleteMonitor)
	s.mux.HandleFunc("GET /api/v1/monitors/{id}/status", s.handleGetStatus)
	s.mux.HandleFunc("GET /api/v1/monitors/{id}/uptime", s.handleGetUptime)
	s.mux.HandleFunc("GET /api/v1/monitors/{id}/events", s.handleListEvents)

	// Heartbeat ingestion
	s.mux.HandleFunc("POST /api/v1/monitors/{id}/heartbeats", s.handleIngestHeartbeat)

	// Analytics
	s.mux.HandleFunc("GET /api/v1/status", s.handleListStatuses)
	s.mux.HandleFunc("GET /api/v1/stats/system", s.handleSystemStats)
	s.mux.HandleFunc("GET /api/v1/stats/top", s.handleTopPerforming)
	s.mux.HandleFunc("GET /api/v1/stats/slowest", s.handleSlowest)
}

// =============================================================================
// HEALTH
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleEngineHealth(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		s.writeError(w, http.StatusServiceUnavailable, "health collector not initialized")
		return
	}

	health, err := s.collector.GetEngineHealth(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to collect engine health: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, health)
}

// =============================================================================
// HEARTBEAT INGESTION
// =============================================================================

type heartbeatRequest struct {
	Status     types.Status `json:"status"`
	RecordedAt time.Time    `json:"recorded_at"`
	LatencyMs  *float64     `json:"latency_ms,omitempty"`
	Message    string       `json:"message,omitempty"`
}

func (s *Server) handleIngestHeartbeat(w http.ResponseWriter, r *http.Request) {
	monitorID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req heartbeatRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RecordedAt.IsZero() {
		req.RecordedAt = time.Now().UTC()
	}

	result, err := s.svc.IngestHeartbeat(r.Context(), types.Heartbeat{
		MonitorID:  monitorID,
		Status:     req.Status,
		RecordedAt: req.RecordedAt,
		LatencyMs:  req.LatencyMs,
		Message:    req.Message,
	})
	if err != nil {
		// Persistence is asynchronous, so ingest errors are always about
		// the submission itself.
		if errors.Is(err, tracker.ErrUnknownMonitor) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusAccepted, result)
}

// =============================================================================
// MONITORS
// =============================================================================

type createMonitorRequest struct {
	ID          uuid.UUID          `json:"id,omitempty"`
	TenantID    string             `json:"tenant_id,omitempty"`
	Name        string             `json:"name"`
	Type        string             `json:"type"`
	AlertPolicy *types.AlertPolicy `json:"alert_policy,omitempty"`
}

func (s *Server) handleCreateMonitor(w http.ResponseWriter, r *http.Request) {
	var req createMonitorRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	monitor, err := s.svc.CreateMonitor(r.Context(), service.CreateMonitorRequest{
		ID:          req.ID,
		TenantID:    req.TenantID,
		Name:        req.Name,
		Type:        req.Type,
		AlertPolicy: req.AlertPolicy,
	})
	if err != nil {
		s.writeServiceError(w, r, "monitor creation failed", err)
		return
	}

	s.writeJSON(w, http.StatusCreated, monitor)
}

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	s.writeJSON(w, http.StatusOK, map[string]any{
		"monitors": s.svc.ListMonitors(r.Context(), tenantID),
	})
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	monitorID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}

	monitor, err := s.svc.GetMonitor(r.Context(), monitorID)
	if err != nil {
		s.writeServiceError(w, r, "get monitor failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, monitor)
}

func (s *Server) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	monitorID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := s.svc.DeleteMonitor(r.Context(), monitorID); err != nil {
		s.writeServiceError(w, r, "delete monitor failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// STATUS AND STATS
// =============================================================================

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	monitorID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}

	status, err := s.svc.GetCurrentStatus(r.Context(), monitorID)
	if err != nil {
		s.writeServiceError(w, r, "get status failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleListStatuses(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	statuses, err := s.svc.ListCurrentStatuses(r.Context(), tenantID)
	if err != nil {
		s.writeServiceError(w, r, "list statuses failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"statuses": statuses})
}

func (s *Server) handleGetUptime(w http.ResponseWriter, r *http.Request) {
	monitorID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}

	window, ok := s.queryWindow(w, r)
	if !ok {
		return
	}

	stats, err := s.svc.GetUptime(r.Context(), monitorID, window)
	if err != nil {
		s.writeServiceError(w, r, "get uptime failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	monitorID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}

	// Outage history is the default read.
	eventType := types.EventType(r.URL.Query().Get("type"))
	if eventType == "" {
		eventType = types.EventMonitorDown
	}
	if !eventType.Valid() {
		s.writeError(w, http.StatusBadRequest, "invalid type: "+string(eventType))
		return
	}

	window, ok := s.queryWindow(w, r)
	if !ok {
		return
	}

	events, err := s.svc.ListEvents(r.Context(), monitorID, eventType, window)
	if err != nil {
		s.writeServiceError(w, r, "list events failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleSystemStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.GetSystemStats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "system stats failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTopPerforming(w http.ResponseWriter, r *http.Request) {
	window, ok := s.queryWindow(w, r)
	if !ok {
		return
	}

	rankings, err := s.svc.GetTopPerforming(r.Context(), window, s.queryLimit(r))
	if err != nil {
		s.writeServiceError(w, r, "top performing query failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"rankings": rankings})
}

func (s *Server) handleSlowest(w http.ResponseWriter, r *http.Request) {
	window, ok := s.queryWindow(w, r)
	if !ok {
		return
	}

	rankings, err := s.svc.GetSlowest(r.Context(), window, s.queryLimit(r))
	if err != nil {
		s.writeServiceError(w, r, "slowest query failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"rankings": rankings})
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) pathUUID(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	raw := r.PathValue(key)
	if raw == "" {
		s.writeError(w, http.StatusBadRequest, key+" is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid "+key+": must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// queryWindow parses the window query parameter, defaulting to 24h.
func (s *Server) queryWindow(w http.ResponseWriter, r *http.Request) (types.Window, bool) {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return types.Window24h, true
	}
	window := types.Window(raw)
	if _, err := window.Duration(); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid window: "+raw)
		return "", false
	}
	return window, true
}

func (s *Server) queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultRankingLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultRankingLimit
	}
	return limit
}

// writeServiceError maps service errors to HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, service.ErrMonitorNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, aggregator.ErrStatsUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error(msg, "path", r.URL.Path, "error", err)
		s.writeError(w, http.StatusInternalServerError, msg)
	}
}

func (s *Server) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
