// Package service contains the business logic for the engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nova-universe/pulse/internal/aggregator"
	"github.com/nova-universe/pulse/internal/registry"
	"github.com/nova-universe/pulse/internal/tracker"
	"github.com/nova-universe/pulse/pkg/types"
)

// ErrMonitorNotFound - a read referenced a monitor the registry does not know.
var ErrMonitorNotFound = errors.New("monitor not found")

// EventStore is the analytics log read surface the service needs.
type EventStore interface {
	QueryAnalyticsEvents(ctx context.Context, eventType types.EventType, monitorID *uuid.UUID, start, end time.Time) ([]types.AnalyticsEvent, error)
}

// Service provides business logic operations.
type Service struct {
	tracker    *tracker.Tracker
	registry   *registry.Registry
	aggregator *aggregator.Aggregator
	events     EventStore
	logger     *slog.Logger
}

// NewService creates a new service.
func NewService(tr *tracker.Tracker, reg *registry.Registry, agg *aggregator.Aggregator, events EventStore, logger *slog.Logger) *Service {
	return &Service{
		tracker:    tr,
		registry:   reg,
		aggregator: agg,
		events:     events,
		logger:     logger.With("component", "service"),
	}
}

// =============================================================================
// HEARTBEAT OPERATIONS
// =============================================================================

// IngestResult reports what a heartbeat submission did.
type IngestResult struct {
	Accepted       bool         `json:"accepted"`
	Transitioned   bool         `json:"transitioned"`
	PreviousStatus types.Status `json:"previous_status"`
}

// IngestHeartbeat processes one heartbeat submission.
//
// An out-of-order heartbeat is stored for audit but reported as rejected;
// its submitter gets a clean result rather than an error since the data
// was not lost.
func (s *Service) IngestHeartbeat(ctx context.Context, hb types.Heartbeat) (IngestResult, error) {
	transitioned, previous, err := s.tracker.Ingest(ctx, hb)
	if err != nil {
		if errors.Is(err, tracker.ErrOutOfOrder) {
			return IngestResult{Accepted: false, PreviousStatus: previous}, nil
		}
		return IngestResult{}, err
	}
	return IngestResult{
		Accepted:       true,
		Transitioned:   transitioned,
		PreviousStatus: previous,
	}, nil
}

// CurrentStatus describes a monitor's live state for read endpoints.
type CurrentStatus struct {
	MonitorID       uuid.UUID        `json:"monitor_id"`
	Name            string           `json:"name"`
	Status          types.Status     `json:"status"`
	StatusSince     time.Time        `json:"status_since,omitempty"`
	DowntimeSeconds int64            `json:"downtime_seconds"`
	LastHeartbeat   *types.Heartbeat `json:"last_heartbeat,omitempty"`
}

// GetCurrentStatus returns a monitor's live status snapshot. A monitor that
// exists but has never reported is StatusUnknown with no heartbeat.
func (s *Service) GetCurrentStatus(ctx context.Context, monitorID uuid.UUID) (CurrentStatus, error) {
	m, ok := s.registry.Get(monitorID)
	if !ok {
		return CurrentStatus{}, fmt.Errorf("%w: %s", ErrMonitorNotFound, monitorID)
	}

	out := CurrentStatus{
		MonitorID: m.ID,
		Name:      m.Name,
		Status:    types.StatusUnknown,
	}

	snap, ok := s.tracker.Snapshot(monitorID)
	if !ok {
		return out, nil
	}

	hb := snap.LastHeartbeat
	out.Status = snap.CurrentStatus
	out.StatusSince = snap.StatusSince
	out.LastHeartbeat = &hb
	out.DowntimeSeconds = int64(snap.Downtime(time.Now()).Seconds())
	return out, nil
}

// ListCurrentStatuses returns live status for every registered monitor.
func (s *Service) ListCurrentStatuses(ctx context.Context, tenantID string) ([]CurrentStatus, error) {
	monitors := s.registry.ListAll(tenantID)
	out := make([]CurrentStatus, 0, len(monitors))
	for _, m := range monitors {
		status, err := s.GetCurrentStatus(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, status)
	}
	return out, nil
}

// =============================================================================
// STATS OPERATIONS
// =============================================================================

// GetUptime returns uptime and latency stats for one monitor and window.
func (s *Service) GetUptime(ctx context.Context, monitorID uuid.UUID, window types.Window) (types.UptimeStats, error) {
	if _, ok := s.registry.Get(monitorID); !ok {
		return types.UptimeStats{}, fmt.Errorf("%w: %s", ErrMonitorNotFound, monitorID)
	}
	return s.aggregator.ComputeUptime(ctx, monitorID, window)
}

// GetSystemStats returns system-wide status counts and recent activity.
func (s *Service) GetSystemStats(ctx context.Context) (types.SystemStats, error) {
	return s.aggregator.SystemFromCache(ctx)
}

// GetTopPerforming returns monitors ranked best-first by uptime.
func (s *Service) GetTopPerforming(ctx context.Context, window types.Window, limit int) ([]types.MonitorRanking, error) {
	return s.aggregator.TopPerforming(ctx, window, limit)
}

// GetSlowest returns monitors ranked worst-first by average latency.
func (s *Service) GetSlowest(ctx context.Context, window types.Window, limit int) ([]types.MonitorRanking, error) {
	return s.aggregator.Slowest(ctx, window, limit)
}

// ListEvents returns one monitor's analytics events of the given type
// within a window, newest first.
func (s *Service) ListEvents(ctx context.Context, monitorID uuid.UUID, eventType types.EventType, window types.Window) ([]types.AnalyticsEvent, error) {
	if _, ok := s.registry.Get(monitorID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrMonitorNotFound, monitorID)
	}
	start, end, err := window.Range(time.Now())
	if err != nil {
		return nil, err
	}
	return s.events.QueryAnalyticsEvents(ctx, eventType, &monitorID, start, end)
}

// =============================================================================
// MONITOR OPERATIONS
// =============================================================================

// CreateMonitorRequest contains parameters for monitor registration.
type CreateMonitorRequest struct {
	ID          uuid.UUID
	TenantID    string
	Name        string
	Type        string
	AlertPolicy *types.AlertPolicy
}

// CreateMonitor registers a new monitor or updates an existing one.
func (s *Service) CreateMonitor(ctx context.Context, req CreateMonitorRequest) (types.Monitor, error) {
	m := types.Monitor{
		ID:       req.ID,
		TenantID: req.TenantID,
		Name:     req.Name,
		Type:     req.Type,
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if req.AlertPolicy != nil {
		m.AlertPolicy = *req.AlertPolicy
	} else {
		m.AlertPolicy = types.DefaultAlertPolicy()
	}

	if err := s.registry.Upsert(ctx, m); err != nil {
		return types.Monitor{}, err
	}
	s.logger.Info("monitor registered", "monitor_id", m.ID, "name", m.Name)
	return m, nil
}

// GetMonitor returns one monitor's configuration.
func (s *Service) GetMonitor(ctx context.Context, monitorID uuid.UUID) (types.Monitor, error) {
	m, ok := s.registry.Get(monitorID)
	if !ok {
		return types.Monitor{}, fmt.Errorf("%w: %s", ErrMonitorNotFound, monitorID)
	}
	return m, nil
}

// ListMonitors returns monitor configurations, optionally scoped to a tenant.
func (s *Service) ListMonitors(ctx context.Context, tenantID string) []types.Monitor {
	return s.registry.ListAll(tenantID)
}

// DeleteMonitor removes a monitor. Its heartbeat history stays until
// retention prunes it.
func (s *Service) DeleteMonitor(ctx context.Context, monitorID uuid.UUID) error {
	if _, ok := s.registry.Get(monitorID); !ok {
		return fmt.Errorf("%w: %s", ErrMonitorNotFound, monitorID)
	}
	if err := s.registry.Delete(ctx, monitorID); err != nil {
		return err
	}
	s.logger.Info("monitor deleted", "monitor_id", monitorID)
	return nil
}
