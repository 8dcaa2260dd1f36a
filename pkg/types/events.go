package types

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ANALYTICS EVENTS
// =============================================================================

// EventType classifies an analytics event.
type EventType string

const (
	// EventHeartbeat - one event per accepted heartbeat, for usage metrics
	EventHeartbeat EventType = "heartbeat"
	// EventMonitorUp - a monitor transitioned to up
	EventMonitorUp EventType = "monitor_up"
	// EventMonitorDown - a monitor transitioned to down
	EventMonitorDown EventType = "monitor_down"
	// EventDailyStats - daily per-monitor rollup written by the rollup worker
	EventDailyStats EventType = "daily_stats"
	// EventPersistenceLost - a durable write was dropped after exhausting
	// its retry budget; operators reconcile from these
	EventPersistenceLost EventType = "persistence_lost"
)

// Valid reports whether t is a recognized event type.
func (t EventType) Valid() bool {
	switch t {
	case EventHeartbeat, EventMonitorUp, EventMonitorDown, EventDailyStats, EventPersistenceLost:
		return true
	}
	return false
}

// AnalyticsEvent is one record in the append-only analytics log.
// Events are write-once and removed only by retention.
type AnalyticsEvent struct {
	ID         uuid.UUID      `json:"id"`
	Type       EventType      `json:"type"`
	MonitorID  *uuid.UUID     `json:"monitor_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// NewAnalyticsEvent builds an event stamped with a fresh id.
func NewAnalyticsEvent(eventType EventType, monitorID *uuid.UUID, metadata map[string]any, at time.Time) AnalyticsEvent {
	return AnalyticsEvent{
		ID:         uuid.New(),
		Type:       eventType,
		MonitorID:  monitorID,
		Metadata:   metadata,
		RecordedAt: at,
	}
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// TransitionEvent is published by the heartbeat tracker when a monitor's
// status genuinely changes, and republished (with PreviousStatus equal to
// NewStatus) for each accepted heartbeat confirming an ongoing down streak
// so the alert correlator can re-evaluate its debounce window.
type TransitionEvent struct {
	MonitorID      uuid.UUID `json:"monitor_id"`
	PreviousStatus Status    `json:"previous_status"`
	NewStatus      Status    `json:"new_status"`
	At             time.Time `json:"at"`

	// StatusSince equals At for the new streak; carried separately so
	// consumers do not need to re-read tracker state.
	StatusSince time.Time `json:"status_since"`

	LatencyMs *float64 `json:"latency_ms,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// IsTransition reports whether the event marks a genuine status change
// rather than a down-streak confirmation.
func (e TransitionEvent) IsTransition() bool {
	return e.PreviousStatus != e.NewStatus
}

// =============================================================================
// INCIDENTS
// =============================================================================

// OpenIncident asks the external on-call system to open an incident.
// Delivery is fire-and-forget from the engine's perspective.
type OpenIncident struct {
	MonitorID          uuid.UUID `json:"monitor_id"`
	ExternalServiceRef string    `json:"external_service_ref,omitempty"`
	Summary            string    `json:"summary"`
	Details            string    `json:"details,omitempty"`
	OpenedAt           time.Time `json:"opened_at"`
}

// CloseIncident asks the external on-call system to close any incident
// open for the monitor.
type CloseIncident struct {
	MonitorID uuid.UUID `json:"monitor_id"`
	Reason    string    `json:"reason"`
	ClosedAt  time.Time `json:"closed_at"`
}
