// Package types defines the core domain types shared across the engine.
//
// # Design Principles
//
// 1. Simplicity: Types represent the domain model directly, no ORM abstractions
// 2. Serialization: All types are JSON-serializable for API transport
// 3. Immutability: Heartbeats and analytics events are append-only records
// 4. Validation: Types include Validate() methods for business rule enforcement
package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the health state of a monitor.
type Status string

const (
	// StatusUp - the last accepted heartbeat reported success
	StatusUp Status = "up"
	// StatusDown - the last accepted heartbeat reported failure
	StatusDown Status = "down"
	// StatusUnknown - no heartbeat has been accepted for this monitor yet
	StatusUnknown Status = "unknown"
)

// Valid reports whether s is a status a heartbeat may carry.
// StatusUnknown is derived state and never appears on a heartbeat.
func (s Status) Valid() bool {
	return s == StatusUp || s == StatusDown
}

// =============================================================================
// MONITOR
// =============================================================================

// AlertPriority controls how aggressively a down transition escalates.
type AlertPriority string

const (
	// PriorityNormal - escalation waits for the configured downtime threshold
	PriorityNormal AlertPriority = "normal"
	// PriorityCritical - escalation fires on the first down transition
	PriorityCritical AlertPriority = "critical"
)

// AlertPolicy configures escalation behavior for a single monitor.
type AlertPolicy struct {
	Enabled  bool          `json:"enabled"`
	Priority AlertPriority `json:"priority"`

	// MinDowntimeSeconds is the continuous downtime required before a
	// normal-priority monitor escalates.
	MinDowntimeSeconds int `json:"min_downtime_seconds"`

	// BusinessHoursOnly suppresses escalation outside Mon-Fri 09:00-17:00
	// in the engine's configured timezone.
	BusinessHoursOnly bool `json:"business_hours_only"`

	// ExternalServiceRef identifies the on-call service that receives
	// incidents for this monitor. Opaque to the engine.
	ExternalServiceRef string `json:"external_service_ref,omitempty"`
}

// DefaultAlertPolicy returns the policy applied when a monitor is created
// without explicit alerting configuration.
func DefaultAlertPolicy() AlertPolicy {
	return AlertPolicy{
		Enabled:            true,
		Priority:           PriorityNormal,
		MinDowntimeSeconds: 300,
	}
}

// Monitor holds the static metadata for one monitored target.
// Mutable only through explicit admin updates; the processing path
// treats it as read-only.
type Monitor struct {
	ID       uuid.UUID `json:"id"`
	TenantID string    `json:"tenant_id"`
	Name     string    `json:"name"`
	Type     string    `json:"type"` // http, tcp, icmp, push, ...

	AlertPolicy AlertPolicy `json:"alert_policy"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks business rules for monitor creation and update.
func (m *Monitor) Validate() error {
	if m.ID == uuid.Nil {
		return fmt.Errorf("monitor id is required")
	}
	if m.Name == "" {
		return fmt.Errorf("monitor name is required")
	}
	switch m.AlertPolicy.Priority {
	case PriorityNormal, PriorityCritical:
	default:
		return fmt.Errorf("invalid alert priority %q", m.AlertPolicy.Priority)
	}
	if m.AlertPolicy.MinDowntimeSeconds < 0 {
		return fmt.Errorf("min_downtime_seconds must be >= 0")
	}
	return nil
}

// =============================================================================
// HEARTBEAT
// =============================================================================

// Heartbeat is a single timestamped health-check result for one monitor.
// Heartbeats are immutable once recorded; ordering key is
// (monitor_id, recorded_at), ties broken by arrival order.
type Heartbeat struct {
	ID         int64     `json:"id,omitempty"`
	MonitorID  uuid.UUID `json:"monitor_id"`
	Status     Status    `json:"status"`
	RecordedAt time.Time `json:"recorded_at"`

	// LatencyMs is the measured check latency. Nil when the probe engine
	// did not report one. Zero and negative readings are treated as
	// unmeasured by the aggregation path.
	LatencyMs *float64 `json:"latency_ms,omitempty"`

	Message string `json:"message,omitempty"`

	// Important marks a heartbeat as exempt from retention pruning.
	// Set on every status transition to preserve incident history.
	Important bool `json:"important"`
}

// Validate checks that a heartbeat can enter the ingestion pipeline.
func (h *Heartbeat) Validate() error {
	if h.MonitorID == uuid.Nil {
		return fmt.Errorf("heartbeat monitor_id is required")
	}
	if !h.Status.Valid() {
		return fmt.Errorf("invalid heartbeat status %q", h.Status)
	}
	if h.RecordedAt.IsZero() {
		return fmt.Errorf("heartbeat recorded_at is required")
	}
	if h.LatencyMs != nil && *h.LatencyMs < 0 {
		return fmt.Errorf("heartbeat latency_ms must be >= 0")
	}
	return nil
}

// StatusSnapshot is the live, in-memory view of a monitor's current status.
// It is a cache over the heartbeat history: it always equals the status of
// the most recently processed heartbeat for the monitor.
type StatusSnapshot struct {
	MonitorID     uuid.UUID `json:"monitor_id"`
	CurrentStatus Status    `json:"current_status"`
	LastHeartbeat Heartbeat `json:"last_heartbeat"`

	// StatusSince is when the current status streak began.
	StatusSince time.Time `json:"status_since"`
}

// Downtime returns how long the monitor has been continuously down as of
// the given instant, or zero if it is not down.
func (s *StatusSnapshot) Downtime(at time.Time) time.Duration {
	if s.CurrentStatus != StatusDown {
		return 0
	}
	d := at.Sub(s.StatusSince)
	if d < 0 {
		return 0
	}
	return d
}

// =============================================================================
// WINDOW
// =============================================================================

// Window is a named relative time range used for aggregation queries.
type Window string

const (
	Window1h  Window = "1h"
	Window6h  Window = "6h"
	Window24h Window = "24h"
	Window7d  Window = "7d"
	Window30d Window = "30d"
	Window90d Window = "90d"
)

// Windows lists every supported aggregation window, smallest first.
func Windows() []Window {
	return []Window{Window1h, Window6h, Window24h, Window7d, Window30d, Window90d}
}

// Duration returns the window length, or an error for unsupported names.
func (w Window) Duration() (time.Duration, error) {
	switch w {
	case Window1h:
		return time.Hour, nil
	case Window6h:
		return 6 * time.Hour, nil
	case Window24h:
		return 24 * time.Hour, nil
	case Window7d:
		return 7 * 24 * time.Hour, nil
	case Window30d:
		return 30 * 24 * time.Hour, nil
	case Window90d:
		return 90 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unsupported window %q", string(w))
}

// Range resolves the window to an absolute [start, end) interval anchored
// at now truncated to second precision.
func (w Window) Range(now time.Time) (start, end time.Time, err error) {
	d, err := w.Duration()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end = now.Truncate(time.Second)
	return end.Add(-d), end, nil
}
