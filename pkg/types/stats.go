package types

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// DERIVED STATISTICS
// =============================================================================

// UptimeStats holds computed uptime and latency figures for one monitor
// over one window. Derived data: recomputed on demand or on schedule,
// cached with a TTL, stale reads tolerated.
type UptimeStats struct {
	MonitorID uuid.UUID `json:"monitor_id"`
	Window    Window    `json:"window"`

	// UptimePercent is upChecks/totalChecks*100 rounded to 2 decimals.
	// 100 when the window holds no checks: no data means assume healthy.
	UptimePercent float64 `json:"uptime_percent"`

	TotalChecks int `json:"total_checks"`
	UpChecks    int `json:"up_checks"`
	DownChecks  int `json:"down_checks"`

	// Latency figures are rounded to the nearest millisecond.
	// Heartbeats without a positive latency reading are excluded.
	AvgLatencyMs int64 `json:"avg_latency_ms"`
	MaxLatencyMs int64 `json:"max_latency_ms"`
	MinLatencyMs int64 `json:"min_latency_ms"`

	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	ComputedAt  time.Time `json:"computed_at"`

	// Stale marks a value served from cache past its freshness TTL
	// because a live recompute was unavailable.
	Stale bool `json:"stale,omitempty"`
}

// SystemStats summarizes current status counts across all monitors plus
// recent analytics activity. Status counts come from live snapshots, not
// a store re-query.
type SystemStats struct {
	TotalMonitors   int `json:"total_monitors"`
	UpMonitors      int `json:"up_monitors"`
	DownMonitors    int `json:"down_monitors"`
	UnknownMonitors int `json:"unknown_monitors"`

	// RecentEvents counts analytics events recorded in the trailing window.
	RecentEvents       int64         `json:"recent_events"`
	RecentEventsWindow time.Duration `json:"recent_events_window"`

	ComputedAt time.Time `json:"computed_at"`
	Stale      bool      `json:"stale,omitempty"`
}

// MonitorRanking is one row of a ranking query result.
type MonitorRanking struct {
	MonitorID     uuid.UUID `json:"monitor_id"`
	Name          string    `json:"name"`
	UptimePercent float64   `json:"uptime_percent"`
	AvgLatencyMs  int64     `json:"avg_latency_ms"`
	TotalChecks   int       `json:"total_checks"`
}
