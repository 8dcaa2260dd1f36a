package types

import "time"

// =============================================================================
// ENGINE HEALTH
// =============================================================================

// PoolStats holds database connection pool statistics.
type PoolStats struct {
	TotalConnections    int32 `json:"total_connections"`
	IdleConnections     int32 `json:"idle_connections"`
	AcquiredConnections int32 `json:"acquired_connections"`
	MaxConnections      int32 `json:"max_connections"`
}

// ProcessHealth holds resource usage for the engine process itself.
type ProcessHealth struct {
	Status        string  `json:"status"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryMB      float64 `json:"memory_mb"`
	MemoryPercent float64 `json:"memory_percent"`
	Goroutines    int     `json:"goroutines"`
	UptimeSeconds int64   `json:"uptime_seconds"`
}

// DatabaseHealth holds database connectivity and size metrics.
type DatabaseHealth struct {
	Status    string    `json:"status"`
	Pool      PoolStats `json:"pool"`
	SizeBytes int64     `json:"size_bytes"`
}

// PipelineHealth holds counters from the ingest pipeline.
type PipelineHealth struct {
	// PersistenceLost counts durable writes dropped after exhausting retries.
	PersistenceLost int64 `json:"persistence_lost"`
	// EventsDropped counts bus events dropped due to slow subscribers.
	EventsDropped int64 `json:"events_dropped"`
}

// EngineHealth is the aggregate health report served by the health endpoint.
type EngineHealth struct {
	Process   ProcessHealth  `json:"process"`
	Database  DatabaseHealth `json:"database"`
	Pipeline  PipelineHealth `json:"pipeline"`
	Timestamp time.Time      `json:"timestamp"`
}
