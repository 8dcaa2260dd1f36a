// Package metrics provides self-health collection for the engine process.
package metrics

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/nova-universe/pulse/pkg/types"
)

// DatabaseSource exposes the store methods the collector samples.
type DatabaseSource interface {
	GetDatabaseSize(ctx context.Context) (int64, error)
	GetPoolStats() types.PoolStats
}

// PipelineSource exposes ingest pipeline loss counters.
type PipelineSource interface {
	PersistenceLost() int64
}

// DropSource exposes event bus drop counters.
type DropSource interface {
	TotalDropped() int64
}

// Collector gathers engine health metrics with caching.
type Collector struct {
	db       DatabaseSource
	pipeline PipelineSource
	bus      DropSource

	startTime time.Time

	// Cached values with TTL
	mu            sync.RWMutex
	cachedHealth  *types.EngineHealth
	cacheExpiry   time.Time
	cacheDuration time.Duration
}

// NewCollector creates a new health collector.
func NewCollector(db DatabaseSource, pipeline PipelineSource, bus DropSource) *Collector {
	return &Collector{
		db:            db,
		pipeline:      pipeline,
		bus:           bus,
		startTime:     time.Now(),
		cacheDuration: 30 * time.Second,
	}
}

// GetEngineHealth returns the current engine health metrics.
// Results are cached for 30 seconds to avoid repeated database queries.
func (c *Collector) GetEngineHealth(ctx context.Context) (*types.EngineHealth, error) {
	c.mu.RLock()
	if c.cachedHealth != nil && time.Now().Before(c.cacheExpiry) {
		health := *c.cachedHealth
		c.mu.RUnlock()
		return &health, nil
	}
	c.mu.RUnlock()

	health := c.collect(ctx)

	c.mu.Lock()
	c.cachedHealth = health
	c.cacheExpiry = time.Now().Add(c.cacheDuration)
	c.mu.Unlock()

	return health, nil
}

func (c *Collector) collect(ctx context.Context) *types.EngineHealth {
	health := &types.EngineHealth{
		Timestamp: time.Now(),
	}

	health.Process = c.collectProcessHealth()
	health.Database = c.collectDatabaseHealth(ctx)

	if c.pipeline != nil {
		health.Pipeline.PersistenceLost = c.pipeline.PersistenceLost()
	}
	if c.bus != nil {
		health.Pipeline.EventsDropped = c.bus.TotalDropped()
	}

	return health
}

func (c *Collector) collectProcessHealth() types.ProcessHealth {
	health := types.ProcessHealth{
		Status:        "healthy",
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(c.startTime).Seconds()),
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			health.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil {
			health.MemoryMB = float64(mem.RSS) / (1024 * 1024)
		}
		if memPct, err := proc.MemoryPercent(); err == nil {
			health.MemoryPercent = float64(memPct)
		}
	}

	if health.MemoryPercent > 90 || health.CPUPercent > 90 {
		health.Status = "degraded"
	}

	return health
}

func (c *Collector) collectDatabaseHealth(ctx context.Context) types.DatabaseHealth {
	health := types.DatabaseHealth{
		Status: "healthy",
	}

	if c.db == nil {
		health.Status = "disabled"
		return health
	}

	health.Pool = c.db.GetPoolStats()
	if health.Pool.MaxConnections > 0 && health.Pool.AcquiredConnections >= health.Pool.MaxConnections-2 {
		health.Status = "degraded"
	}

	size, err := c.db.GetDatabaseSize(ctx)
	if err != nil {
		health.Status = "error"
		return health
	}
	health.SizeBytes = size

	return health
}
