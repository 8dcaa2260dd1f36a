package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nova-universe/pulse/pkg/types"
)

// UptimeSource recomputes per-monitor window statistics.
type UptimeSource interface {
	Refresh(ctx context.Context, monitorID uuid.UUID, window types.Window) (types.UptimeStats, error)
}

// RollupRegistry supplies the monitor set for full-matrix recomputation.
type RollupRegistry interface {
	IDs() []uuid.UUID
}

// RollupStore records daily rollup events.
type RollupStore interface {
	AppendAnalyticsEvent(ctx context.Context, ev types.AnalyticsEvent) error
}

// RollupWorkerConfig holds configuration for the rollup worker.
type RollupWorkerConfig struct {
	// Interval is the slow cadence for full historical recomputation.
	Interval time.Duration

	// Windows is the set of windows recomputed each cycle.
	Windows []types.Window
}

// DefaultRollupWorkerConfig returns sensible defaults.
func DefaultRollupWorkerConfig() RollupWorkerConfig {
	return RollupWorkerConfig{
		Interval: time.Hour,
		Windows:  types.Windows(),
	}
}

// RollupWorker recomputes the full windows x monitors stats matrix on the
// slow cadence, and once per UTC day writes a daily_stats analytics event
// per monitor. Each computation is read-then-replace-cache; a cancelled
// cycle leaves no partial writes behind.
type RollupWorker struct {
	source   UptimeSource
	registry RollupRegistry
	store    RollupStore
	config   RollupWorkerConfig
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once

	// lastDailyRollup is the UTC day most recently rolled up.
	lastDailyRollup string

	// now is replaceable in tests.
	now func() time.Time
}

// NewRollupWorker creates a new rollup worker.
func NewRollupWorker(source UptimeSource, registry RollupRegistry, store RollupStore, config RollupWorkerConfig, logger *slog.Logger) *RollupWorker {
	if len(config.Windows) == 0 {
		config.Windows = types.Windows()
	}
	return &RollupWorker{
		source:   source,
		registry: registry,
		store:    store,
		config:   config,
		logger:   logger.With("component", "rollup_worker"),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// Start begins the rollup worker in a goroutine.
func (w *RollupWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals the worker to stop.
func (w *RollupWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *RollupWorker) run(ctx context.Context) {
	w.logger.Info("rollup worker started",
		"interval", w.config.Interval,
		"windows", len(w.config.Windows),
	)

	// Run immediately on start
	w.runOnce(ctx)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("rollup worker stopping (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("rollup worker stopping (stop signal)")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *RollupWorker) runOnce(ctx context.Context) {
	start := w.now()

	monitors := w.registry.IDs()
	refreshed := 0
	failed := 0

	// 24h stats computed by the matrix pass feed the daily rollup directly.
	daily := make(map[uuid.UUID]types.UptimeStats, len(monitors))

	for _, id := range monitors {
		for _, window := range w.config.Windows {
			if ctx.Err() != nil {
				return
			}
			stats, err := w.source.Refresh(ctx, id, window)
			if err != nil {
				failed++
				w.logger.Warn("window refresh failed",
					"monitor_id", id,
					"window", window,
					"error", err,
				)
				continue
			}
			refreshed++
			if window == types.Window24h {
				daily[id] = stats
			}
		}
	}

	dailyWritten := w.maybeDailyRollup(ctx, monitors, daily)

	w.logger.Info("rollup cycle complete",
		"duration", time.Since(start),
		"monitors", len(monitors),
		"refreshed", refreshed,
		"failed", failed,
		"daily_events", dailyWritten,
	)
}

// maybeDailyRollup writes one daily_stats event per monitor the first time
// a cycle runs on a new UTC day. The matrix pass already computed the 24h
// stats; a monitor is recomputed here only when that window is not among
// the configured ones.
func (w *RollupWorker) maybeDailyRollup(ctx context.Context, monitors []uuid.UUID, daily map[uuid.UUID]types.UptimeStats) int {
	day := w.now().UTC().Format("2006-01-02")
	if day == w.lastDailyRollup {
		return 0
	}

	written := 0
	for _, id := range monitors {
		stats, ok := daily[id]
		if !ok {
			var err error
			stats, err = w.source.Refresh(ctx, id, types.Window24h)
			if err != nil {
				w.logger.Warn("daily rollup skipped monitor", "monitor_id", id, "error", err)
				continue
			}
		}
		monitorID := id
		ev := types.NewAnalyticsEvent(types.EventDailyStats, &monitorID, map[string]any{
			"day":            day,
			"uptime_percent": stats.UptimePercent,
			"total_checks":   stats.TotalChecks,
			"up_checks":      stats.UpChecks,
			"down_checks":    stats.DownChecks,
			"avg_latency_ms": stats.AvgLatencyMs,
		}, w.now())
		if err := w.store.AppendAnalyticsEvent(ctx, ev); err != nil {
			w.logger.Error("daily rollup write failed", "monitor_id", id, "error", err)
			continue
		}
		written++
	}

	w.lastDailyRollup = day
	return written
}
