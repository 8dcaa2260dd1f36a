package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nova-universe/pulse/pkg/types"
)

// SystemStatsSource recomputes the system-wide snapshot metrics.
type SystemStatsSource interface {
	ComputeSystemWide(ctx context.Context) (types.SystemStats, error)
}

// SystemWorkerConfig holds configuration for the system stats worker.
type SystemWorkerConfig struct {
	// Interval is the fast cadence for system-wide recomputation.
	Interval time.Duration
}

// DefaultSystemWorkerConfig returns sensible defaults.
func DefaultSystemWorkerConfig() SystemWorkerConfig {
	return SystemWorkerConfig{
		Interval: 5 * time.Minute,
	}
}

// SystemWorker keeps the cached system-wide stats warm on the fast
// cadence so dashboard polls rarely pay for a recompute.
type SystemWorker struct {
	source SystemStatsSource
	config SystemWorkerConfig
	logger *slog.Logger
	stopCh chan struct{}
	stopOnce sync.Once
}

// NewSystemWorker creates a new system stats worker.
func NewSystemWorker(source SystemStatsSource, config SystemWorkerConfig, logger *slog.Logger) *SystemWorker {
	return &SystemWorker{
		source: source,
		config: config,
		logger: logger.With("component", "system_worker"),
		stopCh: make(chan struct{}),
	}
}

// Start begins the system stats worker in a goroutine.
func (w *SystemWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals the worker to stop.
func (w *SystemWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *SystemWorker) run(ctx context.Context) {
	w.logger.Info("system stats worker started", "interval", w.config.Interval)

	// Run immediately on start
	w.runOnce(ctx)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("system stats worker stopping (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("system stats worker stopping (stop signal)")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *SystemWorker) runOnce(ctx context.Context) {
	start := time.Now()

	stats, err := w.source.ComputeSystemWide(ctx)
	if err != nil {
		w.logger.Error("system stats recompute failed", "error", err)
		return
	}

	w.logger.Debug("system stats cycle complete",
		"duration", time.Since(start),
		"monitors", stats.TotalMonitors,
		"up", stats.UpMonitors,
		"down", stats.DownMonitors,
		"unknown", stats.UnknownMonitors,
	)
}
