// Package worker provides the engine's background workers.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RetentionStore defines the storage interface for the retention worker.
type RetentionStore interface {
	// DeleteHeartbeatsBefore prunes heartbeats older than the cutoff,
	// keeping transition heartbeats when excludeImportant is set.
	DeleteHeartbeatsBefore(ctx context.Context, cutoff time.Time, excludeImportant bool) (int64, error)

	// DeleteAnalyticsEventsBefore prunes analytics events older than the cutoff.
	DeleteAnalyticsEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionWorkerConfig holds configuration for the retention worker.
type RetentionWorkerConfig struct {
	// Interval between sweeps.
	Interval time.Duration

	// HeartbeatWindow is how long non-important heartbeats are retained.
	HeartbeatWindow time.Duration

	// AnalyticsWindow is how long analytics events are retained.
	AnalyticsWindow time.Duration
}

// DefaultRetentionWorkerConfig returns sensible defaults.
func DefaultRetentionWorkerConfig() RetentionWorkerConfig {
	return RetentionWorkerConfig{
		Interval:        time.Hour,
		HeartbeatWindow: 90 * 24 * time.Hour,
		AnalyticsWindow: 180 * 24 * time.Hour,
	}
}

// RetentionWorker prunes old heartbeats and analytics events on a fixed
// schedule. Transition heartbeats are retained indefinitely to preserve
// incident history. Sweeps are idempotent and safe to run concurrently
// with ingestion; errors are logged and retried next cycle, never fatal.
type RetentionWorker struct {
	store  RetentionStore
	config RetentionWorkerConfig
	logger *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once

	// now is replaceable in tests.
	now func() time.Time
}

// NewRetentionWorker creates a new retention worker.
func NewRetentionWorker(store RetentionStore, config RetentionWorkerConfig, logger *slog.Logger) *RetentionWorker {
	return &RetentionWorker{
		store:  store,
		config: config,
		logger: logger.With("component", "retention_worker"),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
}

// Start begins the retention worker in a goroutine.
func (w *RetentionWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals the worker to stop.
func (w *RetentionWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *RetentionWorker) run(ctx context.Context) {
	w.logger.Info("retention worker started",
		"interval", w.config.Interval,
		"heartbeat_window", w.config.HeartbeatWindow,
		"analytics_window", w.config.AnalyticsWindow,
	)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("retention worker stopping (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("retention worker stopping (stop signal)")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one retention pass and returns how many heartbeats were
// pruned.
func (w *RetentionWorker) Sweep(ctx context.Context) int64 {
	start := w.now()

	heartbeatsPruned, err := w.store.DeleteHeartbeatsBefore(ctx, start.Add(-w.config.HeartbeatWindow), true)
	if err != nil {
		w.logger.Error("heartbeat retention sweep failed", "error", err)
	}

	var eventsPruned int64
	if w.config.AnalyticsWindow > 0 {
		eventsPruned, err = w.store.DeleteAnalyticsEventsBefore(ctx, start.Add(-w.config.AnalyticsWindow))
		if err != nil {
			w.logger.Error("analytics retention sweep failed", "error", err)
		}
	}

	w.logger.Info("retention sweep complete",
		"duration", time.Since(start),
		"heartbeats_pruned", heartbeatsPruned,
		"events_pruned", eventsPruned,
	)
	return heartbeatsPruned
}
