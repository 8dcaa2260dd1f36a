// Package tracker implements the heartbeat state machine.
//
// The tracker ingests heartbeats, maintains the authoritative in-memory
// status snapshot per monitor, detects up/down transitions, and drives the
// downstream effects: durable persistence (write-behind), analytics event
// emission, and transition publication on the bus.
//
// Snapshot ownership is sharded by monitor id so heartbeats for different
// monitors never contend. The compare-and-set of a monitor's status happens
// under its shard lock; for a given monitor, exactly one of two racing
// heartbeats observes the status change.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nova-universe/pulse/internal/events"
	"github.com/nova-universe/pulse/pkg/types"
)

var (
	// ErrUnknownMonitor - the heartbeat references a monitor the registry
	// does not know. The heartbeat is rejected entirely.
	ErrUnknownMonitor = errors.New("unknown monitor")

	// ErrOutOfOrder - the heartbeat is older than the monitor's last
	// accepted one. It is persisted for audit but never mutates the live
	// snapshot or triggers transition logic.
	ErrOutOfOrder = errors.New("heartbeat out of order")
)

// Store is the persistence surface the tracker needs.
type Store interface {
	AppendHeartbeat(ctx context.Context, hb types.Heartbeat) error
	AppendHeartbeats(ctx context.Context, hbs []types.Heartbeat) error
	AppendAnalyticsEvent(ctx context.Context, ev types.AnalyticsEvent) error
	LatestHeartbeat(ctx context.Context, monitorID uuid.UUID) (*types.Heartbeat, error)
	StatusSinceBefore(ctx context.Context, monitorID uuid.UUID, before time.Time) (time.Time, error)
}

// Registry is the monitor lookup surface the tracker needs.
type Registry interface {
	Get(monitorID uuid.UUID) (types.Monitor, bool)
}

// Config holds tracker tuning.
type Config struct {
	// Shards is the number of snapshot lock shards.
	Shards int

	// QueueSize bounds the write-behind persistence queue.
	QueueSize int

	// Workers is how many goroutines drain the persistence queue.
	Workers int

	// BatchSize caps how many queued heartbeats one drain pass bulk-writes.
	BatchSize int

	// MaxAttempts is the retry budget per durable write.
	MaxAttempts int

	// RetryBackoff is the pause between write attempts.
	RetryBackoff time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Shards:       32,
		QueueSize:    4096,
		Workers:      4,
		BatchSize:    64,
		MaxAttempts:  3,
		RetryBackoff: 250 * time.Millisecond,
	}
}

type shard struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]*types.StatusSnapshot
}

// Tracker ingests heartbeats and owns the live status snapshots.
type Tracker struct {
	registry Registry
	writer   *writer
	bus      *events.Bus
	logger   *slog.Logger

	shards []shard
}

// New creates a tracker. The bus may be shared with other publishers.
func New(store Store, registry Registry, bus *events.Bus, cfg Config, logger *slog.Logger) *Tracker {
	if cfg.Shards <= 0 {
		cfg = DefaultConfig()
	}
	t := &Tracker{
		registry: registry,
		writer:   newWriter(store, cfg, logger),
		bus:      bus,
		logger:   logger.With("component", "tracker"),
		shards:   make([]shard, cfg.Shards),
	}
	for i := range t.shards {
		t.shards[i].snapshots = make(map[uuid.UUID]*types.StatusSnapshot)
	}
	t.writer.start(cfg.Workers)
	return t
}

// Close drains the write-behind queue. Call after ingestion has stopped.
func (t *Tracker) Close() {
	t.writer.stop()
}

func (t *Tracker) shardFor(monitorID uuid.UUID) *shard {
	h := fnv.New32a()
	h.Write(monitorID[:])
	return &t.shards[h.Sum32()%uint32(len(t.shards))]
}

// Ingest processes one heartbeat.
//
// It returns whether the heartbeat caused a status transition and the
// status the monitor held before it. Persistence happens asynchronously;
// store failures never surface here.
func (t *Tracker) Ingest(ctx context.Context, hb types.Heartbeat) (transitioned bool, previous types.Status, err error) {
	if err := hb.Validate(); err != nil {
		return false, types.StatusUnknown, err
	}
	if _, ok := t.registry.Get(hb.MonitorID); !ok {
		return false, types.StatusUnknown, fmt.Errorf("%w: %s", ErrUnknownMonitor, hb.MonitorID)
	}

	sh := t.shardFor(hb.MonitorID)
	sh.mu.Lock()

	snap, exists := sh.snapshots[hb.MonitorID]
	if exists && hb.RecordedAt.Before(snap.LastHeartbeat.RecordedAt) {
		previous = snap.CurrentStatus
		sh.mu.Unlock()
		// Stale heartbeat: keep it for audit, skip all state mutation.
		audit := hb
		t.writer.enqueue(persistOp{heartbeat: &audit})
		return false, previous, fmt.Errorf("%w: monitor %s at %s", ErrOutOfOrder, hb.MonitorID, hb.RecordedAt.Format(time.RFC3339))
	}

	if exists {
		previous = snap.CurrentStatus
		transitioned = snap.CurrentStatus != hb.Status
	} else {
		previous = types.StatusUnknown
		transitioned = true
		snap = &types.StatusSnapshot{MonitorID: hb.MonitorID}
		sh.snapshots[hb.MonitorID] = snap
	}

	if transitioned {
		hb.Important = true
		snap.StatusSince = hb.RecordedAt
	}
	snap.CurrentStatus = hb.Status
	snap.LastHeartbeat = hb

	// Published under the shard lock: per-monitor bus order equals
	// acceptance order, so a confirmation never overtakes its transition.
	t.publish(hb, transitioned, previous, snap.StatusSince)

	sh.mu.Unlock()

	t.persistAccepted(hb, transitioned, previous)

	return transitioned, previous, nil
}

// persistAccepted queues the durable writes for an accepted heartbeat: the
// heartbeat row, the per-heartbeat usage event, and on transitions the
// monitor_up/monitor_down event.
func (t *Tracker) persistAccepted(hb types.Heartbeat, transitioned bool, previous types.Status) {
	row := hb
	t.writer.enqueue(persistOp{heartbeat: &row})

	monitorID := hb.MonitorID
	usage := types.NewAnalyticsEvent(types.EventHeartbeat, &monitorID, map[string]any{
		"status": hb.Status,
	}, hb.RecordedAt)
	t.writer.enqueue(persistOp{event: &usage})

	if !transitioned {
		return
	}

	eventType := types.EventMonitorUp
	if hb.Status == types.StatusDown {
		eventType = types.EventMonitorDown
	}
	metadata := map[string]any{
		"previous_status": previous,
		"new_status":      hb.Status,
		"message":         hb.Message,
	}
	if hb.LatencyMs != nil {
		metadata["latency_ms"] = *hb.LatencyMs
	}
	ev := types.NewAnalyticsEvent(eventType, &monitorID, metadata, hb.RecordedAt)
	t.writer.enqueue(persistOp{event: &ev})

	t.logger.Info("monitor status transition",
		"monitor_id", hb.MonitorID,
		"previous", previous,
		"new", hb.Status,
		"at", hb.RecordedAt,
	)
}

// publish puts the heartbeat's outcome on the bus. Genuine transitions are
// always published; heartbeats confirming an ongoing down streak are
// republished so the alert correlator can re-evaluate its debounce window.
func (t *Tracker) publish(hb types.Heartbeat, transitioned bool, previous types.Status, statusSince time.Time) {
	if t.bus == nil {
		return
	}
	if !transitioned && hb.Status != types.StatusDown {
		return
	}
	if !transitioned {
		previous = hb.Status
	}
	t.bus.Publish(types.TransitionEvent{
		MonitorID:      hb.MonitorID,
		PreviousStatus: previous,
		NewStatus:      hb.Status,
		At:             hb.RecordedAt,
		StatusSince:    statusSince,
		LatencyMs:      hb.LatencyMs,
		Message:        hb.Message,
	})
}

// Snapshot returns the live snapshot for a monitor.
func (t *Tracker) Snapshot(monitorID uuid.UUID) (types.StatusSnapshot, bool) {
	sh := t.shardFor(monitorID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	snap, ok := sh.snapshots[monitorID]
	if !ok {
		return types.StatusSnapshot{}, false
	}
	return *snap, true
}

// Snapshots returns a copy of every live snapshot.
func (t *Tracker) Snapshots() []types.StatusSnapshot {
	var out []types.StatusSnapshot
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		for _, snap := range sh.snapshots {
			out = append(out, *snap)
		}
		sh.mu.Unlock()
	}
	return out
}

// PersistenceLost reports how many durable writes were abandoned after
// exhausting their retry budget.
func (t *Tracker) PersistenceLost() int64 {
	return t.writer.persistenceLost()
}

// Warm rebuilds snapshots from stored heartbeat history. Called once at
// startup, before ingestion begins, so current-status reads do not report
// unknown for monitors that were tracked before a restart.
func (t *Tracker) Warm(ctx context.Context, store Store, monitorIDs []uuid.UUID) error {
	warmed := 0
	for _, id := range monitorIDs {
		hb, err := store.LatestHeartbeat(ctx, id)
		if err != nil {
			return fmt.Errorf("warming monitor %s: %w", id, err)
		}
		if hb == nil {
			continue
		}
		since, err := store.StatusSinceBefore(ctx, id, hb.RecordedAt)
		if err != nil {
			return fmt.Errorf("warming monitor %s: %w", id, err)
		}

		sh := t.shardFor(id)
		sh.mu.Lock()
		if _, exists := sh.snapshots[id]; !exists {
			sh.snapshots[id] = &types.StatusSnapshot{
				MonitorID:     id,
				CurrentStatus: hb.Status,
				LastHeartbeat: *hb,
				StatusSince:   since,
			}
			warmed++
		}
		sh.mu.Unlock()
	}
	t.logger.Info("snapshots warmed from store", "monitors", warmed)
	return nil
}
