// Package aggregator computes rolling uptime and latency statistics over
// the heartbeat history.
//
// Analytics reads are eventually consistent by design: every computed
// value is cached with a freshness TTL, stale reads are tolerated, and
// when the store cannot answer within the query timeout the aggregator
// degrades to its last cached value rather than blocking the caller.
// Current-status reads never come through here; they are served from the
// tracker's live snapshots.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nova-universe/pulse/pkg/types"
)

// ErrStatsUnavailable - the store could not answer and no cached value
// exists. Distinct from "no data in window", which is a valid result with
// zero checks and 100% uptime.
var ErrStatsUnavailable = errors.New("stats temporarily unavailable")

// Store is the read surface the aggregator needs.
type Store interface {
	QueryHeartbeats(ctx context.Context, monitorID uuid.UUID, start, end time.Time) ([]types.Heartbeat, error)
	CountEventsSince(ctx context.Context, since time.Time) (int64, error)
}

// SnapshotSource supplies the live status snapshots for system-wide counts.
type SnapshotSource interface {
	Snapshots() []types.StatusSnapshot
}

// Registry supplies monitor metadata for ranking queries.
type Registry interface {
	ListAll(tenantID string) []types.Monitor
}

// Config holds aggregator tuning.
type Config struct {
	// QueryTimeout bounds a single store range query.
	QueryTimeout time.Duration

	// UptimeTTL is the freshness TTL for per-monitor window stats.
	UptimeTTL time.Duration

	// SystemTTL is the freshness TTL for system-wide stats.
	SystemTTL time.Duration

	// RecentEventsWindow is the trailing window for the event count in
	// system-wide stats.
	RecentEventsWindow time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		QueryTimeout:       5 * time.Second,
		UptimeTTL:          time.Hour,
		SystemTTL:          30 * time.Second,
		RecentEventsWindow: time.Hour,
	}
}

// Aggregator computes and caches windowed statistics.
type Aggregator struct {
	store     Store
	cache     Cache
	snapshots SnapshotSource
	registry  Registry
	config    Config
	logger    *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// New creates an aggregator. The cache owns its own lifecycle; the
// aggregator never constructs one implicitly.
func New(store Store, cache Cache, snapshots SnapshotSource, registry Registry, cfg Config, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:     store,
		cache:     cache,
		snapshots: snapshots,
		registry:  registry,
		config:    cfg,
		logger:    logger.With("component", "aggregator"),
		now:       time.Now,
	}
}

// ComputeUptime returns uptime and latency statistics for one monitor over
// one window, serving a fresh cached value when available.
func (a *Aggregator) ComputeUptime(ctx context.Context, monitorID uuid.UUID, window types.Window) (types.UptimeStats, error) {
	if _, err := window.Duration(); err != nil {
		return types.UptimeStats{}, err
	}

	if cached, err := a.cache.GetUptime(ctx, monitorID, window); err == nil && cached != nil {
		if a.now().Sub(cached.ComputedAt) < a.config.UptimeTTL {
			return *cached, nil
		}
	}

	stats, err := a.recomputeUptime(ctx, monitorID, window)
	if err == nil {
		if cacheErr := a.cache.SetUptime(ctx, stats); cacheErr != nil {
			a.logger.Warn("failed to cache uptime stats", "monitor_id", monitorID, "error", cacheErr)
		}
		return stats, nil
	}

	// Degrade: serve the stale cached value if one exists.
	a.logger.Warn("uptime recompute failed, falling back to cache",
		"monitor_id", monitorID,
		"window", window,
		"error", err,
	)
	if cached, cacheErr := a.cache.GetUptime(ctx, monitorID, window); cacheErr == nil && cached != nil {
		stale := *cached
		stale.Stale = true
		return stale, nil
	}
	return types.UptimeStats{}, fmt.Errorf("%w: %v", ErrStatsUnavailable, err)
}

// recomputeUptime queries the store and computes fresh stats.
func (a *Aggregator) recomputeUptime(ctx context.Context, monitorID uuid.UUID, window types.Window) (types.UptimeStats, error) {
	now := a.now()
	start, end, err := window.Range(now)
	if err != nil {
		return types.UptimeStats{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, a.config.QueryTimeout)
	defer cancel()

	heartbeats, err := a.store.QueryHeartbeats(queryCtx, monitorID, start, end)
	if err != nil {
		return types.UptimeStats{}, err
	}

	stats := computeStats(heartbeats)
	stats.MonitorID = monitorID
	stats.Window = window
	stats.WindowStart = start
	stats.WindowEnd = end
	stats.ComputedAt = now
	return stats, nil
}

// computeStats derives the counters from a heartbeat set.
//
// Policy: zero checks means 100% uptime (no data, assume healthy).
// Zero and negative latency readings are unmeasured, never counted.
func computeStats(heartbeats []types.Heartbeat) types.UptimeStats {
	var stats types.UptimeStats
	var latencySum float64
	var latencyCount int
	var minLatency, maxLatency float64

	for _, hb := range heartbeats {
		stats.TotalChecks++
		if hb.Status == types.StatusUp {
			stats.UpChecks++
		} else {
			stats.DownChecks++
		}

		if hb.LatencyMs == nil || *hb.LatencyMs <= 0 {
			continue
		}
		v := *hb.LatencyMs
		latencySum += v
		latencyCount++
		if latencyCount == 1 || v < minLatency {
			minLatency = v
		}
		if v > maxLatency {
			maxLatency = v
		}
	}

	if stats.TotalChecks == 0 {
		stats.UptimePercent = 100
	} else {
		stats.UptimePercent = round2(float64(stats.UpChecks) / float64(stats.TotalChecks) * 100)
	}
	if latencyCount > 0 {
		stats.AvgLatencyMs = int64(math.Round(latencySum / float64(latencyCount)))
		stats.MinLatencyMs = int64(math.Round(minLatency))
		stats.MaxLatencyMs = int64(math.Round(maxLatency))
	}
	return stats
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Refresh recomputes and re-caches stats for one monitor and window,
// ignoring cache freshness. Used by the scheduled rollup so read-path
// queries keep hitting warm entries.
func (a *Aggregator) Refresh(ctx context.Context, monitorID uuid.UUID, window types.Window) (types.UptimeStats, error) {
	stats, err := a.recomputeUptime(ctx, monitorID, window)
	if err != nil {
		return types.UptimeStats{}, err
	}
	if cacheErr := a.cache.SetUptime(ctx, stats); cacheErr != nil {
		a.logger.Warn("failed to cache uptime stats", "monitor_id", monitorID, "error", cacheErr)
	}
	return stats, nil
}

// ComputeSystemWide answers "how many monitors are currently up, down,
// unknown" from live snapshots, plus the recent analytics event count.
func (a *Aggregator) ComputeSystemWide(ctx context.Context) (types.SystemStats, error) {
	now := a.now()

	stats := types.SystemStats{
		RecentEventsWindow: a.config.RecentEventsWindow,
		ComputedAt:         now,
	}

	tracked := make(map[uuid.UUID]types.Status)
	for _, snap := range a.snapshots.Snapshots() {
		tracked[snap.MonitorID] = snap.CurrentStatus
	}

	for _, m := range a.registry.ListAll("") {
		stats.TotalMonitors++
		switch tracked[m.ID] {
		case types.StatusUp:
			stats.UpMonitors++
		case types.StatusDown:
			stats.DownMonitors++
		default:
			stats.UnknownMonitors++
		}
	}

	queryCtx, cancel := context.WithTimeout(ctx, a.config.QueryTimeout)
	defer cancel()
	count, err := a.store.CountEventsSince(queryCtx, now.Add(-a.config.RecentEventsWindow))
	if err != nil {
		a.logger.Warn("recent event count failed, falling back to cache", "error", err)
		if cached, cacheErr := a.cache.GetSystem(ctx); cacheErr == nil && cached != nil {
			stale := *cached
			stale.Stale = true
			return stale, nil
		}
		return types.SystemStats{}, fmt.Errorf("%w: %v", ErrStatsUnavailable, err)
	}
	stats.RecentEvents = count

	if cacheErr := a.cache.SetSystem(ctx, stats); cacheErr != nil {
		a.logger.Warn("failed to cache system stats", "error", cacheErr)
	}
	return stats, nil
}

// SystemFromCache returns the cached system stats when fresh enough,
// recomputing otherwise. The read path prefers this to keep dashboard
// polls off the store.
func (a *Aggregator) SystemFromCache(ctx context.Context) (types.SystemStats, error) {
	if cached, err := a.cache.GetSystem(ctx); err == nil && cached != nil {
		if a.now().Sub(cached.ComputedAt) < a.config.SystemTTL {
			return *cached, nil
		}
	}
	return a.ComputeSystemWide(ctx)
}

// TopPerforming ranks monitors by (uptime desc, avg latency asc) over the
// window, excluding monitors with zero checks. Ties break by monitor id.
func (a *Aggregator) TopPerforming(ctx context.Context, window types.Window, limit int) ([]types.MonitorRanking, error) {
	rankings, err := a.rank(ctx, window)
	if err != nil {
		return nil, err
	}
	sort.Slice(rankings, func(i, j int) bool {
		if rankings[i].UptimePercent != rankings[j].UptimePercent {
			return rankings[i].UptimePercent > rankings[j].UptimePercent
		}
		if rankings[i].AvgLatencyMs != rankings[j].AvgLatencyMs {
			return rankings[i].AvgLatencyMs < rankings[j].AvgLatencyMs
		}
		return rankings[i].MonitorID.String() < rankings[j].MonitorID.String()
	})
	return truncate(rankings, limit), nil
}

// Slowest ranks monitors by average latency, worst first, excluding
// monitors with zero checks in the window.
func (a *Aggregator) Slowest(ctx context.Context, window types.Window, limit int) ([]types.MonitorRanking, error) {
	rankings, err := a.rank(ctx, window)
	if err != nil {
		return nil, err
	}
	sort.Slice(rankings, func(i, j int) bool {
		if rankings[i].AvgLatencyMs != rankings[j].AvgLatencyMs {
			return rankings[i].AvgLatencyMs > rankings[j].AvgLatencyMs
		}
		return rankings[i].MonitorID.String() < rankings[j].MonitorID.String()
	})
	return truncate(rankings, limit), nil
}

// rank computes the ranking rows for every monitor with data in the window.
// Per-monitor failures degrade to skipping that monitor; one monitor's
// trouble never empties the whole ranking.
func (a *Aggregator) rank(ctx context.Context, window types.Window) ([]types.MonitorRanking, error) {
	if _, err := window.Duration(); err != nil {
		return nil, err
	}

	var rankings []types.MonitorRanking
	for _, m := range a.registry.ListAll("") {
		stats, err := a.ComputeUptime(ctx, m.ID, window)
		if err != nil {
			a.logger.Warn("skipping monitor in ranking", "monitor_id", m.ID, "error", err)
			continue
		}
		if stats.TotalChecks == 0 {
			continue
		}
		rankings = append(rankings, types.MonitorRanking{
			MonitorID:     m.ID,
			Name:          m.Name,
			UptimePercent: stats.UptimePercent,
			AvgLatencyMs:  stats.AvgLatencyMs,
			TotalChecks:   stats.TotalChecks,
		})
	}
	return rankings, nil
}

func truncate(rankings []types.MonitorRanking, limit int) []types.MonitorRanking {
	if limit > 0 && len(rankings) > limit {
		return rankings[:limit]
	}
	return rankings
}
