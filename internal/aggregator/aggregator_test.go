package aggregator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nova-universe/pulse/pkg/types"
)

// testLogger returns a logger that discards output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockStore implements Store for testing.
type mockStore struct {
	mu         sync.Mutex
	heartbeats map[uuid.UUID][]types.Heartbeat
	eventCount int64
	failQuery  bool
	failCount  bool
	queries    int
}

func newMockStore() *mockStore {
	return &mockStore{heartbeats: make(map[uuid.UUID][]types.Heartbeat)}
}

func (m *mockStore) QueryHeartbeats(ctx context.Context, monitorID uuid.UUID, start, end time.Time) ([]types.Heartbeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	if m.failQuery {
		return nil, errors.New("store down")
	}
	var out []types.Heartbeat
	for _, hb := range m.heartbeats[monitorID] {
		if !hb.RecordedAt.Before(start) && hb.RecordedAt.Before(end) {
			out = append(out, hb)
		}
	}
	return out, nil
}

func (m *mockStore) CountEventsSince(ctx context.Context, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCount {
		return 0, errors.New("store down")
	}
	return m.eventCount, nil
}

// mockCache implements Cache in memory.
type mockCache struct {
	mu     sync.Mutex
	uptime map[string]types.UptimeStats
	system *types.SystemStats
}

func newMockCache() *mockCache {
	return &mockCache{uptime: make(map[string]types.UptimeStats)}
}

func cacheKey(monitorID uuid.UUID, window types.Window) string {
	return monitorID.String() + ":" + string(window)
}

func (c *mockCache) GetUptime(ctx context.Context, monitorID uuid.UUID, window types.Window) (*types.UptimeStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stats, ok := c.uptime[cacheKey(monitorID, window)]; ok {
		out := stats
		return &out, nil
	}
	return nil, nil
}

func (c *mockCache) SetUptime(ctx context.Context, stats types.UptimeStats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uptime[cacheKey(stats.MonitorID, stats.Window)] = stats
	return nil
}

func (c *mockCache) GetSystem(ctx context.Context) (*types.SystemStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.system == nil {
		return nil, nil
	}
	out := *c.system
	return &out, nil
}

func (c *mockCache) SetSystem(ctx context.Context, stats types.SystemStats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.system = &stats
	return nil
}

// mockSnapshots implements SnapshotSource.
type mockSnapshots struct {
	snaps []types.StatusSnapshot
}

func (m *mockSnapshots) Snapshots() []types.StatusSnapshot {
	return m.snaps
}

// mockRegistry implements Registry.
type mockRegistry struct {
	monitors []types.Monitor
}

func (m *mockRegistry) ListAll(tenantID string) []types.Monitor {
	return m.monitors
}

func newTestAggregator(store *mockStore, cache *mockCache, snaps *mockSnapshots, reg *mockRegistry) *Aggregator {
	if snaps == nil {
		snaps = &mockSnapshots{}
	}
	if reg == nil {
		reg = &mockRegistry{}
	}
	return New(store, cache, snaps, reg, DefaultConfig(), testLogger())
}

func latency(v float64) *float64 {
	return &v
}

func TestComputeUptime_NoData(t *testing.T) {
	store := newMockStore()
	agg := newTestAggregator(store, newMockCache(), nil, nil)

	stats, err := agg.ComputeUptime(context.Background(), uuid.New(), types.Window24h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.UptimePercent != 100 {
		t.Errorf("no data should mean 100%% uptime, got %v", stats.UptimePercent)
	}
	if stats.TotalChecks != 0 {
		t.Errorf("expected 0 checks, got %d", stats.TotalChecks)
	}
	if stats.Stale {
		t.Error("no-data result must not be marked stale")
	}
}

func TestComputeUptime_Percentages(t *testing.T) {
	id := uuid.New()
	store := newMockStore()
	now := time.Now()

	for i := 0; i < 7; i++ {
		store.heartbeats[id] = append(store.heartbeats[id], types.Heartbeat{
			MonitorID: id, Status: types.StatusUp, RecordedAt: now.Add(-time.Duration(i+1) * time.Minute),
		})
	}
	for i := 0; i < 3; i++ {
		store.heartbeats[id] = append(store.heartbeats[id], types.Heartbeat{
			MonitorID: id, Status: types.StatusDown, RecordedAt: now.Add(-time.Duration(i+10) * time.Minute),
		})
	}

	agg := newTestAggregator(store, newMockCache(), nil, nil)
	stats, err := agg.ComputeUptime(context.Background(), id, types.Window1h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.UptimePercent != 70.0 {
		t.Errorf("expected 70.0%%, got %v", stats.UptimePercent)
	}
	if stats.TotalChecks != 10 || stats.UpChecks != 7 || stats.DownChecks != 3 {
		t.Errorf("unexpected counts: %+v", stats)
	}
}

func TestComputeUptime_Rounding(t *testing.T) {
	id := uuid.New()
	store := newMockStore()
	now := time.Now()

	// 2 of 3 up: 66.666...% rounds to 66.67.
	statuses := []types.Status{types.StatusUp, types.StatusUp, types.StatusDown}
	for i, s := range statuses {
		store.heartbeats[id] = append(store.heartbeats[id], types.Heartbeat{
			MonitorID: id, Status: s, RecordedAt: now.Add(-time.Duration(i+1) * time.Minute),
		})
	}

	agg := newTestAggregator(store, newMockCache(), nil, nil)
	stats, _ := agg.ComputeUptime(context.Background(), id, types.Window1h)
	if stats.UptimePercent != 66.67 {
		t.Errorf("expected 66.67, got %v", stats.UptimePercent)
	}
}

func TestComputeUptime_UnmeasuredLatencyExcluded(t *testing.T) {
	id := uuid.New()
	store := newMockStore()
	now := time.Now()

	store.heartbeats[id] = []types.Heartbeat{
		{MonitorID: id, Status: types.StatusUp, RecordedAt: now.Add(-time.Minute), LatencyMs: latency(100)},
		{MonitorID: id, Status: types.StatusUp, RecordedAt: now.Add(-2 * time.Minute), LatencyMs: latency(200)},
		{MonitorID: id, Status: types.StatusUp, RecordedAt: now.Add(-3 * time.Minute), LatencyMs: latency(0)},
		{MonitorID: id, Status: types.StatusDown, RecordedAt: now.Add(-4 * time.Minute)},
	}

	agg := newTestAggregator(store, newMockCache(), nil, nil)
	stats, _ := agg.ComputeUptime(context.Background(), id, types.Window1h)

	if stats.AvgLatencyMs != 150 {
		t.Errorf("expected avg 150 over measured readings only, got %d", stats.AvgLatencyMs)
	}
	if stats.MinLatencyMs != 100 || stats.MaxLatencyMs != 200 {
		t.Errorf("unexpected min/max: %d/%d", stats.MinLatencyMs, stats.MaxLatencyMs)
	}
}

func TestComputeUptime_ServesFreshCache(t *testing.T) {
	id := uuid.New()
	store := newMockStore()
	cache := newMockCache()
	agg := newTestAggregator(store, cache, nil, nil)

	if _, err := agg.ComputeUptime(context.Background(), id, types.Window24h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := store.queries

	if _, err := agg.ComputeUptime(context.Background(), id, types.Window24h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.queries != first {
		t.Errorf("fresh cache hit should not query the store (%d -> %d)", first, store.queries)
	}
}

func TestComputeUptime_StaleFallback(t *testing.T) {
	id := uuid.New()
	store := newMockStore()
	cache := newMockCache()
	agg := newTestAggregator(store, cache, nil, nil)

	// Seed the cache with an expired entry.
	cache.SetUptime(context.Background(), types.UptimeStats{
		MonitorID:     id,
		Window:        types.Window24h,
		UptimePercent: 95.5,
		TotalChecks:   42,
		ComputedAt:    time.Now().Add(-2 * time.Hour),
	})
	store.failQuery = true

	stats, err := agg.ComputeUptime(context.Background(), id, types.Window24h)
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if !stats.Stale {
		t.Error("fallback result must be marked stale")
	}
	if stats.UptimePercent != 95.5 {
		t.Errorf("expected cached value 95.5, got %v", stats.UptimePercent)
	}
}

func TestComputeUptime_UnavailableWithoutCache(t *testing.T) {
	store := newMockStore()
	store.failQuery = true
	agg := newTestAggregator(store, newMockCache(), nil, nil)

	_, err := agg.ComputeUptime(context.Background(), uuid.New(), types.Window24h)
	if !errors.Is(err, ErrStatsUnavailable) {
		t.Errorf("expected ErrStatsUnavailable, got %v", err)
	}
}

func TestComputeUptime_InvalidWindow(t *testing.T) {
	agg := newTestAggregator(newMockStore(), newMockCache(), nil, nil)
	if _, err := agg.ComputeUptime(context.Background(), uuid.New(), types.Window("3h")); err == nil {
		t.Error("expected error for unsupported window")
	}
}

func TestComputeSystemWide(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	store := newMockStore()
	store.eventCount = 17

	snaps := &mockSnapshots{snaps: []types.StatusSnapshot{
		{MonitorID: a, CurrentStatus: types.StatusUp},
		{MonitorID: b, CurrentStatus: types.StatusDown},
	}}
	reg := &mockRegistry{monitors: []types.Monitor{{ID: a}, {ID: b}, {ID: c}}}

	agg := newTestAggregator(store, newMockCache(), snaps, reg)
	stats, err := agg.ComputeSystemWide(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalMonitors != 3 || stats.UpMonitors != 1 || stats.DownMonitors != 1 || stats.UnknownMonitors != 1 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.RecentEvents != 17 {
		t.Errorf("expected 17 recent events, got %d", stats.RecentEvents)
	}
}

func TestComputeSystemWide_StaleFallback(t *testing.T) {
	store := newMockStore()
	cache := newMockCache()
	cache.SetSystem(context.Background(), types.SystemStats{
		TotalMonitors: 5,
		ComputedAt:    time.Now().Add(-time.Hour),
	})
	store.failCount = true

	agg := newTestAggregator(store, cache, nil, nil)
	stats, err := agg.ComputeSystemWide(context.Background())
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if !stats.Stale || stats.TotalMonitors != 5 {
		t.Errorf("unexpected fallback result: %+v", stats)
	}
}

func TestRankings(t *testing.T) {
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	store := newMockStore()
	now := time.Now()

	add := func(id uuid.UUID, status types.Status, lat *float64, minsAgo int) {
		store.heartbeats[id] = append(store.heartbeats[id], types.Heartbeat{
			MonitorID: id, Status: status, RecordedAt: now.Add(-time.Duration(minsAgo) * time.Minute), LatencyMs: lat,
		})
	}

	// a: 100% uptime, 50ms. b: 100% uptime, 20ms. c: 50% uptime, 300ms.
	// d: no data, excluded everywhere.
	add(a, types.StatusUp, latency(50), 1)
	add(b, types.StatusUp, latency(20), 1)
	add(c, types.StatusUp, latency(300), 1)
	add(c, types.StatusDown, nil, 2)

	reg := &mockRegistry{monitors: []types.Monitor{
		{ID: a, Name: "a"}, {ID: b, Name: "b"}, {ID: c, Name: "c"}, {ID: d, Name: "d"},
	}}
	agg := newTestAggregator(store, newMockCache(), nil, reg)

	top, err := agg.TopPerforming(context.Background(), types.Window1h, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("expected 3 ranked monitors, got %d", len(top))
	}
	// Uptime tie between a and b breaks on lower latency.
	if top[0].Name != "b" || top[1].Name != "a" || top[2].Name != "c" {
		t.Errorf("unexpected top order: %s, %s, %s", top[0].Name, top[1].Name, top[2].Name)
	}

	slowest, err := agg.Slowest(context.Background(), types.Window1h, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slowest) != 2 {
		t.Fatalf("expected limit 2, got %d", len(slowest))
	}
	if slowest[0].Name != "c" || slowest[1].Name != "a" {
		t.Errorf("unexpected slowest order: %s, %s", slowest[0].Name, slowest[1].Name)
	}
}
