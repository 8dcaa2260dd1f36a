package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nova-universe/pulse/pkg/types"
)

// mockUptimeSource implements UptimeSource for testing.
type mockUptimeSource struct {
	mu        sync.Mutex
	refreshes map[uuid.UUID][]types.Window
}

func newMockUptimeSource() *mockUptimeSource {
	return &mockUptimeSource{refreshes: make(map[uuid.UUID][]types.Window)}
}

func (m *mockUptimeSource) Refresh(ctx context.Context, monitorID uuid.UUID, window types.Window) (types.UptimeStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes[monitorID] = append(m.refreshes[monitorID], window)
	return types.UptimeStats{
		MonitorID:     monitorID,
		Window:        window,
		UptimePercent: 99.5,
		TotalChecks:   100,
	}, nil
}

// mockRollupRegistry implements RollupRegistry.
type mockRollupRegistry struct {
	ids []uuid.UUID
}

func (m *mockRollupRegistry) IDs() []uuid.UUID {
	return m.ids
}

// mockRollupStore implements RollupStore.
type mockRollupStore struct {
	mu     sync.Mutex
	events []types.AnalyticsEvent
}

func (m *mockRollupStore) AppendAnalyticsEvent(ctx context.Context, ev types.AnalyticsEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *mockRollupStore) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestRollup_RefreshesFullMatrix(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	source := newMockUptimeSource()
	store := &mockRollupStore{}
	w := NewRollupWorker(source, &mockRollupRegistry{ids: ids}, store, DefaultRollupWorkerConfig(), testLogger())

	fixed := time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	w.runOnce(context.Background())

	windows := len(types.Windows())
	for _, id := range ids {
		// The matrix pass covers every window; the daily rollup reuses its
		// 24h result instead of recomputing.
		if got := len(source.refreshes[id]); got != windows {
			t.Errorf("monitor %s: expected %d refreshes, got %d", id, windows, got)
		}
	}
	if store.eventCount() != len(ids) {
		t.Errorf("expected %d daily events, got %d", len(ids), store.eventCount())
	}
}

// A window set without 24h still produces daily events, computing the 24h
// stats on demand.
func TestRollup_DailyComputes24hWhenNotConfigured(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	source := newMockUptimeSource()
	store := &mockRollupStore{}
	cfg := DefaultRollupWorkerConfig()
	cfg.Windows = []types.Window{types.Window7d}
	w := NewRollupWorker(source, &mockRollupRegistry{ids: ids}, store, cfg, testLogger())

	fixed := time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	w.runOnce(context.Background())

	if store.eventCount() != len(ids) {
		t.Fatalf("expected %d daily events, got %d", len(ids), store.eventCount())
	}
	for _, id := range ids {
		// One 7d matrix refresh plus the on-demand 24h read.
		if got := len(source.refreshes[id]); got != 2 {
			t.Errorf("monitor %s: expected 2 refreshes, got %d", id, got)
		}
	}
}

func TestRollup_DailyStatsOncePerDay(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	source := newMockUptimeSource()
	store := &mockRollupStore{}
	w := NewRollupWorker(source, &mockRollupRegistry{ids: ids}, store, DefaultRollupWorkerConfig(), testLogger())

	day1 := time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return day1 }

	w.runOnce(context.Background())
	if store.eventCount() != 3 {
		t.Fatalf("expected 3 daily events on first run, got %d", store.eventCount())
	}

	// Second cycle on the same day writes nothing.
	w.now = func() time.Time { return day1.Add(time.Hour) }
	w.runOnce(context.Background())
	if store.eventCount() != 3 {
		t.Errorf("expected no new events on same day, got %d", store.eventCount())
	}

	// First cycle on the next day writes another batch.
	w.now = func() time.Time { return day1.Add(24 * time.Hour) }
	w.runOnce(context.Background())
	if store.eventCount() != 6 {
		t.Errorf("expected 6 events after day rollover, got %d", store.eventCount())
	}

	// Three cycles, no refreshes beyond the matrix passes: the rollover
	// fed on the matrix's 24h stats.
	for _, id := range ids {
		if got := len(source.refreshes[id]); got != 3*len(types.Windows()) {
			t.Errorf("monitor %s: expected %d refreshes across 3 cycles, got %d", id, 3*len(types.Windows()), got)
		}
	}

	for _, ev := range store.events {
		if ev.Type != types.EventDailyStats {
			t.Errorf("unexpected event type %s", ev.Type)
		}
		if ev.Metadata["uptime_percent"] != 99.5 {
			t.Errorf("unexpected uptime in metadata: %v", ev.Metadata["uptime_percent"])
		}
	}
}
