package alerting

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

// mockSink records incident signals.
type mockSink struct {
	mu       sync.Mutex
	opens    []types.OpenIncident
	closes   []types.CloseIncident
	failOpen bool
}

func (m *mockSink) Open(ctx context.Context, inc types.OpenIncident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOpen {
		return errors.New("sink down")
	}
	m.opens = append(m.opens, inc)
	return nil
}

func (m *mockSink) Close(ctx context.Context, inc types.CloseIncident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes = append(m.closes, inc)
	return nil
}

func (m *mockSink) openCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.opens)
}

func (m *mockSink) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.closes)
}

// mockRegistry implements Registry.
type mockRegistry struct {
	monitors map[uuid.UUID]types.Monitor
}

func (r *mockRegistry) Get(monitorID uuid.UUID) (types.Monitor, bool) {
	m, ok := r.monitors[monitorID]
	return m, ok
}

func newTestCorrelator(t *testing.T, sink IncidentSink, monitors ...types.Monitor) *Correlator {
	t.Helper()
	reg := &mockRegistry{monitors: make(map[uuid.UUID]types.Monitor)}
	for _, m := range monitors {
		reg.monitors[m.ID] = m
	}
	c, err := New(reg, sink, DefaultConfig(), testLogger())
	if err != nil {
		t.Fatalf("creating correlator: %v", err)
	}
	return c
}

func normalMonitor(minDowntimeSeconds int) types.Monitor {
	return types.Monitor{
		ID:   uuid.New(),
		Name: "checkout-api",
		Type: "http",
		AlertPolicy: types.AlertPolicy{
			Enabled:            true,
			Priority:           types.PriorityNormal,
			MinDowntimeSeconds: minDowntimeSeconds,
		},
	}
}

func downEvent(m types.Monitor, previous types.Status, at, since time.Time) types.TransitionEvent {
	return types.TransitionEvent{
		MonitorID:      m.ID,
		PreviousStatus: previous,
		NewStatus:      types.StatusDown,
		At:             at,
		StatusSince:    since,
	}
}

func upEvent(m types.Monitor, at time.Time) types.TransitionEvent {
	return types.TransitionEvent{
		MonitorID:      m.ID,
		PreviousStatus: types.StatusDown,
		NewStatus:      types.StatusUp,
		At:             at,
		StatusSince:    at,
	}
}

// A normal-priority monitor with a 300s threshold: the down transition
// itself does not escalate, the confirmation that crosses the threshold
// does, and later confirmations in the same streak do not re-escalate.
func TestDebounce_OpensOncePerStreak(t *testing.T) {
	m := normalMonitor(300)
	sink := &mockSink{}
	c := newTestCorrelator(t, sink, m)
	ctx := context.Background()

	base := time.Now()

	// t=0: transition to down. Downtime 0, below threshold.
	c.OnTransition(ctx, m, downEvent(m, types.StatusUp, base, base))
	if sink.openCount() != 0 {
		t.Fatalf("expected no incident before threshold, got %d", sink.openCount())
	}

	// t=100: confirmation, still below threshold.
	c.OnTransition(ctx, m, downEvent(m, types.StatusDown, base.Add(100*time.Second), base))
	if sink.openCount() != 0 {
		t.Fatalf("expected no incident at 100s, got %d", sink.openCount())
	}

	// t=400: confirmation crosses 300s. Exactly one open.
	c.OnTransition(ctx, m, downEvent(m, types.StatusDown, base.Add(400*time.Second), base))
	if sink.openCount() != 1 {
		t.Fatalf("expected 1 incident at 400s, got %d", sink.openCount())
	}

	// t=500: still down, no second open for the same streak.
	c.OnTransition(ctx, m, downEvent(m, types.StatusDown, base.Add(500*time.Second), base))
	if sink.openCount() != 1 {
		t.Fatalf("expected no re-escalation, got %d", sink.openCount())
	}

	// Recovery closes.
	c.OnTransition(ctx, m, upEvent(m, base.Add(600*time.Second)))
	if sink.closeCount() != 1 {
		t.Fatalf("expected 1 close, got %d", sink.closeCount())
	}
}

// Bus reordering can replay a down transition behind confirmations from
// the same streak. The stale transition must not reset the streak state:
// one streak still means at most one open.
func TestDebounce_LateTransitionDoesNotReopenStreak(t *testing.T) {
	m := normalMonitor(300)
	sink := &mockSink{}
	c := newTestCorrelator(t, sink, m)
	ctx := context.Background()

	base := time.Now()

	// The confirmation that crosses the threshold arrives first and opens.
	c.OnTransition(ctx, m, downEvent(m, types.StatusDown, base.Add(400*time.Second), base))
	if sink.openCount() != 1 {
		t.Fatalf("expected 1 incident at 400s, got %d", sink.openCount())
	}

	// The transition that started the streak straggles in afterwards.
	c.OnTransition(ctx, m, downEvent(m, types.StatusUp, base, base))

	// The next confirmation must not escalate a second time.
	c.OnTransition(ctx, m, downEvent(m, types.StatusDown, base.Add(500*time.Second), base))
	if sink.openCount() != 1 {
		t.Errorf("expected at most 1 open per streak, got %d", sink.openCount())
	}

	// Recovery still closes the streak.
	c.OnTransition(ctx, m, upEvent(m, base.Add(600*time.Second)))
	if sink.closeCount() != 1 {
		t.Errorf("expected 1 close, got %d", sink.closeCount())
	}
}

func TestDebounce_NewStreakEscalatesAgain(t *testing.T) {
	m := normalMonitor(300)
	sink := &mockSink{}
	c := newTestCorrelator(t, sink, m)
	ctx := context.Background()

	base := time.Now()
	c.OnTransition(ctx, m, downEvent(m, types.StatusUp, base, base))
	c.OnTransition(ctx, m, downEvent(m, types.StatusDown, base.Add(400*time.Second), base))
	c.OnTransition(ctx, m, upEvent(m, base.Add(500*time.Second)))

	// Second streak.
	second := base.Add(1000 * time.Second)
	c.OnTransition(ctx, m, downEvent(m, types.StatusUp, second, second))
	c.OnTransition(ctx, m, downEvent(m, types.StatusDown, second.Add(400*time.Second), second))

	if sink.openCount() != 2 {
		t.Errorf("expected one open per streak, got %d", sink.openCount())
	}
	if sink.closeCount() != 1 {
		t.Errorf("expected 1 close, got %d", sink.closeCount())
	}
}

func TestCritical_OpensImmediately(t *testing.T) {
	m := normalMonitor(300)
	m.AlertPolicy.Priority = types.PriorityCritical
	sink := &mockSink{}
	c := newTestCorrelator(t, sink, m)

	base := time.Now()
	c.OnTransition(context.Background(), m, downEvent(m, types.StatusUp, base, base))
	if sink.openCount() != 1 {
		t.Errorf("critical monitor should escalate on the transition, got %d opens", sink.openCount())
	}
}

func TestDisabledPolicy_NeverOpens(t *testing.T) {
	m := normalMonitor(0)
	m.AlertPolicy.Enabled = false
	sink := &mockSink{}
	c := newTestCorrelator(t, sink, m)
	ctx := context.Background()

	base := time.Now()
	c.OnTransition(ctx, m, downEvent(m, types.StatusUp, base, base))
	c.OnTransition(ctx, m, downEvent(m, types.StatusDown, base.Add(time.Hour), base))
	if sink.openCount() != 0 {
		t.Errorf("disabled policy escalated: %d opens", sink.openCount())
	}
}

func TestDisabledPolicy_RecoveryStillCloses(t *testing.T) {
	m := normalMonitor(0)
	m.AlertPolicy.Enabled = false
	sink := &mockSink{}
	c := newTestCorrelator(t, sink, m)
	ctx := context.Background()

	base := time.Now()
	c.OnTransition(ctx, m, downEvent(m, types.StatusUp, base, base))
	c.OnTransition(ctx, m, upEvent(m, base.Add(time.Minute)))
	if sink.closeCount() != 1 {
		t.Errorf("recovery must always close, got %d closes", sink.closeCount())
	}
}

func TestBusinessHours(t *testing.T) {
	// Monday 2026-01-05.
	businessTime := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"weekday morning", businessTime, true},
		{"weekday before nine", time.Date(2026, 1, 5, 8, 59, 0, 0, time.UTC), false},
		{"weekday after five", time.Date(2026, 1, 5, 17, 0, 0, 0, time.UTC), false},
		{"saturday", time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC), false},
		{"sunday", time.Date(2026, 1, 11, 10, 0, 0, 0, time.UTC), false},
	}

	m := normalMonitor(300)
	m.AlertPolicy.BusinessHoursOnly = true

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sink := &mockSink{}
			c := newTestCorrelator(t, sink, m)

			// Below the downtime threshold, so the business-hours rule is
			// what decides.
			c.OnTransition(context.Background(), m, downEvent(m, types.StatusUp, tc.at, tc.at))
			opened := sink.openCount() == 1
			if opened != tc.want {
				t.Errorf("at %v: opened=%v, want %v", tc.at, opened, tc.want)
			}
		})
	}
}

func TestSinkFailure_SpendsEscalation(t *testing.T) {
	m := normalMonitor(60)
	sink := &mockSink{failOpen: true}
	c := newTestCorrelator(t, sink, m)
	ctx := context.Background()

	base := time.Now()
	c.OnTransition(ctx, m, downEvent(m, types.StatusUp, base, base))
	c.OnTransition(ctx, m, downEvent(m, types.StatusDown, base.Add(2*time.Minute), base))

	if c.SinkFailures() != 1 {
		t.Errorf("expected 1 sink failure, got %d", c.SinkFailures())
	}

	// The streak's escalation is spent even though delivery failed.
	sink.mu.Lock()
	sink.failOpen = false
	sink.mu.Unlock()
	c.OnTransition(ctx, m, downEvent(m, types.StatusDown, base.Add(3*time.Minute), base))
	if sink.openCount() != 0 {
		t.Errorf("expected no retry within the streak, got %d opens", sink.openCount())
	}
}

func TestNew_InvalidTimezone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Not/AZone"
	_, err := New(&mockRegistry{}, &mockSink{}, cfg, testLogger())
	if err == nil {
		t.Error("expected error for unknown timezone")
	}
}
