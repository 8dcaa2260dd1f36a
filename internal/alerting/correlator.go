// Package alerting decides whether status transitions escalate to the
// external on-call system.
//
// The correlator consumes events from the transition bus: genuine
// transitions plus down-streak confirmations. For each down streak it
// opens at most one incident, applying the monitor's policy chain
// (enabled, priority, debounce threshold, business hours). Recovery
// always attempts to close, regardless of the policy that gated opening,
// because an incident may have been opened manually or under a stricter
// historical policy.
//
// Sink delivery is fire-and-forget: failures are logged and counted,
// never retried here and never propagated to the ingestion path.
package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nova-universe/pulse/internal/events"
	"github.com/nova-universe/pulse/pkg/types"
)

// Registry is the monitor lookup surface the correlator needs.
type Registry interface {
	Get(monitorID uuid.UUID) (types.Monitor, bool)
}

// Config holds correlator tuning.
type Config struct {
	// DefaultMinDowntime applies when a monitor's policy leaves
	// MinDowntimeSeconds at zero.
	DefaultMinDowntime time.Duration

	// Timezone is the IANA zone for business-hours evaluation.
	Timezone string

	// SinkTimeout bounds a single outbound emission.
	SinkTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultMinDowntime: 5 * time.Minute,
		Timezone:           "UTC",
		SinkTimeout:        5 * time.Second,
	}
}

// Correlator turns transition events into incident signals.
type Correlator struct {
	registry Registry
	sink     IncidentSink
	config   Config
	location *time.Location
	logger   *slog.Logger

	// opened tracks monitors with an incident open for the current down
	// streak, so each streak escalates at most once. lastEvent is the
	// newest event instant handled per monitor; a transition arriving
	// behind it is a replay and must not reset the streak state.
	mu        sync.Mutex
	opened    map[uuid.UUID]bool
	lastEvent map[uuid.UUID]time.Time

	sinkFailures atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a correlator. Fails if the configured timezone is unknown.
func New(registry Registry, sink IncidentSink, cfg Config, logger *slog.Logger) (*Correlator, error) {
	if cfg.DefaultMinDowntime <= 0 {
		cfg.DefaultMinDowntime = 5 * time.Minute
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 5 * time.Second
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", tz, err)
	}

	return &Correlator{
		registry:  registry,
		sink:      sink,
		config:    cfg,
		location:  loc,
		logger:    logger.With("component", "alert_correlator"),
		opened:    make(map[uuid.UUID]bool),
		lastEvent: make(map[uuid.UUID]time.Time),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start begins consuming the subscription in a goroutine.
func (c *Correlator) Start(ctx context.Context, sub *events.Subscription) {
	c.wg.Add(1)
	go c.run(ctx, sub)
}

// Stop signals the consumer to stop and waits for it.
func (c *Correlator) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// SinkFailures reports how many emissions the sink rejected.
func (c *Correlator) SinkFailures() int64 {
	return c.sinkFailures.Load()
}

func (c *Correlator) run(ctx context.Context, sub *events.Subscription) {
	defer c.wg.Done()
	c.logger.Info("alert correlator started", "timezone", c.location.String())

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			c.handle(ctx, ev)
		}
	}
}

func (c *Correlator) handle(ctx context.Context, ev types.TransitionEvent) {
	monitor, ok := c.registry.Get(ev.MonitorID)
	if !ok {
		// Monitor deleted between ingest and correlation.
		return
	}
	c.OnTransition(ctx, monitor, ev)
}

// OnTransition evaluates one bus event against the monitor's policy.
func (c *Correlator) OnTransition(ctx context.Context, monitor types.Monitor, ev types.TransitionEvent) {
	switch ev.NewStatus {
	case types.StatusDown:
		c.handleDown(ctx, monitor, ev)
	case types.StatusUp:
		if ev.IsTransition() && ev.PreviousStatus == types.StatusDown {
			c.handleRecovery(ctx, monitor, ev)
		}
	}
}

func (c *Correlator) handleDown(ctx context.Context, monitor types.Monitor, ev types.TransitionEvent) {
	c.mu.Lock()
	if ev.IsTransition() {
		if ev.At.Before(c.lastEvent[monitor.ID]) {
			// Replayed transition behind a newer event: the streak it
			// started is already being tracked.
			c.mu.Unlock()
			return
		}
		// New down streak.
		c.opened[monitor.ID] = false
	}
	if c.lastEvent[monitor.ID].Before(ev.At) {
		c.lastEvent[monitor.ID] = ev.At
	}
	alreadyOpen := c.opened[monitor.ID]
	c.mu.Unlock()

	if alreadyOpen || !c.shouldOpen(monitor, ev) {
		return
	}

	downtime := ev.At.Sub(ev.StatusSince)
	inc := types.OpenIncident{
		MonitorID:          monitor.ID,
		ExternalServiceRef: monitor.AlertPolicy.ExternalServiceRef,
		Summary:            fmt.Sprintf("%s is down", monitor.Name),
		Details: fmt.Sprintf("Monitor %s (%s) has been down for %s. %s",
			monitor.Name, monitor.Type, downtime.Round(time.Second), ev.Message),
		OpenedAt: ev.At,
	}

	emitCtx, cancel := context.WithTimeout(ctx, c.config.SinkTimeout)
	defer cancel()
	if err := c.sink.Open(emitCtx, inc); err != nil {
		c.sinkFailures.Add(1)
		c.logger.Error("incident sink unavailable, open signal dropped",
			"monitor_id", monitor.ID,
			"error", err,
		)
		// Still marked open: the streak's escalation attempt is spent.
	}

	c.mu.Lock()
	c.opened[monitor.ID] = true
	c.mu.Unlock()

	c.logger.Info("incident opened",
		"monitor_id", monitor.ID,
		"monitor", monitor.Name,
		"downtime", downtime.Round(time.Second),
		"priority", monitor.AlertPolicy.Priority,
	)
}

// shouldOpen walks the policy chain in order, short-circuiting on the
// first rule that decides.
func (c *Correlator) shouldOpen(monitor types.Monitor, ev types.TransitionEvent) bool {
	policy := monitor.AlertPolicy

	if !policy.Enabled {
		return false
	}
	if policy.Priority == types.PriorityCritical {
		return true
	}
	if ev.At.Sub(ev.StatusSince) >= c.minDowntime(policy) {
		return true
	}
	if policy.BusinessHoursOnly {
		return c.withinBusinessHours(ev.At)
	}
	return false
}

func (c *Correlator) minDowntime(policy types.AlertPolicy) time.Duration {
	if policy.MinDowntimeSeconds > 0 {
		return time.Duration(policy.MinDowntimeSeconds) * time.Second
	}
	return c.config.DefaultMinDowntime
}

// withinBusinessHours reports whether t falls in Mon-Fri 09:00-17:00 in
// the configured timezone. DST follows tzdata wall-clock semantics.
func (c *Correlator) withinBusinessHours(t time.Time) bool {
	local := t.In(c.location)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return local.Hour() >= 9 && local.Hour() < 17
}

func (c *Correlator) handleRecovery(ctx context.Context, monitor types.Monitor, ev types.TransitionEvent) {
	c.mu.Lock()
	delete(c.opened, monitor.ID)
	if c.lastEvent[monitor.ID].Before(ev.At) {
		c.lastEvent[monitor.ID] = ev.At
	}
	c.mu.Unlock()

	inc := types.CloseIncident{
		MonitorID: monitor.ID,
		Reason:    "recovered",
		ClosedAt:  ev.At,
	}

	emitCtx, cancel := context.WithTimeout(ctx, c.config.SinkTimeout)
	defer cancel()
	if err := c.sink.Close(emitCtx, inc); err != nil {
		c.sinkFailures.Add(1)
		c.logger.Error("incident sink unavailable, close signal dropped",
			"monitor_id", monitor.ID,
			"error", err,
		)
		return
	}

	c.logger.Info("incident closed",
		"monitor_id", monitor.ID,
		"monitor", monitor.Name,
	)
}
