// Package events provides the typed transition bus connecting the heartbeat
// tracker to its consumers.
//
// The tracker publishes one TransitionEvent per genuine status change.
// Consumers (alert correlation, notification dispatch) each own a bounded
// queue; a slow or crashed consumer never blocks ingestion. When a
// subscriber's queue is full the event is dropped and counted. That loss is
// deliberate: live status tracking outranks completeness of downstream
// side effects.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nova-universe/pulse/pkg/types"
)

// Subscription is one consumer's bounded view of the bus.
type Subscription struct {
	name    string
	ch      chan types.TransitionEvent
	dropped atomic.Int64
}

// C returns the receive channel. Closed when the bus closes.
func (s *Subscription) C() <-chan types.TransitionEvent {
	return s.ch
}

// Name returns the subscriber name used in logs.
func (s *Subscription) Name() string {
	return s.name
}

// Dropped returns how many events this subscriber has missed.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Bus fans transition events out to subscribers without blocking the
// publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   []*Subscription
	closed bool

	depth  int
	logger *slog.Logger
}

// NewBus creates a bus whose subscribers each buffer up to depth events.
func NewBus(depth int, logger *slog.Logger) *Bus {
	return &Bus{
		depth:  depth,
		logger: logger.With("component", "transition_bus"),
	}
}

// Subscribe registers a named consumer. Must be called before events of
// interest are published; there is no replay.
func (b *Bus) Subscribe(name string) *Subscription {
	sub := &Subscription{
		name: name,
		ch:   make(chan types.TransitionEvent, b.depth),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs = append(b.subs, sub)
	return sub
}

// Publish delivers the event to every subscriber that has queue space.
// Never blocks.
func (b *Bus) Publish(ev types.TransitionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
			b.logger.Warn("subscriber queue full, transition event dropped",
				"subscriber", sub.name,
				"monitor_id", ev.MonitorID,
				"new_status", ev.NewStatus,
				"dropped_total", sub.dropped.Load(),
			)
		}
	}
}

// TotalDropped sums the drop counters across all subscribers.
func (b *Bus) TotalDropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total int64
	for _, sub := range b.subs {
		total += sub.dropped.Load()
	}
	return total
}

// Close closes every subscriber channel. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
}
