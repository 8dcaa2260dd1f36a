package tracker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nova-universe/pulse/pkg/types"
)

// persistOp is one durable write waiting in the write-behind queue.
type persistOp struct {
	heartbeat *types.Heartbeat
	event     *types.AnalyticsEvent

	// lossFollowup marks the persistence_lost event itself, so its own
	// failure cannot emit another one.
	lossFollowup bool
}

// writer drains the tracker's persistence queue. Each drain pass gathers
// whatever is already queued and bulk-writes the heartbeats in one COPY.
// Writes are retried a bounded number of times; exhaustion is surfaced as
// a persistence-lost counter and a persistence_lost analytics event, never
// as an error to the ingest caller. The live status view stays available
// even when the store is degraded.
type writer struct {
	store  Store
	logger *slog.Logger

	queue       chan persistOp
	batchSize   int
	maxAttempts int
	backoff     time.Duration

	lost    atomic.Int64
	dropped atomic.Int64

	closeMu sync.RWMutex
	closed  bool

	wg sync.WaitGroup
}

func newWriter(store Store, cfg Config, logger *slog.Logger) *writer {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 1
	}
	return &writer{
		store:       store,
		logger:      logger.With("component", "tracker_writer"),
		queue:       make(chan persistOp, cfg.QueueSize),
		batchSize:   batch,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.RetryBackoff,
	}
}

// start launches the drain goroutines.
func (w *writer) start(workers int) {
	w.wg.Add(workers)
	for range workers {
		go w.drain()
	}
}

// stop closes the queue and waits for pending writes to finish.
func (w *writer) stop() {
	w.closeMu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.closeMu.Unlock()
	w.wg.Wait()
}

// enqueue hands an op to the queue without blocking. A full or closed
// queue drops the op with the same accounting as a failed write.
func (w *writer) enqueue(op persistOp) {
	w.closeMu.RLock()
	defer w.closeMu.RUnlock()
	if w.closed {
		w.lost.Add(1)
		w.logger.Error("persistence queue closed, write dropped",
			"lost_total", w.lost.Load(),
		)
		return
	}
	select {
	case w.queue <- op:
	default:
		w.dropped.Add(1)
		w.lost.Add(1)
		w.logger.Error("persistence queue full, write dropped",
			"queue_size", cap(w.queue),
			"lost_total", w.lost.Load(),
		)
	}
}

func (w *writer) drain() {
	defer w.wg.Done()
	for op := range w.queue {
		w.persist(w.fill(op))
	}
}

// fill gathers whatever else is already queued, up to the batch size, so a
// backed-up queue drains through the bulk COPY path.
func (w *writer) fill(first persistOp) []persistOp {
	batch := []persistOp{first}
	for len(batch) < w.batchSize {
		select {
		case op, ok := <-w.queue:
			if !ok {
				return batch
			}
			batch = append(batch, op)
		default:
			return batch
		}
	}
	return batch
}

func (w *writer) persist(batch []persistOp) {
	var heartbeats []types.Heartbeat
	for _, op := range batch {
		if op.heartbeat != nil {
			heartbeats = append(heartbeats, *op.heartbeat)
		}
	}
	if len(heartbeats) > 0 {
		w.withRetry("heartbeat", len(heartbeats), false, func(ctx context.Context) error {
			if len(heartbeats) == 1 {
				return w.store.AppendHeartbeat(ctx, heartbeats[0])
			}
			return w.store.AppendHeartbeats(ctx, heartbeats)
		})
	}
	for _, op := range batch {
		if op.event == nil {
			continue
		}
		ev := *op.event
		w.withRetry("analytics_event", 1, op.lossFollowup, func(ctx context.Context) error {
			return w.store.AppendAnalyticsEvent(ctx, ev)
		})
	}
}

// withRetry runs one durable write with the configured retry budget. Final
// failure moves the records onto the lost counter and, unless the write
// was the loss event itself, queues a persistence_lost analytics event for
// operators to reconcile against.
func (w *writer) withRetry(kind string, records int, lossFollowup bool, write func(ctx context.Context) error) {
	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		lastErr = write(ctx)
		cancel()
		if lastErr == nil {
			return
		}
		if attempt < w.maxAttempts {
			time.Sleep(w.backoff)
		}
	}

	w.lost.Add(int64(records))
	w.logger.Error("durable write failed after retry budget",
		"kind", kind,
		"records", records,
		"attempts", w.maxAttempts,
		"lost_total", w.lost.Load(),
		"error", lastErr,
	)
	if lossFollowup {
		return
	}
	ev := types.NewAnalyticsEvent(types.EventPersistenceLost, nil, map[string]any{
		"kind":  kind,
		"count": records,
		"error": lastErr.Error(),
	}, time.Now().UTC())
	w.enqueue(persistOp{event: &ev, lossFollowup: true})
}

// persistenceLost reports how many durable writes were abandoned.
func (w *writer) persistenceLost() int64 {
	return w.lost.Load()
}
