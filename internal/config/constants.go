// Package config provides configuration for the correlation engine.
//
// This file centralizes fixed tunables so they are easy to find, modify,
// and reference from tests.
package config

import "time"

// Query bounds for the aggregation read path.
const (
	// QueryTimeout bounds a single event-store range query. Past this the
	// aggregator degrades to its cached value rather than blocking.
	QueryTimeout = 5 * time.Second

	// SinkTimeout bounds a single outbound incident emission.
	SinkTimeout = 5 * time.Second
)

// Cache freshness TTLs. Values older than these are considered stale but
// remain servable when a recompute is unavailable.
const (
	// CacheTTLUptimeStats is the freshness TTL for per-monitor window
	// stats. Matches the smallest supported window.
	CacheTTLUptimeStats = time.Hour

	// CacheTTLSystemStats is the freshness TTL for system-wide counts.
	CacheTTLSystemStats = 30 * time.Second

	// CacheHardExpiry is the physical Redis expiry on cached stats.
	// Long on purpose: stale entries back the degraded read path.
	CacheHardExpiry = 24 * time.Hour
)

// Async persistence tuning for the heartbeat tracker's write-behind queue.
const (
	// PersistQueueSize is the bounded depth of the write-behind queue.
	PersistQueueSize = 4096

	// PersistWorkers is how many goroutines drain the queue.
	PersistWorkers = 4

	// PersistBatchSize caps how many queued heartbeats one drain pass
	// bulk-writes in a single COPY.
	PersistBatchSize = 64

	// PersistMaxAttempts is the retry budget for one durable write.
	PersistMaxAttempts = 3

	// PersistRetryBackoff is the pause between write attempts.
	PersistRetryBackoff = 250 * time.Millisecond
)

// Transition bus sizing.
const (
	// TransitionBusDepth is the bounded per-subscriber queue depth.
	// Publishes drop (with accounting) when a subscriber falls behind.
	TransitionBusDepth = 1024
)

// SystemStatsEventWindow is the trailing window for the recent-event count
// included in system-wide stats.
const SystemStatsEventWindow = time.Hour

// SnapshotShards is the number of lock shards for the tracker's status
// snapshot map. Power of two so the hash mixes cheaply.
const SnapshotShards = 32
