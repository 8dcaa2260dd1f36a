package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nova-universe/pulse/pkg/types"
)

// =============================================================================
// ANALYTICS EVENTS
// =============================================================================

// AppendAnalyticsEvent durably records one analytics event.
func (s *Store) AppendAnalyticsEvent(ctx context.Context, ev types.AnalyticsEvent) error {
	var metadata []byte
	if ev.Metadata != nil {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return err
		}
		metadata = b
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO analytics_events (id, event_type, monitor_id, metadata, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, ev.Type, ev.MonitorID, metadata, ev.RecordedAt)
	return err
}

// QueryAnalyticsEvents returns events of a type in [start, end), newest
// first. A nil monitorID matches all monitors.
func (s *Store) QueryAnalyticsEvents(ctx context.Context, eventType types.EventType, monitorID *uuid.UUID, start, end time.Time) ([]types.AnalyticsEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_type, monitor_id, metadata, recorded_at
		FROM analytics_events
		WHERE event_type = $1
		  AND ($2::uuid IS NULL OR monitor_id = $2)
		  AND recorded_at >= $3 AND recorded_at < $4
		ORDER BY recorded_at DESC
	`, eventType, monitorID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evs []types.AnalyticsEvent
	for rows.Next() {
		var ev types.AnalyticsEvent
		var metadata []byte
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.MonitorID, &metadata, &ev.RecordedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			json.Unmarshal(metadata, &ev.Metadata)
		}
		evs = append(evs, ev)
	}
	return evs, rows.Err()
}

// CountEventsSince returns how many analytics events were recorded after
// the given instant, across all monitors and types.
func (s *Store) CountEventsSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM analytics_events WHERE recorded_at >= $1
	`, since).Scan(&count)
	return count, err
}

// DeleteAnalyticsEventsBefore prunes analytics events older than the
// cutoff. Returns the number of rows removed.
func (s *Store) DeleteAnalyticsEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM analytics_events WHERE recorded_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
