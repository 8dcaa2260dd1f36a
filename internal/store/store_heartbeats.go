package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nova-universe/pulse/pkg/types"
)

// =============================================================================
// HEARTBEATS
// =============================================================================

// AppendHeartbeat durably records one heartbeat.
func (s *Store) AppendHeartbeat(ctx context.Context, hb types.Heartbeat) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO heartbeats (monitor_id, status, recorded_at, latency_ms, message, important)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, hb.MonitorID, hb.Status, hb.RecordedAt, hb.LatencyMs, hb.Message, hb.Important)
	return err
}

// AppendHeartbeats bulk-inserts heartbeats via COPY. Used by the
// write-behind queue when it drains more than one pending record.
func (s *Store) AppendHeartbeats(ctx context.Context, hbs []types.Heartbeat) error {
	if len(hbs) == 0 {
		return nil
	}
	rows := make([][]any, len(hbs))
	for i, hb := range hbs {
		rows[i] = []any{hb.MonitorID, hb.Status, hb.RecordedAt, hb.LatencyMs, hb.Message, hb.Important}
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"heartbeats"},
		[]string{"monitor_id", "status", "recorded_at", "latency_ms", "message", "important"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// QueryHeartbeats returns all heartbeats for a monitor in [start, end),
// ordered by recorded_at then insertion order.
func (s *Store) QueryHeartbeats(ctx context.Context, monitorID uuid.UUID, start, end time.Time) ([]types.Heartbeat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, monitor_id, status, recorded_at, latency_ms, message, important
		FROM heartbeats
		WHERE monitor_id = $1 AND recorded_at >= $2 AND recorded_at < $3
		ORDER BY recorded_at, id
	`, monitorID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hbs []types.Heartbeat
	for rows.Next() {
		var hb types.Heartbeat
		if err := rows.Scan(&hb.ID, &hb.MonitorID, &hb.Status, &hb.RecordedAt, &hb.LatencyMs, &hb.Message, &hb.Important); err != nil {
			return nil, err
		}
		hbs = append(hbs, hb)
	}
	return hbs, rows.Err()
}

// LatestHeartbeat returns the most recent heartbeat for a monitor, or nil
// when none exists. Used to warm snapshots at startup.
func (s *Store) LatestHeartbeat(ctx context.Context, monitorID uuid.UUID) (*types.Heartbeat, error) {
	var hb types.Heartbeat
	err := s.pool.QueryRow(ctx, `
		SELECT id, monitor_id, status, recorded_at, latency_ms, message, important
		FROM heartbeats
		WHERE monitor_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`, monitorID).Scan(&hb.ID, &hb.MonitorID, &hb.Status, &hb.RecordedAt, &hb.LatencyMs, &hb.Message, &hb.Important)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &hb, nil
}

// StatusSinceBefore returns the start of the status streak the monitor was
// in at the given heartbeat, by walking back to the previous transition.
func (s *Store) StatusSinceBefore(ctx context.Context, monitorID uuid.UUID, before time.Time) (time.Time, error) {
	var since time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT recorded_at
		FROM heartbeats
		WHERE monitor_id = $1 AND recorded_at <= $2 AND important
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`, monitorID, before).Scan(&since)
	if err == pgx.ErrNoRows {
		return before, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return since, nil
}

// DeleteHeartbeatsBefore prunes heartbeats older than the cutoff. When
// excludeImportant is set, transition heartbeats are retained. Returns the
// number of rows removed.
func (s *Store) DeleteHeartbeatsBefore(ctx context.Context, cutoff time.Time, excludeImportant bool) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM heartbeats
		WHERE recorded_at < $1 AND (NOT $2 OR NOT important)
	`, cutoff, excludeImportant)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
