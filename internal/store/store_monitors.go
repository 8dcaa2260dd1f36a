package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nova-universe/pulse/pkg/types"
)

// =============================================================================
// MONITORS
// =============================================================================

// UpsertMonitor creates a monitor or replaces its metadata.
func (s *Store) UpsertMonitor(ctx context.Context, m *types.Monitor) error {
	policy, err := json.Marshal(m.AlertPolicy)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO monitors (id, tenant_id, name, monitor_type, alert_policy, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			name = EXCLUDED.name,
			monitor_type = EXCLUDED.monitor_type,
			alert_policy = EXCLUDED.alert_policy,
			updated_at = NOW()
	`, m.ID, m.TenantID, m.Name, m.Type, policy)
	return err
}

// GetMonitor retrieves a monitor by id, or nil when it does not exist.
func (s *Store) GetMonitor(ctx context.Context, id uuid.UUID) (*types.Monitor, error) {
	var m types.Monitor
	var policy []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, monitor_type, alert_policy, created_at, updated_at
		FROM monitors WHERE id = $1
	`, id).Scan(&m.ID, &m.TenantID, &m.Name, &m.Type, &policy, &m.CreatedAt, &m.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	json.Unmarshal(policy, &m.AlertPolicy)
	return &m, nil
}

// ListMonitors returns all monitors, optionally filtered by tenant.
func (s *Store) ListMonitors(ctx context.Context, tenantID string) ([]types.Monitor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, name, monitor_type, alert_policy, created_at, updated_at
		FROM monitors
		WHERE $1 = '' OR tenant_id = $1
		ORDER BY name, id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var monitors []types.Monitor
	for rows.Next() {
		var m types.Monitor
		var policy []byte
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Name, &m.Type, &policy, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal(policy, &m.AlertPolicy)
		monitors = append(monitors, m)
	}
	return monitors, rows.Err()
}

// DeleteMonitor removes a monitor. Its heartbeats and events remain until
// retention catches up; history stays queryable for reporting.
func (s *Store) DeleteMonitor(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM monitors WHERE id = $1`, id)
	return err
}