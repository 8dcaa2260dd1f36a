package store

import (
	"context"

	"github.com/nova-universe/pulse/pkg/types"
)

// =============================================================================
// HEALTH
// =============================================================================

// GetDatabaseSize returns the total size of the database in bytes.
func (s *Store) GetDatabaseSize(ctx context.Context) (int64, error) {
	var size int64
	err := s.pool.QueryRow(ctx, `
		SELECT pg_database_size(current_database())
	`).Scan(&size)
	return size, err
}

// GetPoolStats returns current connection pool statistics.
func (s *Store) GetPoolStats() types.PoolStats {
	stat := s.pool.Stat()
	return types.PoolStats{
		TotalConnections:    stat.TotalConns(),
		IdleConnections:     stat.IdleConns(),
		AcquiredConnections: stat.AcquiredConns(),
		MaxConnections:      stat.MaxConns(),
	}
}
