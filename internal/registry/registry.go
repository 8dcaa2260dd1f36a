// Package registry maintains the in-memory view of monitor metadata.
//
// The registry is read-heavy: every ingested heartbeat performs a lookup.
// Monitors are loaded from the store at startup and refreshed on a fixed
// interval; admin writes go through the registry so the cache never serves
// a monitor the store does not have.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nova-universe/pulse/pkg/types"
)

// Store is the persistence surface the registry needs.
type Store interface {
	GetMonitor(ctx context.Context, id uuid.UUID) (*types.Monitor, error)
	ListMonitors(ctx context.Context, tenantID string) ([]types.Monitor, error)
	UpsertMonitor(ctx context.Context, m *types.Monitor) error
	DeleteMonitor(ctx context.Context, id uuid.UUID) error
}

// Registry caches monitor metadata for the processing path.
type Registry struct {
	store  Store
	logger *slog.Logger

	mu       sync.RWMutex
	monitors map[uuid.UUID]types.Monitor

	refreshInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// New creates a registry. Call Load before serving lookups.
func New(store Store, refreshInterval time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		store:           store,
		logger:          logger.With("component", "registry"),
		monitors:        make(map[uuid.UUID]types.Monitor),
		refreshInterval: refreshInterval,
		stopCh:          make(chan struct{}),
	}
}

// Load replaces the cache with the store's current monitor set.
func (r *Registry) Load(ctx context.Context) error {
	monitors, err := r.store.ListMonitors(ctx, "")
	if err != nil {
		return fmt.Errorf("loading monitors: %w", err)
	}
	fresh := make(map[uuid.UUID]types.Monitor, len(monitors))
	for _, m := range monitors {
		fresh[m.ID] = m
	}

	r.mu.Lock()
	r.monitors = fresh
	r.mu.Unlock()

	r.logger.Info("monitor registry loaded", "monitors", len(fresh))
	return nil
}

// Start begins the periodic refresh loop in a goroutine.
func (r *Registry) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop signals the refresh loop to stop.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *Registry) run(ctx context.Context) {
	ticker := time.NewTicker(r.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := r.Load(ctx); err != nil {
				r.logger.Error("registry refresh failed", "error", err)
			}
		}
	}
}

// Get returns a monitor's metadata by id.
func (r *Registry) Get(monitorID uuid.UUID) (types.Monitor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.monitors[monitorID]
	return m, ok
}

// ListAll returns all monitors, optionally filtered by tenant, sorted by
// name then id for stable output.
func (r *Registry) ListAll(tenantID string) []types.Monitor {
	r.mu.RLock()
	out := make([]types.Monitor, 0, len(r.monitors))
	for _, m := range r.monitors {
		if tenantID != "" && m.TenantID != tenantID {
			continue
		}
		out = append(out, m)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// IDs returns every known monitor id.
func (r *Registry) IDs() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.monitors))
	for id := range r.monitors {
		ids = append(ids, id)
	}
	return ids
}

// Upsert writes a monitor through to the store and cache.
func (r *Registry) Upsert(ctx context.Context, m types.Monitor) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := r.store.UpsertMonitor(ctx, &m); err != nil {
		return fmt.Errorf("upserting monitor: %w", err)
	}

	r.mu.Lock()
	r.monitors[m.ID] = m
	r.mu.Unlock()
	return nil
}

// Delete removes a monitor from the store and cache.
func (r *Registry) Delete(ctx context.Context, monitorID uuid.UUID) error {
	if err := r.store.DeleteMonitor(ctx, monitorID); err != nil {
		return fmt.Errorf("deleting monitor: %w", err)
	}

	r.mu.Lock()
	delete(r.monitors, monitorID)
	r.mu.Unlock()
	return nil
}
