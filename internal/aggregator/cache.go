package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nova-universe/pulse/pkg/types"
)

const (
	keyPrefix = "pulse:stats:"

	// hardExpiry is the physical Redis expiry on cached stats. Long on
	// purpose: entries past their freshness TTL back the degraded read
	// path when the store cannot answer.
	hardExpiry = 24 * time.Hour
)

// Cache stores computed stats. Entries carry their own ComputedAt stamp;
// freshness is judged by the aggregator, not the cache.
type Cache interface {
	GetUptime(ctx context.Context, monitorID uuid.UUID, window types.Window) (*types.UptimeStats, error)
	SetUptime(ctx context.Context, stats types.UptimeStats) error
	GetSystem(ctx context.Context) (*types.SystemStats, error)
	SetSystem(ctx context.Context, stats types.SystemStats) error
}

// RedisCache is the Redis-backed Cache used in production.
type RedisCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(redisURL string, logger *slog.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisCache{
		client: client,
		logger: logger.With("component", "stats_cache"),
	}, nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func uptimeKey(monitorID uuid.UUID, window types.Window) string {
	return keyPrefix + "uptime:" + monitorID.String() + ":" + string(window)
}

const systemKey = keyPrefix + "system"

// GetUptime returns the cached stats for a monitor and window, or nil on
// a miss.
func (c *RedisCache) GetUptime(ctx context.Context, monitorID uuid.UUID, window types.Window) (*types.UptimeStats, error) {
	var stats types.UptimeStats
	found, err := c.getJSON(ctx, uptimeKey(monitorID, window), &stats)
	if err != nil || !found {
		return nil, err
	}
	return &stats, nil
}

// SetUptime stores computed stats for a monitor and window.
func (c *RedisCache) SetUptime(ctx context.Context, stats types.UptimeStats) error {
	return c.setJSON(ctx, uptimeKey(stats.MonitorID, stats.Window), stats)
}

// GetSystem returns the cached system-wide stats, or nil on a miss.
func (c *RedisCache) GetSystem(ctx context.Context) (*types.SystemStats, error) {
	var stats types.SystemStats
	found, err := c.getJSON(ctx, systemKey, &stats)
	if err != nil || !found {
		return nil, err
	}
	return &stats, nil
}

// SetSystem stores computed system-wide stats.
func (c *RedisCache) SetSystem(ctx context.Context, stats types.SystemStats) error {
	return c.setJSON(ctx, systemKey, stats)
}

func (c *RedisCache) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil // cache miss
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, hardExpiry).Err()
}
