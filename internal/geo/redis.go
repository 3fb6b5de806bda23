package geo

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/vigil/internal/audit"
)

// redisKeyPrefix namespaces geolocation cache keys.
const redisKeyPrefix = "vigil:geo:"

// RedisCache is a Redis-backed location cache so multiple instances
// share TTL entries. Expiry is enforced by Redis itself via key TTLs.
// Any Redis failure is reported as a cache miss; the resolver's quota
// and provider path take over.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache creates a cache over an existing Redis client.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

// cachedLocation is the wire form of a cache entry. Resolved
// distinguishes "cached nil" from a missing key.
type cachedLocation struct {
	Resolved bool            `json:"resolved"`
	Location *audit.Location `json:"location,omitempty"`
}

// Get returns the cached location for an IP.
func (c *RedisCache) Get(ctx context.Context, ip string) (*audit.Location, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+ip).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Debug("geo cache read failed", "ip", ip, "error", err)
		return nil, false
	}

	var entry cachedLocation
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Debug("geo cache entry corrupt", "ip", ip, "error", err)
		return nil, false
	}
	if !entry.Resolved {
		return nil, false
	}
	return entry.Location, true
}

// Set stores a resolved location with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, ip string, loc *audit.Location) {
	raw, err := json.Marshal(cachedLocation{Resolved: true, Location: loc})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+ip, raw, c.ttl).Err(); err != nil {
		c.logger.Debug("geo cache write failed", "ip", ip, "error", err)
	}
}
