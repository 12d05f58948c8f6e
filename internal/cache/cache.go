// Package cache provides a get-or-fetch TTL cache backed by Redis, falling back
// to process memory when Redis is not configured or unreachable.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores JSON-encodable values under string keys with a TTL.
type Cache interface {
	// Get decodes the value at key into dest. It reports false on a miss.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Delete removes keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int, error)
	// DeletePattern removes keys matching a glob such as "analysis:*:*:42".
	DeletePattern(ctx context.Context, pattern string) (int, error)
	Stats(ctx context.Context) Stats
	Close() error
}

// Stats describes the cache backend for the cache-stats endpoint.
type Stats struct {
	Type       string  `json:"type"`
	Connected  bool    `json:"connected"`
	TotalKeys  int64   `json:"total_keys"`
	HitRate    float64 `json:"hit_rate"`
	UsedMemory string  `json:"used_memory,omitempty"`
}

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("cache closed")

const pingTimeout = 3 * time.Second

// New connects to Redis at url. When url is empty or the server does not
// answer a PING, an in-memory cache is returned instead.
func New(ctx context.Context, url string, logger *slog.Logger) Cache {
	if url == "" {
		logger.Info("redis not configured, using in-memory cache")
		return NewMemoryCache()
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		opt = &redis.Options{Addr: url}
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, falling back to in-memory cache", "addr", opt.Addr, "error", err)
		_ = client.Close()
		return NewMemoryCache()
	}

	logger.Info("connected to redis", "addr", opt.Addr, "db", opt.DB)
	return NewRedisCache(client)
}
