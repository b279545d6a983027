package state

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"binwatch/internal/config"
	"binwatch/internal/logger"
	"binwatch/internal/metrics"
	"binwatch/internal/storage"
)

const keyPrefix = "binwatch:setting:"

// NewRedisClient builds a client from config and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// CachedSettings is a read-through, write-through redis cache in front of a
// SettingsStore. Redis failures degrade to the backing store.
type CachedSettings struct {
	next   storage.SettingsStore
	client *redis.Client
	ttl    time.Duration
}

// NewCachedSettings wraps next with a redis cache. ttl <= 0 caches without expiry.
func NewCachedSettings(next storage.SettingsStore, client *redis.Client, ttl time.Duration) *CachedSettings {
	if ttl < 0 {
		ttl = 0
	}
	return &CachedSettings{next: next, client: client, ttl: ttl}
}

// GetSetting serves from redis, falling back to the store on a miss
func (c *CachedSettings) GetSetting(ctx context.Context, key string) (string, bool, error) {
	log := logger.WithComponent("settings_cache")

	value, err := c.client.Get(ctx, keyPrefix+key).Result()
	switch {
	case err == nil:
		metrics.SettingsCacheTotal.WithLabelValues("hit").Inc()
		return value, true, nil
	case errors.Is(err, redis.Nil):
		metrics.SettingsCacheTotal.WithLabelValues("miss").Inc()
	default:
		metrics.SettingsCacheTotal.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("key", key).Msg("settings cache read failed")
	}

	value, found, err := c.next.GetSetting(ctx, key)
	if err != nil || !found {
		return value, found, err
	}

	if err := c.client.Set(ctx, keyPrefix+key, value, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("settings cache fill failed")
	}
	return value, true, nil
}

// SetSetting writes the store first, then refreshes the cache
func (c *CachedSettings) SetSetting(ctx context.Context, key, value string) error {
	if err := c.next.SetSetting(ctx, key, value); err != nil {
		return err
	}

	if err := c.client.Set(ctx, keyPrefix+key, value, c.ttl).Err(); err != nil {
		// a stale entry would outlive the write, so drop it
		log := logger.WithComponent("settings_cache")
		log.Warn().Err(err).Str("key", key).Msg("settings cache write failed")
		c.client.Del(ctx, keyPrefix+key)
	}
	return nil
}
