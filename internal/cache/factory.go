package cache

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/restcore/internal/config"
)

// NewStore creates a store based on the cache configuration. A disabled
// cache returns a nil store.
//
// Backend options:
// - "memory": in-process store (default for single instance)
// - "redis": Redis-compatible store shared by every instance
func NewStore(cfg config.CacheConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Provider {
	case "memory", "":
		log.Info().Msg("Using in-memory response cache (single instance mode)")
		return NewMemoryStore(cfg.KeyPrefix, 0), nil

	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis_url is required for redis cache provider")
		}
		log.Info().Msg("Using Redis-compatible response cache")
		store, err := NewRedisStore(cfg.RedisURL, cfg.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown cache provider: %s (valid options: memory, redis)", cfg.Provider)
	}
}
