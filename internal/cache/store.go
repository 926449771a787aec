// Package cache provides pluggable stores for cached list responses.
package cache

import (
	"context"
	"time"
)

// Store is the interface for response cache backends:
// - Memory: single instance deployments
// - Redis: shared cache across instances (works with Dragonfly, Redis, Valkey, KeyDB)
type Store interface {
	// Get returns the value stored under key. A missing or expired key
	// returns nil and no error.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Reset drops every key of this store.
	Reset(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}
