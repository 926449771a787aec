package cache

import (
	"context"
	"time"

	"github.com/gofiber/storage/memory/v2"
)

// MemoryStore implements Store on an in-process fiber storage.
type MemoryStore struct {
	storage *memory.Storage
	prefix  string
}

// NewMemoryStore creates an in-memory store. gcInterval specifies how
// often expired entries are removed.
func NewMemoryStore(prefix string, gcInterval time.Duration) *MemoryStore {
	if gcInterval <= 0 {
		gcInterval = 10 * time.Minute
	}
	return &MemoryStore{
		storage: memory.New(memory.Config{GCInterval: gcInterval}),
		prefix:  prefix,
	}
}

// Get returns the value under key.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.storage.Get(s.prefix + key)
}

// Set stores value under key for ttl.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.storage.Set(s.prefix+key, value, ttl)
}

// Reset drops every entry.
func (s *MemoryStore) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.storage.Reset()
}

// Close stops the garbage collector.
func (s *MemoryStore) Close() error {
	return s.storage.Close()
}
