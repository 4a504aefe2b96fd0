// Package cache defines the result-cache interface used for permission
// decisions and other small, recomputable values.
package cache

import (
	"context"
	"time"
)

// Cache stores recomputable values with a TTL.
type Cache interface {
	// Get retrieves a value. Returns the value and true if present and not
	// expired, or nil and false otherwise.
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores a value with the given TTL. A zero TTL uses the cache's
	// default.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Close releases resources held by the cache.
	Close() error

	// Metrics returns a point-in-time snapshot of cache statistics.
	Metrics() Metrics
}

// Metrics holds cache statistics.
type Metrics struct {
	Hits        uint64
	Misses      uint64
	KeysAdded   uint64
	KeysEvicted uint64
	KeysCurrent int
}

// HitRate returns the fraction of lookups served from cache, in [0,1].
func (m Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}
