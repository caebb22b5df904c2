package providers

import (
	"context"
	"time"
)

// CacheProvider defines the interface for caching derived results, such as
// drawing analyses keyed by blob identifier.
type CacheProvider interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with a TTL; a zero TTL means no expiry
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error
}
