package apq

import (
	"context"
	"time"
)

// Cache stores query text by hash. Implementations must be safe for
// concurrent use; concurrent puts for one hash may race (last write wins).
type Cache interface {
	// Get returns (query, true, nil) on hit and ("", false, nil) on miss.
	Get(ctx context.Context, hash string, opts CacheOptions) (string, bool, error)
	Put(ctx context.Context, hash, query string, opts CacheOptions) error
}

// CacheOptions is passed through to providers untouched.
type CacheOptions struct {
	// TTL hints how long an entry should live. Zero leaves it to the provider.
	TTL   time.Duration
	Hints map[string]any
}
