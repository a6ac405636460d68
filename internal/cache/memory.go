package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"

	"github.com/hanpama/apqgate/internal/apq"
)

// Memory is a process-local store bounded by the total size of cached query
// text. Entries may be evicted at any time; clients recover by resending the
// full query after PersistedQueryNotFound.
type Memory struct {
	c       *ristretto.Cache[string, string]
	ttl     time.Duration
	maxCost int64
}

var _ Store = (*Memory)(nil)

// NewMemory creates a store holding at most maxBytes of query text.
func NewMemory(maxBytes int64, ttl time.Duration) (*Memory, error) {
	if maxBytes <= 0 {
		return nil, errors.Errorf("cache: max size must be positive, got %d", maxBytes)
	}
	// Ten counters per expected entry, assuming ~1KiB documents.
	counters := maxBytes / 1024 * 10
	if counters < 10000 {
		counters = 10000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters:        counters,
		MaxCost:            maxBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "cache: create ristretto cache")
	}
	return &Memory{c: c, ttl: ttl, maxCost: maxBytes}, nil
}

func (m *Memory) Get(ctx context.Context, hash string, _ apq.CacheOptions) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	q, ok := m.c.Get(hash)
	return q, ok, nil
}

func (m *Memory) Put(ctx context.Context, hash, query string, opts apq.CacheOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cost := int64(len(query))
	if cost == 0 {
		cost = 1
	}
	if cost > m.maxCost {
		return ErrRejected
	}
	ok := m.c.SetWithTTL(hash, query, cost, ttlFor(opts, m.ttl))
	// Make the write visible to the next Get.
	m.c.Wait()
	if !ok {
		return ErrRejected
	}
	return nil
}

func (m *Memory) Close() error {
	m.c.Close()
	return nil
}
