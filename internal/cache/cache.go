// Package cache provides apq.Cache implementations.
package cache

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hanpama/apqgate/internal/apq"
)

// ErrRejected is returned by Memory.Put when the query is larger than the
// whole cache or the write was dropped from ristretto's buffer. Writes the
// admission policy declines later are not reported.
var ErrRejected = errors.New("cache: write rejected")

// Store is an apq.Cache that owns resources.
type Store interface {
	apq.Cache
	Close() error
}

const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Config selects and sizes a Store.
type Config struct {
	Backend string
	// MaxSize bounds the memory backend, e.g. "64MiB".
	MaxSize string
	// TTL is the default entry lifetime. Zero keeps entries until evicted.
	TTL time.Duration
	// Dir is the badger directory. Empty runs badger in memory.
	Dir string
}

func Open(cfg Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		size := "64MiB"
		if cfg.MaxSize != "" {
			size = cfg.MaxSize
		}
		n, err := humanize.ParseBytes(size)
		if err != nil {
			return nil, errors.Wrapf(err, "cache: invalid max size %q", size)
		}
		return NewMemory(int64(n), cfg.TTL)
	case BackendBadger:
		return OpenBadger(cfg.Dir, cfg.TTL, logger)
	default:
		return nil, errors.Errorf("cache: unknown backend %q", cfg.Backend)
	}
}

func ttlFor(opts apq.CacheOptions, def time.Duration) time.Duration {
	if opts.TTL > 0 {
		return opts.TTL
	}
	return def
}
