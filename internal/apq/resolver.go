package apq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	eventbus "github.com/hanpama/apqgate/internal/eventbus"
	events "github.com/hanpama/apqgate/internal/events"
)

// Unbounded disables the query size limit.
const Unbounded = -1

// Options configures a Resolver.
//
// Defaults:
// - Decoder:      nil (encoded extensions are a configuration error)
// - MaxQuerySize: Unbounded
// - TTL:          0 (provider default)
// - Logger:       no-op
type Options struct {
	Decoder Decoder

	// MaxQuerySize is the largest accepted query in bytes. 0 rejects every
	// non-empty query; Unbounded is the only negative value accepted.
	MaxQuerySize int

	TTL    time.Duration
	Hints  map[string]any
	Logger *zap.Logger
}

type Option func(*Options)

func WithDecoder(d Decoder) Option           { return func(o *Options) { o.Decoder = d } }
func WithMaxQuerySize(n int) Option          { return func(o *Options) { o.MaxQuerySize = n } }
func WithTTL(d time.Duration) Option         { return func(o *Options) { o.TTL = d } }
func WithCacheHints(h map[string]any) Option { return func(o *Options) { o.Hints = h } }
func WithLogger(l *zap.Logger) Option        { return func(o *Options) { o.Logger = l } }

// Request is the part of a GraphQL request the resolver looks at.
type Request struct {
	// Query is the decoded "query" value; nil when the client sent none.
	Query      any
	Extensions Extensions
}

// Resolver implements the APQ document provider. It holds no per-request state
// and is safe for concurrent use as long as its Cache is.
type Resolver struct {
	cache Cache
	opt   Options
}

func NewResolver(cache Cache, opts ...Option) (*Resolver, error) {
	if cache == nil {
		return nil, errors.New("apq: cache is required")
	}
	o := Options{MaxQuerySize: Unbounded}
	for _, f := range opts {
		f(&o)
	}
	if o.MaxQuerySize < Unbounded {
		return nil, errors.Errorf("apq: invalid max query size %d", o.MaxQuerySize)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &Resolver{cache: cache, opt: o}, nil
}

// Hash returns the lowercase hex SHA-256 digest of query.
func Hash(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

// Resolve decides how the query text of req is obtained. A non-nil error means
// the resolver is misconfigured; client mistakes are reported as Failed.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Outcome, error) {
	desc, ok, err := Extract(req.Extensions, r.opt.Decoder)
	if err != nil {
		r.opt.Logger.Error("persisted query extensions cannot be decoded", zap.Error(err))
		return Outcome{}, err
	}
	if !ok {
		return Defer(), nil
	}

	ev := events.PersistedQuery{Hash: desc.Hash, Version: desc.Version}
	out := r.resolve(ctx, desc, req.Query, &ev)
	ev.Outcome = out.Kind.String()
	ev.Error = out.Err.String()
	eventbus.Publish(ctx, ev)
	return out, nil
}

// ResolveDocument makes Resolver a DocumentProvider.
func (r *Resolver) ResolveDocument(ctx context.Context, req Request) (Outcome, error) {
	return r.Resolve(ctx, req)
}

func (r *Resolver) resolve(ctx context.Context, desc Descriptor, query any, ev *events.PersistedQuery) Outcome {
	if desc.HashMalformed {
		return Failed(HashFormatIncorrect)
	}
	copts := CacheOptions{TTL: r.opt.TTL, Hints: r.opt.Hints}

	if query == nil {
		ev.CacheOp = events.CacheOpFetch
		text, found, err := r.cache.Get(ctx, desc.Hash, copts)
		if err != nil {
			ev.CacheErr = err
			r.opt.Logger.Warn("persisted query lookup failed", zap.String("hash", desc.Hash), zap.Error(err))
			return Failed(PersistedQueryNotFound)
		}
		if !found {
			return Failed(PersistedQueryNotFound)
		}
		return Resolved(text)
	}

	text, ok := query.(string)
	if !ok {
		return Failed(QueryFormatIncorrect)
	}
	// Size wins over a hash mismatch and spares hashing oversized payloads.
	if r.opt.MaxQuerySize != Unbounded && len(text) > r.opt.MaxQuerySize {
		return Failed(PersistedQueryLargerThanMaxSize)
	}
	if Hash(text) != desc.Hash {
		return Failed(ProvidedShaDoesNotMatch)
	}

	ev.CacheOp = events.CacheOpStore
	if err := r.cache.Put(ctx, desc.Hash, text, copts); err != nil {
		ev.CacheErr = err
		r.opt.Logger.Warn("persisted query store failed", zap.String("hash", desc.Hash), zap.Error(err))
	}
	return Resolved(text)
}
