package upstream

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Options configures the upstream transport.
//
// Defaults:
// - Timeout:  10s (used only if the incoming context has no deadline)
// - RetryMax: 2
// - Logger:   no-op
//
// Provider must be set (use StaticEndpoints or a custom implementation).
// If Provider is nil, every call fails.

type Options struct {
	Provider EndpointProvider

	Timeout  time.Duration
	RetryMax int

	// HTTPClient is the underlying client; nil uses a pooled default.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Timeout:  10 * time.Second,
		RetryMax: 2,
	}
}

func WithProvider(p EndpointProvider) Option { return func(o *Options) { o.Provider = p } }
func WithTimeout(d time.Duration) Option     { return func(o *Options) { o.Timeout = d } }
func WithRetryMax(n int) Option              { return func(o *Options) { o.RetryMax = n } }
func WithHTTPClient(c *http.Client) Option   { return func(o *Options) { o.HTTPClient = c } }
func WithLogger(l *zap.Logger) Option        { return func(o *Options) { o.Logger = l } }
