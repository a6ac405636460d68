package upstream

import "github.com/pkg/errors"

var (
	// ErrNoEndpoints indicates the provider returned no endpoints.
	ErrNoEndpoints = errors.New("upstream: no endpoints available")
	// ErrClosed is returned for calls made after Close.
	ErrClosed = errors.New("upstream: closed")
)
