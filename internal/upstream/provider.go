package upstream

import (
	"context"
	"net/url"
	"sync"

	"github.com/pkg/errors"
)

// EndpointProvider lists the GraphQL endpoint URLs queries may be forwarded
// to. Implementations may integrate with service discovery and should be safe
// for concurrent use.

type EndpointProvider interface {
	Endpoints(ctx context.Context) ([]string, error)
}

// StaticEndpoints is a fixed list of endpoint URLs.

type StaticEndpoints struct {
	mu   sync.RWMutex
	urls []string
}

// NewStaticEndpoints validates urls and returns a provider serving them.
func NewStaticEndpoints(urls ...string) (*StaticEndpoints, error) {
	cp := make([]string, 0, len(urls))
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "upstream: invalid endpoint %q", raw)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, errors.Errorf("upstream: endpoint %q must be an absolute http(s) URL", raw)
		}
		cp = append(cp, u.String())
	}
	return &StaticEndpoints{urls: cp}, nil
}

// Set replaces the endpoint list.
func (s *StaticEndpoints) Set(urls []string) {
	cp := append([]string(nil), urls...)
	s.mu.Lock()
	s.urls = cp
	s.mu.Unlock()
}

func (s *StaticEndpoints) Endpoints(ctx context.Context) ([]string, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.urls) == 0 {
		return nil, ErrNoEndpoints
	}
	return append([]string(nil), s.urls...), nil
}
