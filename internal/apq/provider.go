package apq

import "context"

// DocumentProvider obtains the query text for a request. Returning a Deferred
// outcome hands the request to the next provider.
type DocumentProvider interface {
	ResolveDocument(ctx context.Context, req Request) (Outcome, error)
}

// QueryText is the plain GraphQL path: the document is whatever the client
// sent as "query".
type QueryText struct{}

func (QueryText) ResolveDocument(_ context.Context, req Request) (Outcome, error) {
	switch q := req.Query.(type) {
	case nil:
		return Defer(), nil
	case string:
		if q == "" {
			return Defer(), nil
		}
		return Resolved(q), nil
	default:
		return Failed(QueryFormatIncorrect), nil
	}
}

// Chain tries providers in order; the first outcome that is not Deferred, or
// the first error, wins.
type Chain []DocumentProvider

func (c Chain) ResolveDocument(ctx context.Context, req Request) (Outcome, error) {
	for _, p := range c {
		out, err := p.ResolveDocument(ctx, req)
		if err != nil {
			return Outcome{}, err
		}
		if out.Kind != OutcomeDeferred {
			return out, nil
		}
	}
	return Defer(), nil
}

var (
	_ DocumentProvider = (*Resolver)(nil)
	_ DocumentProvider = QueryText{}
	_ DocumentProvider = Chain(nil)
)
