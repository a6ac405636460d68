package events

// Cache operations reported in PersistedQuery.
const (
	CacheOpNone  = ""
	CacheOpStore = "store"
	CacheOpFetch = "fetch"
)

// PersistedQuery is emitted once per request that carries a persistedQuery
// extension, after the resolver has decided its outcome.
type PersistedQuery struct {
	Hash    string
	Version int
	Outcome string
	// Error is the symbolic failure name; empty unless Outcome is "failed".
	Error   string
	CacheOp string
	// CacheErr is a provider error that did not fail the request.
	CacheErr error
}
