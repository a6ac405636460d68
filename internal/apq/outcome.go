package apq

// OutcomeKind tags the result of a document provider.
type OutcomeKind uint8

const (
	// OutcomeDeferred means the next provider should be tried.
	OutcomeDeferred OutcomeKind = iota
	OutcomeResolved
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeResolved:
		return "resolved"
	case OutcomeFailed:
		return "failed"
	default:
		return "deferred"
	}
}

// Outcome is the per-request decision. Query is set when Resolved, Err when
// Failed.
type Outcome struct {
	Kind  OutcomeKind
	Query string
	Err   ErrorKind
}

func Defer() Outcome                { return Outcome{} }
func Resolved(query string) Outcome { return Outcome{Kind: OutcomeResolved, Query: query} }
func Failed(kind ErrorKind) Outcome { return Outcome{Kind: OutcomeFailed, Err: kind} }

// Error returns the failure as an error, or nil unless o is Failed.
func (o Outcome) Error() error {
	if o.Kind != OutcomeFailed {
		return nil
	}
	return &Error{Kind: o.Err}
}
