package executor

import (
	"context"
	"net/http"
)

// Params is a request whose document text is already known.
type Params struct {
	Query         string
	OperationName string
	// OperationType is "query", "mutation" or "subscription" when known.
	OperationType string
	Variables     map[string]any
	// Header holds the incoming headers selected for forwarding.
	Header http.Header
}

// Executor runs a GraphQL document. Errors are reported inside the Result.
type Executor interface {
	Execute(ctx context.Context, p Params) *Result
}

// Func adapts a function to Executor.
type Func func(ctx context.Context, p Params) *Result

func (f Func) Execute(ctx context.Context, p Params) *Result { return f(ctx, p) }
