package executor

import (
	"context"

	graphql "github.com/graph-gophers/graphql-go"
	gqlerrors "github.com/graph-gophers/graphql-go/errors"
	"github.com/pkg/errors"
)

// Schema executes documents against an in-process graph-gophers schema.
type Schema struct {
	s *graphql.Schema
}

var _ Executor = (*Schema)(nil)

func NewSchema(sdl string, resolver any, opts ...graphql.SchemaOpt) (*Schema, error) {
	s, err := graphql.ParseSchema(sdl, resolver, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "executor: parse schema")
	}
	return &Schema{s: s}, nil
}

func (s *Schema) Execute(ctx context.Context, p Params) *Result {
	resp := s.s.Exec(ctx, p.Query, p.OperationName, p.Variables)
	out := &Result{Data: resp.Data, Extensions: resp.Extensions}
	for _, e := range resp.Errors {
		out.Errors = append(out.Errors, fromQueryError(e))
	}
	return out
}

func fromQueryError(e *gqlerrors.QueryError) GraphQLError {
	ge := GraphQLError{Message: e.Message, Path: e.Path, Extensions: e.Extensions}
	for _, l := range e.Locations {
		ge.Locations = append(ge.Locations, Location{Line: l.Line, Column: l.Column})
	}
	return ge
}
