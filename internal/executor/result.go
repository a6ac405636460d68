package executor

import "encoding/json"

// Location is a line/column position in the query document.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// GraphQLError is an error entry of a GraphQL response.
type GraphQLError struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e GraphQLError) Error() string { return e.Message }

// Result is a GraphQL response. Data is kept encoded so executors can pass
// upstream payloads through without re-encoding them.
type Result struct {
	Data       json.RawMessage `json:"data,omitempty"`
	Errors     []GraphQLError  `json:"errors,omitempty"`
	Extensions map[string]any  `json:"extensions,omitempty"`
}

// ErrorResult is a response carrying a single error and no data.
func ErrorResult(message string) *Result {
	return &Result{Errors: []GraphQLError{{Message: message}}}
}
