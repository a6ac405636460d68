package events

import "time"

// UpstreamStart is emitted before a query is forwarded to an upstream GraphQL server.
type UpstreamStart struct {
	Endpoint      string
	OperationName string
}

// UpstreamFinish is emitted after the upstream call completes.
type UpstreamFinish struct {
	Endpoint      string
	OperationName string
	Status        int
	Err           error
	Duration      time.Duration
}
