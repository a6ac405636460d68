package events

import (
	"net/http"
	"time"
)

// HTTPStart is emitted when the gateway receives a request.
type HTTPStart struct {
	RequestID string
	Request   *http.Request
}

// HTTPFinish is emitted after the response has been written.
type HTTPFinish struct {
	RequestID string
	Request   *http.Request
	Status    int
	Duration  time.Duration
}
