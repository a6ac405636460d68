package reqid

import (
	"context"

	"github.com/google/uuid"
)

// Header carries the request ID on HTTP requests and responses.
const Header = "X-Request-Id"

type key struct{}

type ids struct {
	id    string
	local string
}

// NewContext returns a copy of parent carrying id. A malformed or empty id is
// replaced by a fresh UUID. The ID actually stored is returned.
//
// Every call also stores a server generated local ID, see Local.
func NewContext(parent context.Context, id string) (context.Context, string) {
	local := uuid.NewString()
	if _, err := uuid.Parse(id); err != nil {
		id = local
	}
	return context.WithValue(parent, key{}, ids{id: id, local: local}), id
}

// FromContext extracts the request ID from ctx.
func FromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(key{}).(ids)
	return v.id, ok
}

// Local returns the ID generated for this request by NewContext. Unlike the
// request ID it is never taken from the client, so it is unique per request.
func Local(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(key{}).(ids)
	return v.local, ok
}
