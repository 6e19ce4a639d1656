package wsproto

import "context"

type connIDKey struct{}

// WithConnID returns a context carrying connID, set by the transport
// gateway before dispatching an inbound Message so hub-layer Handlers can
// recover which connection sent it.
func WithConnID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connIDKey{}, connID)
}

// ConnID recovers the connection id set by WithConnID, if any.
func ConnID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(connIDKey{}).(string)
	return id, ok
}
