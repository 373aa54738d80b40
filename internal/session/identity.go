// Package session carries the authenticated identity through a request and
// broadcasts session and gallery change events to interested subscribers.
package session

import "context"

// Identity is the read-only view of the signed-in user held by the service.
type Identity struct {
	UserID    string `json:"id"`
	Email     string `json:"email"`
	SessionID string `json:"-"`
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the identity stored by the auth middleware, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// UserID is a convenience accessor returning "" when unauthenticated.
func UserID(ctx context.Context) string {
	if id := FromContext(ctx); id != nil {
		return id.UserID
	}
	return ""
}
