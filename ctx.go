package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

// DefaultContextKey is the router locals key protected routes store the
// session under.
const DefaultContextKey = "user"

var userCtxKey = &contextKey{"user"}
var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok && raw != nil
}

// WithSessionContext sets the session in the given context
func WithSessionContext(r context.Context, session *SessionObject) context.Context {
	return context.WithValue(r, sessionCtxKey, session)
}

// GetSession extracts the session from the standard context
func GetSession(ctx context.Context) (*SessionObject, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(*SessionObject)
	return raw, ok && raw != nil
}

// GetRouterSession extracts the session from router locals
func GetRouterSession(c router.Context, key string) (*SessionObject, bool) {
	if key == "" {
		key = DefaultContextKey
	}
	raw, ok := c.Locals(key).(*SessionObject)
	return raw, ok && raw != nil
}

// HasRole is a convenience check against the session in ctx.
func HasRole(ctx context.Context, minRole UserRole) bool {
	session, ok := GetSession(ctx)
	if !ok {
		return false
	}
	return session.IsAtLeast(string(minRole))
}
