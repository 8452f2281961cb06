package auth

import "context"

// Identity captures the authenticated principal extracted from a session token.
type Identity struct {
	UID   string
	Email string
}

type contextKey string

const identityContextKey contextKey = "github.com/greenraise/storefront/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(Identity)
	if !ok || identity.UID == "" {
		return Identity{}, false
	}
	return identity, true
}
