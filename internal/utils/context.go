package utils

import "context"

type contextKey string

const (
	identityKey       contextKey = "identity"
	identityHolderKey contextKey = "identity_holder"
)

// Identity is the caller as established by the auth middleware.
type Identity struct {
	UserID       string
	Role         string
	RestaurantID string
	CustomerID   string
}

// identityHolder lets middleware that runs before auth see the identity auth
// established further down the chain. Only the request goroutine touches it.
type identityHolder struct {
	id  Identity
	set bool
}

// WithIdentityHolder returns a context whose later SetIdentity calls are also
// visible to GetUserRoleFromContext on the returned context.
func WithIdentityHolder(ctx context.Context) context.Context {
	return context.WithValue(ctx, identityHolderKey, &identityHolder{})
}

func SetIdentity(ctx context.Context, id Identity) context.Context {
	if h, ok := ctx.Value(identityHolderKey).(*identityHolder); ok {
		h.id, h.set = id, true
	}
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// GetUserRoleFromContext falls back to the identity holder, so an outer
// middleware can read the role once the handler has returned.
func GetUserRoleFromContext(ctx context.Context) string {
	if id, ok := IdentityFrom(ctx); ok {
		return id.Role
	}
	if h, ok := ctx.Value(identityHolderKey).(*identityHolder); ok && h.set {
		return h.id.Role
	}
	return ""
}
