package services

import "context"

// Role values carried by a session.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
	RoleDriver   = "driver"
)

// Identity is the caller of an operation.
type Identity struct {
	UID       string `json:"uid"`
	Role      string `json:"role"`
	Anonymous bool   `json:"anonymous"`
	TokenID   string `json:"-"`
}

// IsAdmin reports whether the identity may use the admin surface.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// CanDrive reports whether the identity may use the driver surface.
func (i Identity) CanDrive() bool { return i.Role == RoleDriver || i.Role == RoleAdmin }

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func actorFromContext(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok {
		return id.Role + ":" + id.UID
	}
	return "system"
}
