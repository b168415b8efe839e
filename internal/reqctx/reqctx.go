// Package reqctx carries the authenticated caller and the tenant scope of one
// operation on its context.Context.
package reqctx

import "context"

// Role is the actor's role inside its tenant.
type Role string

const (
	// RolePrivileged is a back-office actor that sees the whole tenant.
	RolePrivileged Role = "PRIVILEGED"
	// RoleRestricted is an actor bound to exactly one party.
	RoleRestricted Role = "RESTRICTED"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePrivileged, RoleRestricted:
		return true
	}
	return false
}

// Identity is the validated claim set produced at the authentication boundary.
type Identity struct {
	ActorID  string
	TenantID string
	Role     Role
	// PartyID is set only for restricted actors.
	PartyID string
}

// Privileged reports whether the identity has the privileged role.
func (i Identity) Privileged() bool {
	return i.Role == RolePrivileged
}

type identityContextKey struct{}

type tenantContextKey struct{}

// WithIdentity stores the caller identity in context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFrom returns the caller identity stored in context.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || id.ActorID == "" || id.TenantID == "" {
		return Identity{}, false
	}
	return id, true
}

// WithTenant stores an explicit tenant scope in context. It takes precedence
// over the identity's tenant.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

// TenantFrom returns the tenant scope of the operation.
func TenantFrom(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if tenantID, ok := ctx.Value(tenantContextKey{}).(string); ok && tenantID != "" {
		return tenantID, true
	}
	if id, ok := IdentityFrom(ctx); ok {
		return id.TenantID, true
	}
	return "", false
}
