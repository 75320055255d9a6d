package auth

import "context"

const (
	RoleAdmin     = "admin"
	RoleManager   = "manager"
	RoleAttendant = "attendant"
)

// TenantClaimKey is the echo context key holding the shop taken from the
// caller's credentials. Tenant resolution and rate limiting read it.
const TenantClaimKey = "jwt_tenant_id"

type principalKey struct{}

// Principal is the shop user behind a request.
type Principal struct {
	Subject  string
	TenantID string
	Roles    []string
}

// HasAnyRole reports whether p holds one of roles. Admins hold every role.
func (p Principal) HasAnyRole(roles ...string) bool {
	for _, has := range p.Roles {
		if has == RoleAdmin {
			return true
		}
		for _, want := range roles {
			if has == want {
				return true
			}
		}
	}
	return false
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
