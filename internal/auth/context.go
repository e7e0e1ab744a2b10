package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

type contextKey int

const principalCtxKey contextKey = iota

const principalKey = "auth_principal"

// Tier names the validator that produced a principal.
type Tier string

const (
	TierPerimeter Tier = "perimeter"
	TierService   Tier = "service"
)

// Principal is the authenticated request context. It lives for exactly one
// request and is never shared.
type Principal struct {
	Username    string
	Authorities []string
	Tier        Tier
}

// HasAuthority reports whether the principal holds authority.
func (p *Principal) HasAuthority(authority string) bool {
	for _, a := range p.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

// PrincipalFromUserContext retrieves the principal stored by WithPrincipal.
func PrincipalFromUserContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalCtxKey).(*Principal)
	return p, ok && p != nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok && principal != nil
}

func attachPrincipal(c *fiber.Ctx, p *Principal) {
	c.Locals(principalKey, p)
	c.SetUserContext(WithPrincipal(c.UserContext(), p))
}
