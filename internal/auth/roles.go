package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/authgate/pkg/util"
)

// RequireAuthority admits callers holding at least one of the listed
// authorities. No principal is a 401; a principal without any of them is a 403.
// With no authorities listed any authenticated caller passes.
func RequireAuthority(authorities ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(authorities))
	for _, authority := range authorities {
		allowed[authority] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowed) == 0 {
			return c.Next()
		}
		for _, held := range principal.Authorities {
			if _, exists := allowed[held]; exists {
				return c.Next()
			}
		}
		return apperrors.NewForbidden("insufficient authority")
	}
}
