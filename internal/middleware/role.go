package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireAnyRole returns a middleware that allows the request through when
// the authenticated claim set carries at least one of the given role names.
// Matching is exact string membership over the claim list; there is no
// hierarchy between roles, so broader access must be granted as additional
// explicit assignments.  A missing claim set yields 401 (the request never
// authenticated), an authenticated request without a matching role yields
// 403 with the required and current role lists.
func RequireAnyRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := ClaimsFrom(c)
			if claims == nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			for _, r := range claims.Roles {
				if allowed[r] {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{
				"error":    "forbidden: insufficient permissions",
				"required": roles,
				"current":  claims.Roles,
			})
		}
	}
}
