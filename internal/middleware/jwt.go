package middleware // middleware provides shared request processing for handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/movu/auth-service/internal/token"
)

// ClaimsKey is the echo context key under which Authenticate stores the
// verified access-token claims.
const ClaimsKey = "claims"

// Authenticate returns an Echo middleware that validates a Bearer access
// token with the codec and injects the verified claim set into the request
// context.  Verification is pure and stateless, so this middleware holds no
// locks and is safe under unbounded parallelism.  Handlers read the claims
// via ClaimsFrom.
func Authenticate(codec *token.Codec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			claims, err := codec.VerifyAccess(strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired access token"})
			}
			c.Set(ClaimsKey, claims)
			return next(c)
		}
	}
}

// ClaimsFrom extracts the verified claims placed by Authenticate, or nil if
// the request did not pass authentication.
func ClaimsFrom(c echo.Context) *token.Claims {
	claims, _ := c.Get(ClaimsKey).(*token.Claims)
	return claims
}
