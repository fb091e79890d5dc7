// Package router wires HTTP routes to handlers and middleware.
package router

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/movu/auth-service/internal/handler"
	"github.com/movu/auth-service/internal/middleware"
	"github.com/movu/auth-service/internal/token"
)

// Register mounts every route.  Unauthenticated credential-exchange
// operations live under /v1/auth; everything under /v1 requires a verified
// access token; role administration additionally requires the admin role.
func Register(e *echo.Echo, a *handler.AuthHandler, r *handler.RoleHandler,
	codec *token.Codec, rdb *redis.Client, cacheTTL time.Duration) {

	e.GET("/healthz", handler.Health)

	// Credential exchange: no existing session required.
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// Logout accepts either a refresh token in the body (end one session)
	// or a bearer token (end all sessions), so it stays outside the
	// authenticated group.
	g.POST("/logout", a.Logout)
	g.GET("/google/url", a.GoogleAuthURL)
	g.GET("/google/callback", a.GoogleCallback)

	// Token verification for other services; authentication is the check.
	g.GET("/verify", a.Verify, middleware.Authenticate(codec))

	// Authenticated surface.
	authed := e.Group("/v1", middleware.Authenticate(codec))
	authed.GET("/me", a.Me)

	// Role administration: admin only.  The listing is the single cached
	// endpoint; role rows change rarely and carry no per-user data.
	admin := authed.Group("/roles", middleware.RequireAnyRole("admin"))
	admin.GET("", r.List, middleware.CacheGET(rdb, "roles", cacheTTL))
	admin.POST("", r.Create)

	users := authed.Group("/users", middleware.RequireAnyRole("admin"))
	users.GET("/:id/roles", r.UserRoles)
	users.POST("/:id/roles", r.Assign)
	users.DELETE("/:id/roles/:role", r.Unassign)
}
