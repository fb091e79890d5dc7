package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/movu/auth-service/internal/auth"
	"github.com/movu/auth-service/internal/federation"
	"github.com/movu/auth-service/internal/middleware"
	"github.com/movu/auth-service/internal/repository"
	"github.com/movu/auth-service/internal/token"
)

// dbTimeout bounds every call into the service layer from a handler.
const dbTimeout = 5 * time.Second

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Svc    *auth.Service
	Codec  *token.Codec
	Google *federation.GoogleExchanger // nil when federated login is not configured
}

func NewAuthHandler(svc *auth.Service, codec *token.Codec, google *federation.GoogleExchanger) *AuthHandler {
	return &AuthHandler{Svc: svc, Codec: codec, Google: google}
}

// ----- DTOs -----

type registerReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

// Register creates a local account.  The password digest never appears in
// the response.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username/email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	user, err := h.Svc.Register(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"user": user})
}

// Login exchanges email + password for a token pair.  Unknown email and
// wrong password produce the same response.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	sess, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}
	return c.JSON(http.StatusOK, sess)
}

// Refresh exchanges a live refresh token for a fresh pair.  The refresh
// token only rotates inside the sliding window.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	sess, err := h.Svc.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		switch {
		case errors.Is(err, token.ErrInvalidToken):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		case errors.Is(err, repository.ErrTokenNotFound):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "refresh token not found or revoked"})
		case errors.Is(err, auth.ErrTokenExpired):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "refresh token expired"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token refresh failed"})
	}
	return c.JSON(http.StatusOK, sess)
}

// Logout revokes a session.  Two modes: a refresh token in the body ends
// that session; a bearer access token with no body token ends every session
// for the user.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	refresh := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if refresh != "" {
		if err := h.Svc.Logout(ctx, refresh); err != nil {
			if errors.Is(err, token.ErrInvalidToken) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
			}
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
		return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
	}

	// No refresh token: fall back to the bearer token for sign-out-everywhere.
	authHeader := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		claims, err := h.Codec.VerifyAccess(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid access token"})
		}
		if err := h.Svc.LogoutAll(ctx, claims.UserID); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
		return c.JSON(http.StatusOK, echo.Map{"message": "logged out everywhere"})
	}

	return c.JSON(http.StatusBadRequest, echo.Map{"error": "provide refresh_token or Authorization header"})
}

// Verify decodes the presented access token for other services.  Consumers
// must call this endpoint instead of parsing tokens themselves so the
// signing scheme can change without a distributed rollout.
func (h *AuthHandler) Verify(c echo.Context) error {
	claims := middleware.ClaimsFrom(c)
	return c.JSON(http.StatusOK, echo.Map{
		"user_id":  claims.UserID,
		"username": claims.Username,
		"email":    claims.Email,
		"roles":    claims.Roles,
		"expires":  claims.ExpiresAt.Time,
	})
}

// Me returns the authenticated user's identity from the verified claims.
func (h *AuthHandler) Me(c echo.Context) error {
	claims := middleware.ClaimsFrom(c)
	return c.JSON(http.StatusOK, echo.Map{
		"user_id":  claims.UserID,
		"username": claims.Username,
		"email":    claims.Email,
		"roles":    claims.Roles,
	})
}

// GoogleAuthURL returns the provider consent URL to start a federated login.
func (h *AuthHandler) GoogleAuthURL(c echo.Context) error {
	if h.Google == nil {
		return c.JSON(http.StatusNotImplemented, echo.Map{"error": "federated login not configured"})
	}
	state, err := federation.StateToken()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to generate auth url"})
	}
	return c.JSON(http.StatusOK, echo.Map{"auth_url": h.Google.AuthURL(state), "state": state})
}

// GoogleCallback completes a federated login with the authorization code
// from the provider redirect.
func (h *AuthHandler) GoogleCallback(c echo.Context) error {
	if h.Google == nil {
		return c.JSON(http.StatusNotImplemented, echo.Map{"error": "federated login not configured"})
	}
	code := c.QueryParam("code")
	if code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing authorization code"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	ident, err := h.Google.Exchange(ctx, code)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "google authentication failed"})
	}
	sess, err := h.Svc.LoginWithFederatedIdentity(ctx, ident)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "google authentication failed"})
	}
	return c.JSON(http.StatusOK, sess)
}
