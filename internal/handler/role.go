package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/movu/auth-service/internal/repository"
)

// RoleHandler exposes role administration.  All routes behind it are guarded
// by RequireAnyRole("admin") in the router.
type RoleHandler struct {
	Roles *repository.RoleRepo
	Users *repository.UserRepo
}

func NewRoleHandler(roles *repository.RoleRepo, users *repository.UserRepo) *RoleHandler {
	return &RoleHandler{Roles: roles, Users: users}
}

type roleReq struct {
	RoleName string `json:"role_name"`
}

// List returns all roles.  This is the only cached endpoint.
func (h *RoleHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	roles, err := h.Roles.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list roles"})
	}
	return c.JSON(http.StatusOK, echo.Map{"roles": roles})
}

// Create adds a new role.
func (h *RoleHandler) Create(c echo.Context) error {
	var req roleReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RoleName) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role_name required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	role, err := h.Roles.Create(ctx, strings.TrimSpace(req.RoleName))
	if err != nil {
		if errors.Is(err, repository.ErrRoleExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "role already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create role"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"role": role})
}

// UserRoles returns the roles currently assigned to a user.
func (h *RoleHandler) UserRoles(c echo.Context) error {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load user"})
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": u.ID, "roles": u.Roles})
}

// Assign grants a role to a user.
func (h *RoleHandler) Assign(c echo.Context) error {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var req roleReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RoleName) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role_name required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	role, err := h.Roles.Assign(ctx, userID, strings.TrimSpace(req.RoleName))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRoleNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "role not found"})
		case errors.Is(err, repository.ErrRoleAssigned):
			return c.JSON(http.StatusConflict, echo.Map{"error": "user already has this role"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to assign role"})
	}
	return c.JSON(http.StatusOK, echo.Map{"role": role})
}

// Unassign removes a role from a user.
func (h *RoleHandler) Unassign(c echo.Context) error {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	roleName := strings.TrimSpace(c.Param("role"))
	if roleName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Roles.Unassign(ctx, userID, roleName); err != nil {
		switch {
		case errors.Is(err, repository.ErrRoleNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "role not found"})
		case errors.Is(err, repository.ErrRoleNotAssigned):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user does not have this role"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to unassign role"})
	}
	return c.NoContent(http.StatusNoContent)
}
