package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/movu/auth-service/internal/model"
)

// RoleRepo provides access to the roles table and the user_roles assignment
// relation.  (user, role) pairs are unique; duplicates map to ErrRoleAssigned.
type RoleRepo struct{ DB *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{DB: db} }

// Find returns the role with the given name.
func (r *RoleRepo) Find(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, role_name FROM roles WHERE role_name=? LIMIT 1", name).
		Scan(&role.ID, &role.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	return &role, nil
}

// List returns all roles ordered by name.
func (r *RoleRepo) List(ctx context.Context) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT id, role_name FROM roles ORDER BY role_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []model.Role
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// Create inserts a new role.  A duplicate name maps to ErrRoleExists.
func (r *RoleRepo) Create(ctx context.Context, name string) (*model.Role, error) {
	res, err := r.DB.ExecContext(ctx, "INSERT INTO roles (role_name) VALUES (?)", name)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return nil, ErrRoleExists
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &model.Role{ID: uint64(id), Name: name}, nil
}

// Assign adds the role to the user.  The unique (user_id, role_id) index
// rejects duplicate assignments.
func (r *RoleRepo) Assign(ctx context.Context, userID uint64, roleName string) (*model.Role, error) {
	role, err := r.Find(ctx, roleName)
	if err != nil {
		return nil, err
	}
	if _, err := r.DB.ExecContext(ctx,
		"INSERT INTO user_roles (user_id, role_id) VALUES (?,?)", userID, role.ID); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return nil, ErrRoleAssigned
		}
		return nil, err
	}
	return role, nil
}

// Unassign removes the role from the user.  Removing a role the user does
// not have maps to ErrRoleNotAssigned.
func (r *RoleRepo) Unassign(ctx context.Context, userID uint64, roleName string) error {
	role, err := r.Find(ctx, roleName)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM user_roles WHERE user_id=? AND role_id=?", userID, role.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRoleNotAssigned
	}
	return nil
}
