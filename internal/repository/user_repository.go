package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/movu/auth-service/internal/model"
)

// UserRepo provides access to the users table and the role membership join.
// Every lookup resolves the user's current role names so that freshly issued
// claims always reflect current authorization.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id, username, email, password_hash, external_id, provider, avatar_url, created_at, updated_at"

// Create inserts a user and fills in its generated ID.  Unique constraint
// violations are mapped to ErrEmailExists / ErrUsernameExists.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, external_id, provider, avatar_url) VALUES (?,?,?,?,?,?)",
		u.Username, u.Email, u.PasswordHash, u.ExternalID, u.Provider, u.AvatarURL)
	if err != nil {
		return mapDuplicate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return nil
}

// Update persists the mutable linking fields: external id, provider tag and
// avatar.  Used when a federated identity is linked to an existing account
// or when the provider reports a new avatar.
func (r *UserRepo) Update(ctx context.Context, u *model.User) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET external_id=?, provider=?, avatar_url=? WHERE id=?",
		u.ExternalID, u.Provider, u.AvatarURL, u.ID)
	if err != nil {
		return mapDuplicate(err)
	}
	return nil
}

// FindByEmail fetches a user by normalized email together with their roles.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.findOne(ctx, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
}

// FindByExternalID fetches a user by their identity-provider subject.
func (r *UserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return r.findOne(ctx, "SELECT "+userColumns+" FROM users WHERE external_id=? LIMIT 1", externalID)
}

// FindByID fetches a user by primary key.
func (r *UserRepo) FindByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.findOne(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
}

func (r *UserRepo) findOne(ctx context.Context, query string, arg any) (*model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.ExternalID,
		&u.Provider, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	roles, err := r.rolesOf(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}

func (r *UserRepo) rolesOf(ctx context.Context, userID uint64) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT r.role_name FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = ? ORDER BY r.role_name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

// mapDuplicate translates MySQL duplicate-key errors (1062) into the
// sentinel matching the violated constraint.
func mapDuplicate(err error) error {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "1062") {
		return err
	}
	switch {
	case strings.Contains(msg, "email"):
		return ErrEmailExists
	case strings.Contains(msg, "username"):
		return ErrUsernameExists
	default:
		return err
	}
}
