package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/movu/auth-service/internal/model"
)

// TokenRepo is the refresh-token ledger: the single source of truth for
// refresh-token liveness across instances.  Rows are inserted on login and
// rotation and only ever mutated by flipping is_revoked to true; nothing is
// physically deleted so that replayed tokens can be detected after the fact.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Store inserts a new non-revoked refresh token row.
func (r *TokenRepo) Store(ctx context.Context, userID uint64, token string, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token, expires_at, is_revoked) VALUES (?,?,?,0)",
		userID, token, expiresAt)
	return err
}

// Find returns the row for a live (non-revoked) token.  Revoked and missing
// rows both yield ErrTokenNotFound.  Expiry is intentionally not checked
// here; the caller performs the wall-clock comparison so that expiry can be
// reported distinctly from revocation.
func (r *TokenRepo) Find(ctx context.Context, token string) (*model.RefreshToken, error) {
	var t model.RefreshToken
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, user_id, token, expires_at, is_revoked, created_at, updated_at
		 FROM refresh_tokens WHERE token=? AND is_revoked=0 LIMIT 1`, token).
		Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.Revoked, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Revoke marks the token as revoked.  Idempotent: revoking a token that is
// already revoked or was never stored is a no-op.
func (r *TokenRepo) Revoke(ctx context.Context, token string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET is_revoked=1 WHERE token=? AND is_revoked=0", token)
	return err
}

// RevokeAll revokes every live token for a user ("sign out everywhere").
func (r *TokenRepo) RevokeAll(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET is_revoked=1 WHERE user_id=? AND is_revoked=0", userID)
	return err
}

// Rotate atomically revokes oldToken and stores newToken for the user.  The
// revoke step is a conditional update guarded by is_revoked=0: of two
// concurrent rotations of the same token exactly one sees RowsAffected==1
// and commits, the other gets ErrTokenNotFound and the transaction is rolled
// back without inserting a row.
func (r *TokenRepo) Rotate(ctx context.Context, oldToken string, userID uint64, newToken string, expiresAt time.Time) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET is_revoked=1 WHERE token=? AND is_revoked=0", oldToken)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTokenNotFound
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token, expires_at, is_revoked) VALUES (?,?,?,0)",
		userID, newToken, expiresAt); err != nil {
		return err
	}
	return tx.Commit()
}
