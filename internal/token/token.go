// Package token signs and verifies the bearer tokens issued by the session
// manager.  Access and refresh tokens are signed with separate secrets so a
// leaked refresh secret cannot mint access tokens and vice versa.  The codec
// is stateless: verification needs no storage and is safe for unbounded
// parallel use.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds embedded in the claim set.  A token presented with the wrong
// kind is rejected even when its signature verifies.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// ErrInvalidToken is returned for any verification failure: bad signature,
// expired token, malformed input, or kind mismatch.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the payload of a signed token.
type Claims struct {
	UserID   uint64   `json:"user_id"`
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Kind     string   `json:"type"`
	jwt.RegisteredClaims
}

// Codec issues and verifies both token kinds.  Construct once at startup and
// treat as immutable.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewCodec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Codec {
	return &Codec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// IssueAccess signs a short-lived access token carrying the user's identity
// and current role names.
func (c *Codec) IssueAccess(userID uint64, username, email string, roles []string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID:   userID,
		Username: username,
		Email:    email,
		Roles:    roles,
		Kind:     KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessSecret)
}

// IssueRefresh signs a long-lived refresh token for the user.  The random
// jti keeps two refresh tokens for the same user distinct even when issued
// within the same second.  The returned expiry is what the ledger stores.
func (c *Codec) IssueRefresh(userID uint64) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(c.refreshTTL)
	claims := Claims{
		UserID: userID,
		Kind:   KindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyAccess validates an access token and returns its claims.
func (c *Codec) VerifyAccess(tokenStr string) (*Claims, error) {
	return c.verify(tokenStr, c.accessSecret, KindAccess)
}

// VerifyRefresh validates a refresh token and returns its claims.
func (c *Codec) VerifyRefresh(tokenStr string) (*Claims, error) {
	return c.verify(tokenStr, c.refreshSecret, KindRefresh)
}

func (c *Codec) verify(tokenStr string, secret []byte, kind string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
