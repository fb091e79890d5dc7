// Package auth implements the session manager: login, refresh, logout and
// federated login orchestrated over the credential store, the refresh-token
// ledger and the token codec.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/movu/auth-service/internal/model"
	"github.com/movu/auth-service/internal/repository"
	"github.com/movu/auth-service/internal/token"
)

// Lifecycle event names handed to the publisher.
const (
	EventUserRegistered = "user.registered"
	EventUserLoggedIn   = "user.logged_in"
	EventTokenRefreshed = "token.refreshed"
	EventUserLoggedOut  = "user.logged_out"
)

// UserStore is the credential-store collaborator.  Lookups return the user
// with their current role names resolved, or repository.ErrUserNotFound.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	Update(ctx context.Context, u *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)
	FindByID(ctx context.Context, id uint64) (*model.User, error)
}

// RefreshLedger is the authoritative record of refresh-token liveness.  Find
// and Rotate report dead or missing tokens as repository.ErrTokenNotFound.
type RefreshLedger interface {
	Store(ctx context.Context, userID uint64, tok string, expiresAt time.Time) error
	Find(ctx context.Context, tok string) (*model.RefreshToken, error)
	Revoke(ctx context.Context, tok string) error
	RevokeAll(ctx context.Context, userID uint64) error
	Rotate(ctx context.Context, oldTok string, userID uint64, newTok string, expiresAt time.Time) error
}

// PasswordHasher hashes and verifies passwords.  Algorithm and cost are a
// deployment concern.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

// EventPublisher receives lifecycle notifications.  Publication is
// best-effort: implementations log failures and never return them.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload map[string]any)
}

// FederatedIdentity is the verified assertion produced by the external
// identity exchange.
type FederatedIdentity struct {
	ExternalID    string
	Email         string
	Name          string
	AvatarURL     string
	EmailVerified bool
}

// Session is the result of a successful credential exchange.
type Session struct {
	User         model.Summary `json:"user"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
}

// Service orchestrates the token lifecycle.  Construct once at startup; all
// methods are safe for concurrent use.
type Service struct {
	users         UserStore
	ledger        RefreshLedger
	codec         *token.Codec
	hasher        PasswordHasher
	events        EventPublisher
	slidingWindow time.Duration
	log           *zap.Logger
}

func NewService(users UserStore, ledger RefreshLedger, codec *token.Codec, hasher PasswordHasher,
	events EventPublisher, slidingWindow time.Duration, log *zap.Logger) *Service {
	return &Service{
		users:         users,
		ledger:        ledger,
		codec:         codec,
		hasher:        hasher,
		events:        events,
		slidingWindow: slidingWindow,
		log:           log,
	}
}

// Register creates a local user.  The duplicate-email check runs before
// hashing so an already-registered email does not cost a bcrypt round.
func (s *Service) Register(ctx context.Context, username, email, password string) (model.Summary, error) {
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return model.Summary{}, repository.ErrEmailExists
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return model.Summary{}, err
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return model.Summary{}, err
	}
	u := &model.User{
		Username:     username,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: &digest,
		Provider:     model.ProviderLocal,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return model.Summary{}, err
	}

	s.publish(ctx, EventUserRegistered, map[string]any{
		"user_id": u.ID, "username": u.Username, "email": u.Email,
	})
	return u.Summary(), nil
}

// Login exchanges email + password for a token pair.  Unknown email and
// wrong password both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if u.PasswordHash == nil || !s.hasher.Verify(password, *u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	sess, err := s.issueSession(ctx, u)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventUserLoggedIn, map[string]any{
		"user_id": u.ID, "username": u.Username, "email": u.Email,
	})
	return sess, nil
}

// Refresh exchanges a live refresh token for a fresh access token, rotating
// the refresh token when it is inside the sliding window.  Order of checks:
// signature and kind first, then ledger liveness, then the defensive
// wall-clock expiry against the stored row, then a fresh role load so the new
// access token reflects current authorization rather than stale claims.
func (s *Service) Refresh(ctx context.Context, presented string) (*Session, error) {
	claims, err := s.codec.VerifyRefresh(presented)
	if err != nil {
		return nil, err
	}

	rec, err := s.ledger.Find(ctx, presented)
	if err != nil {
		return nil, err
	}
	if time.Now().UTC().After(rec.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	u, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	access, err := s.codec.IssueAccess(u.ID, u.Username, u.Email, u.Roles)
	if err != nil {
		return nil, err
	}

	refreshed := presented
	if s.shouldExtend(rec.ExpiresAt) {
		newTok, exp, err := s.codec.IssueRefresh(u.ID)
		if err != nil {
			return nil, err
		}
		// A concurrent refresh of the same token loses the conditional
		// revoke inside Rotate and surfaces ErrTokenNotFound here; the
		// caller must treat that as compromise or a lost race, never retry.
		if err := s.ledger.Rotate(ctx, presented, u.ID, newTok, exp); err != nil {
			return nil, err
		}
		s.log.Debug("refresh token rotated", zap.Uint64("user_id", u.ID))
		refreshed = newTok
	}

	s.publish(ctx, EventTokenRefreshed, map[string]any{
		"user_id": u.ID, "username": u.Username,
	})
	return &Session{User: u.Summary(), AccessToken: access, RefreshToken: refreshed}, nil
}

// Logout revokes the presented refresh token.  A token that fails signature
// verification is reported as invalid before revocation is attempted; an
// already-revoked or unknown-but-valid token still logs out successfully.
func (s *Service) Logout(ctx context.Context, presented string) error {
	claims, err := s.codec.VerifyRefresh(presented)
	if err != nil {
		return err
	}
	if err := s.ledger.Revoke(ctx, presented); err != nil {
		return err
	}
	s.publish(ctx, EventUserLoggedOut, map[string]any{"user_id": claims.UserID})
	return nil
}

// LogoutAll revokes every live refresh token for the user ("sign out
// everywhere").
func (s *Service) LogoutAll(ctx context.Context, userID uint64) error {
	if err := s.ledger.RevokeAll(ctx, userID); err != nil {
		return err
	}
	s.publish(ctx, EventUserLoggedOut, map[string]any{"user_id": userID})
	return nil
}

// LoginWithFederatedIdentity resolves a verified provider assertion to a user
// and issues a token pair.  Resolution is three-way: match by external id,
// else link by email, else create a new federated account.
func (s *Service) LoginWithFederatedIdentity(ctx context.Context, ident FederatedIdentity) (*Session, error) {
	u, err := s.findOrCreateFederated(ctx, ident)
	if err != nil {
		return nil, err
	}
	sess, err := s.issueSession(ctx, u)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventUserLoggedIn, map[string]any{
		"user_id": u.ID, "username": u.Username, "email": u.Email, "provider": u.Provider,
	})
	return sess, nil
}

func (s *Service) findOrCreateFederated(ctx context.Context, ident FederatedIdentity) (*model.User, error) {
	u, err := s.users.FindByExternalID(ctx, ident.ExternalID)
	switch {
	case err == nil:
		if avatarChanged(u.AvatarURL, ident.AvatarURL) {
			u.AvatarURL = &ident.AvatarURL
			if err := s.users.Update(ctx, u); err != nil {
				return nil, err
			}
		}
		return u, nil
	case !errors.Is(err, repository.ErrUserNotFound):
		return nil, err
	}

	// No external-id match: link the identity to an existing local account
	// with the same email.
	u, err = s.users.FindByEmail(ctx, ident.Email)
	switch {
	case err == nil:
		u.ExternalID = &ident.ExternalID
		u.Provider = model.ProviderGoogle
		u.AvatarURL = &ident.AvatarURL
		if err := s.users.Update(ctx, u); err != nil {
			return nil, err
		}
		return u, nil
	case !errors.Is(err, repository.ErrUserNotFound):
		return nil, err
	}

	// New federated account.  The generated username is collision-avoidance,
	// not a security boundary; retry a few times on a uniqueness conflict.
	for attempt := 0; attempt < 3; attempt++ {
		username, err := federatedUsername(ident.Email)
		if err != nil {
			return nil, err
		}
		u = &model.User{
			Username:   username,
			Email:      strings.ToLower(strings.TrimSpace(ident.Email)),
			ExternalID: &ident.ExternalID,
			Provider:   model.ProviderGoogle,
			AvatarURL:  &ident.AvatarURL,
		}
		err = s.users.Create(ctx, u)
		if err == nil {
			// Reload so role assignments made by triggers or seeds are
			// reflected in the first token.
			return s.users.FindByID(ctx, u.ID)
		}
		if !errors.Is(err, repository.ErrUsernameExists) {
			return nil, err
		}
	}
	return nil, repository.ErrUsernameExists
}

// issueSession issues both tokens for the user and persists the refresh
// token in the ledger.
func (s *Service) issueSession(ctx context.Context, u *model.User) (*Session, error) {
	access, err := s.codec.IssueAccess(u.ID, u.Username, u.Email, u.Roles)
	if err != nil {
		return nil, err
	}
	refresh, exp, err := s.codec.IssueRefresh(u.ID)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Store(ctx, u.ID, refresh, exp); err != nil {
		return nil, err
	}
	return &Session{User: u.Summary(), AccessToken: access, RefreshToken: refresh}, nil
}

// shouldExtend implements the sliding-window policy: rotate only when the
// stored expiry is within the configured window of now.
func (s *Service) shouldExtend(expiresAt time.Time) bool {
	return time.Until(expiresAt) <= s.slidingWindow
}

// publish forwards a lifecycle event.  Failures are the publisher's problem;
// the surrounding operation never fails because of them.
func (s *Service) publish(ctx context.Context, eventType string, payload map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, eventType, payload)
}

func avatarChanged(current *string, reported string) bool {
	if reported == "" {
		return false
	}
	return current == nil || *current != reported
}

// federatedUsername derives a username from the local part of the email plus
// a short random suffix.
func federatedUsername(email string) (string, error) {
	local := email
	if i := strings.IndexByte(email, '@'); i > 0 {
		local = email[:i]
	}
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return local + "_" + hex.EncodeToString(buf), nil
}
