package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/movu/auth-service/internal/model"
	"github.com/movu/auth-service/internal/repository"
	"github.com/movu/auth-service/internal/token"
)

// ----- in-memory collaborators -----

type fakeUsers struct {
	mu      sync.Mutex
	nextID  uint64
	byID    map[uint64]*model.User
	roles   map[uint64][]string
	created int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{nextID: 1, byID: map[uint64]*model.User{}, roles: map[uint64][]string{}}
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return repository.ErrEmailExists
		}
		if existing.Username == u.Username {
			return repository.ErrUsernameExists
		}
	}
	u.ID = f.nextID
	f.nextID++
	cp := *u
	f.byID[u.ID] = &cp
	f.created++
	return nil
}

func (f *fakeUsers) Update(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.byID[u.ID]
	if !ok {
		return repository.ErrUserNotFound
	}
	stored.ExternalID = u.ExternalID
	stored.Provider = u.Provider
	stored.AvatarURL = u.AvatarURL
	return nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == strings.ToLower(email) {
			return f.load(u), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUsers) FindByExternalID(_ context.Context, externalID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.ExternalID != nil && *u.ExternalID == externalID {
			return f.load(u), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUsers) FindByID(_ context.Context, id uint64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return f.load(u), nil
}

// load copies the stored row and resolves current roles, like the SQL repo.
func (f *fakeUsers) load(u *model.User) *model.User {
	cp := *u
	cp.Roles = append([]string(nil), f.roles[u.ID]...)
	return &cp
}

type fakeLedger struct {
	mu   sync.Mutex
	rows map[string]*model.RefreshToken
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: map[string]*model.RefreshToken{}}
}

func (f *fakeLedger) Store(_ context.Context, userID uint64, tok string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[tok] = &model.RefreshToken{UserID: userID, Token: tok, ExpiresAt: expiresAt}
	return nil
}

func (f *fakeLedger) Find(_ context.Context, tok string) (*model.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[tok]
	if !ok || rec.Revoked {
		return nil, repository.ErrTokenNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeLedger) Revoke(_ context.Context, tok string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.rows[tok]; ok {
		rec.Revoked = true
	}
	return nil
}

func (f *fakeLedger) RevokeAll(_ context.Context, userID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.rows {
		if rec.UserID == userID {
			rec.Revoked = true
		}
	}
	return nil
}

// Rotate mirrors the SQL implementation's conditional revoke: the whole
// revoke+insert happens under one lock and only a caller that finds the old
// row live wins.
func (f *fakeLedger) Rotate(_ context.Context, oldTok string, userID uint64, newTok string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[oldTok]
	if !ok || rec.Revoked {
		return repository.ErrTokenNotFound
	}
	rec.Revoked = true
	f.rows[newTok] = &model.RefreshToken{UserID: userID, Token: newTok, ExpiresAt: expiresAt}
	return nil
}

func (f *fakeLedger) setExpiry(tok string, expiresAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.rows[tok]; ok {
		rec.ExpiresAt = expiresAt
	}
}

func (f *fakeLedger) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, rec := range f.rows {
		if !rec.Revoked {
			n++
		}
	}
	return n
}

type fakeHasher struct{ hashCalls int }

func (h *fakeHasher) Hash(plain string) (string, error) {
	h.hashCalls++
	return "digest:" + plain, nil
}

func (h *fakeHasher) Verify(plain, digest string) bool {
	return digest == "digest:"+plain
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func (p *recordingPublisher) has(eventType string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e == eventType {
			return true
		}
	}
	return false
}

// ----- harness -----

type env struct {
	svc    *Service
	users  *fakeUsers
	ledger *fakeLedger
	hasher *fakeHasher
	events *recordingPublisher
	codec  *token.Codec
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		users:  newFakeUsers(),
		ledger: newFakeLedger(),
		hasher: &fakeHasher{},
		events: &recordingPublisher{},
		codec:  token.NewCodec("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour),
	}
	e.svc = NewService(e.users, e.ledger, e.codec, e.hasher, e.events, 24*time.Hour, zap.NewNop())
	return e
}

func (e *env) register(t *testing.T, username, email, password string) model.Summary {
	t.Helper()
	u, err := e.svc.Register(context.Background(), username, email, password)
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return u
}

func (e *env) login(t *testing.T, email, password string) *Session {
	t.Helper()
	sess, err := e.svc.Login(context.Background(), email, password)
	if err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	return sess
}

// ----- registration and login -----

func TestRegisterSucceedsOnce(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "alice", "alice@example.com", "s3cret")
	if u.ID == 0 || u.Username != "alice" || u.Email != "alice@example.com" {
		t.Errorf("summary = %+v", u)
	}
	if !e.events.has(EventUserRegistered) {
		t.Error("user.registered not published")
	}

	_, err := e.svc.Register(context.Background(), "alice2", "alice@example.com", "other")
	if !errors.Is(err, repository.ErrEmailExists) {
		t.Fatalf("second register = %v, want ErrEmailExists", err)
	}
	// The duplicate check runs before hashing.
	if e.hasher.hashCalls != 1 {
		t.Errorf("hash calls = %d, want 1 (no hashing for duplicate email)", e.hasher.hashCalls)
	}
}

func TestLoginReturnsCurrentRoleClaims(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "alice", "alice@example.com", "s3cret")
	e.users.roles[u.ID] = []string{"admin", "user"}

	sess := e.login(t, "alice@example.com", "s3cret")
	claims, err := e.codec.VerifyAccess(sess.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.UserID != u.ID {
		t.Errorf("subject = %d, want %d", claims.UserID, u.ID)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "admin" || claims.Roles[1] != "user" {
		t.Errorf("roles = %v, want stored roles", claims.Roles)
	}
	if e.ledger.liveCount() != 1 {
		t.Errorf("live refresh tokens = %d, want 1", e.ledger.liveCount())
	}
	if !e.events.has(EventUserLoggedIn) {
		t.Error("user.logged_in not published")
	}
}

func TestLoginFailuresIndistinguishable(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice", "alice@example.com", "s3cret")

	_, unknownErr := e.svc.Login(context.Background(), "nobody@example.com", "whatever")
	_, wrongErr := e.svc.Login(context.Background(), "alice@example.com", "wrong")

	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("errors = %v / %v, want ErrInvalidCredentials for both", unknownErr, wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Error("unknown-email and wrong-password failures are distinguishable")
	}
}

func TestLoginFederatedOnlyAccountRejectsPassword(t *testing.T) {
	e := newEnv(t)
	ext := "google-sub-1"
	avatar := "https://example.com/a.png"
	u := &model.User{Username: "carol_x", Email: "carol@example.com", ExternalID: &ext, Provider: model.ProviderGoogle, AvatarURL: &avatar}
	if err := e.users.Create(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.Login(context.Background(), "carol@example.com", "anything"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("login against federated-only account = %v, want ErrInvalidCredentials", err)
	}
}

// ----- refresh and rotation -----

func TestRefreshOutsideWindowReusesToken(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice", "alice@example.com", "s3cret")
	sess := e.login(t, "alice@example.com", "s3cret")

	// Two days of lifetime remain; the one-day window has not been reached.
	e.ledger.setExpiry(sess.RefreshToken, time.Now().UTC().Add(48*time.Hour))

	got, err := e.svc.Refresh(context.Background(), sess.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got.RefreshToken != sess.RefreshToken {
		t.Error("refresh token rotated outside the sliding window")
	}
	if got.AccessToken == sess.AccessToken {
		t.Error("access token was not reissued")
	}
	if e.ledger.liveCount() != 1 {
		t.Errorf("live refresh tokens = %d, want 1 (no new row)", e.ledger.liveCount())
	}
	if !e.events.has(EventTokenRefreshed) {
		t.Error("token.refreshed not published")
	}
}

func TestRefreshInsideWindowRotates(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice", "alice@example.com", "s3cret")
	sess := e.login(t, "alice@example.com", "s3cret")

	// Twelve hours remain, inside the one-day window: rotate.
	e.ledger.setExpiry(sess.RefreshToken, time.Now().UTC().Add(12*time.Hour))

	got, err := e.svc.Refresh(context.Background(), sess.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got.RefreshToken == sess.RefreshToken {
		t.Fatal("refresh token not rotated inside the sliding window")
	}

	// The consumed token is dead: replaying it must fail.
	if _, err := e.svc.Refresh(context.Background(), sess.RefreshToken); !errors.Is(err, repository.ErrTokenNotFound) {
		t.Fatalf("replay of rotated token = %v, want ErrTokenNotFound", err)
	}

	// The replacement works.
	if _, err := e.svc.Refresh(context.Background(), got.RefreshToken); err != nil {
		t.Fatalf("refresh with rotated token: %v", err)
	}
}

func TestConcurrentRefreshRotatesExactlyOnce(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice", "alice@example.com", "s3cret")
	sess := e.login(t, "alice@example.com", "s3cret")
	e.ledger.setExpiry(sess.RefreshToken, time.Now().UTC().Add(12*time.Hour))

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.svc.Refresh(context.Background(), sess.RefreshToken)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, repository.ErrTokenNotFound):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("successes = %d, want exactly 1", successes)
	}
}

func TestRefreshExpiredLedgerRow(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice", "alice@example.com", "s3cret")
	sess := e.login(t, "alice@example.com", "s3cret")

	// Signature still verifies but the stored row is past expiry.
	e.ledger.setExpiry(sess.RefreshToken, time.Now().UTC().Add(-time.Minute))

	if _, err := e.svc.Refresh(context.Background(), sess.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Refresh = %v, want ErrTokenExpired", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice", "alice@example.com", "s3cret")
	sess := e.login(t, "alice@example.com", "s3cret")

	if _, err := e.svc.Refresh(context.Background(), sess.AccessToken); !errors.Is(err, token.ErrInvalidToken) {
		t.Fatalf("Refresh(access token) = %v, want ErrInvalidToken", err)
	}
}

func TestRefreshReloadsRoles(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "alice", "alice@example.com", "s3cret")
	e.users.roles[u.ID] = []string{"user"}
	sess := e.login(t, "alice@example.com", "s3cret")

	// Role membership changes after issuance; the next access token must
	// carry the new set, not the stale claims.
	e.users.roles[u.ID] = []string{"user", "admin"}

	got, err := e.svc.Refresh(context.Background(), sess.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	claims, err := e.codec.VerifyAccess(got.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if len(claims.Roles) != 2 || claims.Roles[1] != "admin" {
		t.Errorf("roles = %v, want refreshed [user admin]", claims.Roles)
	}
}

// ----- logout -----

func TestLogoutRevokesAndIsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice", "alice@example.com", "s3cret")
	sess := e.login(t, "alice@example.com", "s3cret")

	if err := e.svc.Logout(context.Background(), sess.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if !e.events.has(EventUserLoggedOut) {
		t.Error("user.logged_out not published")
	}
	// Logging out an already-dead token is still a successful logout.
	if err := e.svc.Logout(context.Background(), sess.RefreshToken); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if _, err := e.svc.Refresh(context.Background(), sess.RefreshToken); !errors.Is(err, repository.ErrTokenNotFound) {
		t.Fatalf("refresh after logout = %v, want ErrTokenNotFound", err)
	}
}

func TestLogoutRejectsForgedToken(t *testing.T) {
	e := newEnv(t)
	if err := e.svc.Logout(context.Background(), "not-a-token"); !errors.Is(err, token.ErrInvalidToken) {
		t.Fatalf("Logout(garbage) = %v, want ErrInvalidToken", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "alice", "alice@example.com", "s3cret")
	a := e.login(t, "alice@example.com", "s3cret")
	b := e.login(t, "alice@example.com", "s3cret")

	if err := e.svc.LogoutAll(context.Background(), u.ID); err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}
	for _, tok := range []string{a.RefreshToken, b.RefreshToken} {
		if _, err := e.svc.Refresh(context.Background(), tok); !errors.Is(err, repository.ErrTokenNotFound) {
			t.Fatalf("refresh after LogoutAll = %v, want ErrTokenNotFound", err)
		}
	}
}

// ----- federated login -----

func fedIdent() FederatedIdentity {
	return FederatedIdentity{
		ExternalID:    "google-sub-9",
		Email:         "carol@example.com",
		Name:          "Carol",
		AvatarURL:     "https://example.com/carol.png",
		EmailVerified: true,
	}
}

func TestFederatedLoginCreatesUser(t *testing.T) {
	e := newEnv(t)
	sess, err := e.svc.LoginWithFederatedIdentity(context.Background(), fedIdent())
	if err != nil {
		t.Fatalf("LoginWithFederatedIdentity: %v", err)
	}
	if !strings.HasPrefix(sess.User.Username, "carol_") {
		t.Errorf("generated username = %q, want carol_ prefix", sess.User.Username)
	}
	u, err := e.users.FindByID(context.Background(), sess.User.ID)
	if err != nil {
		t.Fatal(err)
	}
	if u.Provider != model.ProviderGoogle || u.ExternalID == nil || u.PasswordHash != nil {
		t.Errorf("created user = %+v", u)
	}
}

func TestFederatedLoginIdempotent(t *testing.T) {
	e := newEnv(t)
	first, err := e.svc.LoginWithFederatedIdentity(context.Background(), fedIdent())
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := e.svc.LoginWithFederatedIdentity(context.Background(), fedIdent())
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if first.User.ID != second.User.ID {
		t.Errorf("user ids differ: %d vs %d", first.User.ID, second.User.ID)
	}
	if e.users.created != 1 {
		t.Errorf("users created = %d, want 1", e.users.created)
	}
}

func TestFederatedLoginLinksLocalAccount(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "carol", "carol@example.com", "s3cret")

	sess, err := e.svc.LoginWithFederatedIdentity(context.Background(), fedIdent())
	if err != nil {
		t.Fatalf("LoginWithFederatedIdentity: %v", err)
	}
	if sess.User.ID != u.ID {
		t.Fatalf("linked to user %d, want existing %d", sess.User.ID, u.ID)
	}
	linked, err := e.users.FindByID(context.Background(), u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if linked.Provider != model.ProviderGoogle || linked.ExternalID == nil || *linked.ExternalID != "google-sub-9" {
		t.Errorf("linked user = %+v", linked)
	}
	// The local password digest survives linking.
	if linked.PasswordHash == nil {
		t.Error("password digest lost while linking")
	}
}

func TestFederatedLoginUpdatesAvatar(t *testing.T) {
	e := newEnv(t)
	first, err := e.svc.LoginWithFederatedIdentity(context.Background(), fedIdent())
	if err != nil {
		t.Fatalf("first login: %v", err)
	}

	changed := fedIdent()
	changed.AvatarURL = "https://example.com/carol-new.png"
	if _, err := e.svc.LoginWithFederatedIdentity(context.Background(), changed); err != nil {
		t.Fatalf("second login: %v", err)
	}

	u, err := e.users.FindByID(context.Background(), first.User.ID)
	if err != nil {
		t.Fatal(err)
	}
	if u.AvatarURL == nil || *u.AvatarURL != changed.AvatarURL {
		t.Errorf("avatar = %v, want %q", u.AvatarURL, changed.AvatarURL)
	}
}
