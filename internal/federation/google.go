// Package federation exchanges OAuth authorization codes for verified
// identity assertions.  Issued tokens from the provider never leave this
// package; the session manager only sees the resolved identity.
package federation

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/movu/auth-service/internal/auth"
)

const userinfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// GoogleExchanger implements the identity-exchange collaborator against
// Google's OAuth 2.0 endpoints.
type GoogleExchanger struct {
	conf *oauth2.Config
}

func NewGoogleExchanger(clientID, clientSecret, redirectURL string) *GoogleExchanger {
	return &GoogleExchanger{conf: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
	}}
}

// StateToken returns a random value to bind a consent redirect to the
// callback that follows it.
func StateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// AuthURL returns the provider consent URL for the given anti-CSRF state.
func (g *GoogleExchanger) AuthURL(state string) string {
	return g.conf.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for the provider's identity
// assertion.  Any upstream failure is wrapped in auth.ErrFederation.
func (g *GoogleExchanger) Exchange(ctx context.Context, code string) (auth.FederatedIdentity, error) {
	tok, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return auth.FederatedIdentity{}, fmt.Errorf("%w: %v", auth.ErrFederation, err)
	}

	resp, err := g.conf.Client(ctx, tok).Get(userinfoURL)
	if err != nil {
		return auth.FederatedIdentity{}, fmt.Errorf("%w: %v", auth.ErrFederation, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return auth.FederatedIdentity{}, fmt.Errorf("%w: userinfo status %d", auth.ErrFederation, resp.StatusCode)
	}

	var info struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return auth.FederatedIdentity{}, fmt.Errorf("%w: %v", auth.ErrFederation, err)
	}
	if info.Sub == "" || info.Email == "" {
		return auth.FederatedIdentity{}, fmt.Errorf("%w: incomplete userinfo payload", auth.ErrFederation)
	}

	return auth.FederatedIdentity{
		ExternalID:    info.Sub,
		Email:         info.Email,
		Name:          info.Name,
		AvatarURL:     info.Picture,
		EmailVerified: info.EmailVerified,
	}, nil
}
