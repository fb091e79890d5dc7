package model

import "time"

// Auth providers recorded on a user row.
const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

// User mirrors the 'users' table.  PasswordHash is nil for federated-only
// accounts and ExternalID is nil for local-only accounts; after a successful
// authentication a user always has at least one of the two.
type User struct {
	ID           uint64
	Username     string
	Email        string
	PasswordHash *string
	ExternalID   *string // identity provider subject, unique when present
	Provider     string  // ProviderLocal | ProviderGoogle
	AvatarURL    *string
	Roles        []string // resolved role names, loaded with the user
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasCredential reports whether the user can authenticate at all.
func (u *User) HasCredential() bool {
	return u.PasswordHash != nil || u.ExternalID != nil
}

// Summary is the caller-facing projection of a user: identifiers and roles,
// never the password digest.
type Summary struct {
	ID       uint64   `json:"user_id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles,omitempty"`
}

// Summary builds the external projection of the user.
func (u *User) Summary() Summary {
	return Summary{ID: u.ID, Username: u.Username, Email: u.Email, Roles: u.Roles}
}
