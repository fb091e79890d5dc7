package model

import "time"

// RefreshToken mirrors the 'refresh_tokens' table.  Rows are never deleted;
// Revoked flips from false to true exactly once and a revoked row only
// remains for forensic inspection.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	Token     string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
