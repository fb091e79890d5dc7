package auth

import "errors"

// ErrInvalidCredentials is returned for both an unknown email and a wrong
// password.  The two cases are deliberately indistinguishable to the caller
// so that login cannot be used to enumerate registered emails.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrTokenExpired is returned when a refresh token verifies cryptographically
// but its ledger row is past expiry.  Kept distinct from the codec's invalid
// token error because signature and ledger lifetimes can diverge under
// misconfiguration.
var ErrTokenExpired = errors.New("refresh token expired")

// ErrFederation is returned when the upstream identity exchange fails.
var ErrFederation = errors.New("federated identity exchange failed")
