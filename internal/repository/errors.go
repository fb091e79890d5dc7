// Package repository provides MySQL-backed persistence for users, roles and
// refresh tokens.  Sentinel errors let the service and handler layers
// distinguish failure scenarios without inspecting driver errors.
package repository

import "errors"

// ErrEmailExists is returned when an insert would violate the unique email
// constraint. Handlers translate this into an HTTP 409 response.
var ErrEmailExists = errors.New("email already registered")

// ErrUsernameExists is returned when an insert would violate the unique
// username constraint (generated federated usernames retry on it).
var ErrUsernameExists = errors.New("username already taken")

// ErrUserNotFound is returned when no user row matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// ErrRoleNotFound is returned when no role row matches the given name.
var ErrRoleNotFound = errors.New("role not found")

// ErrRoleExists is returned when creating a role whose name is taken.
var ErrRoleExists = errors.New("role already exists")

// ErrRoleAssigned is returned when assigning a (user, role) pair that
// already exists.
var ErrRoleAssigned = errors.New("user already has this role")

// ErrRoleNotAssigned is returned when unassigning a (user, role) pair that
// does not exist.
var ErrRoleNotAssigned = errors.New("user does not have this role")

// ErrTokenNotFound is returned by ledger lookups and rotations when no live
// (non-revoked) refresh token row matches.  A revoked row is deliberately
// reported the same way as a missing one: for liveness purposes it is absent,
// the row only remains for forensic inspection.
var ErrTokenNotFound = errors.New("refresh token not found or revoked")
