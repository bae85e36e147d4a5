package auth

import "errors"

var (
	// ErrNotFound marks an absent session, verification, membership or user.
	// Callers treat it as "proceed down the unauthenticated path", never as
	// a hard failure.
	ErrNotFound = errors.New("auth: not found")
	// ErrExpired marks a verification past its expiry. The record is deleted
	// as a side effect before this is returned.
	ErrExpired = errors.New("auth: expired")
	// ErrInvalidCredential covers wrong passwords, codes and signatures. It
	// deliberately carries no detail about which input was wrong.
	ErrInvalidCredential = errors.New("auth: invalid credential")
	// ErrConflict marks unique-key collisions: duplicate email or username
	// at signup, a connection owned by another account, a double invitation
	// claim.
	ErrConflict = errors.New("auth: conflict")
	// ErrUnauthorized marks a permission check that failed closed.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrInvalidInput marks malformed caller input.
	ErrInvalidInput = errors.New("auth: invalid input")
)
