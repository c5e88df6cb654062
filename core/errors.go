package core

import "errors"

var (
	// ErrInvalidAddress is returned when the address is not a valid Ethereum address
	ErrInvalidAddress = errors.New("invalid ethereum address")

	// ErrChallengeCreation is returned when a challenge could not be persisted
	ErrChallengeCreation = errors.New("failed to create authentication challenge")

	// ErrInvalidChallenge is returned when no unexpired, unredeemed challenge
	// matches the request. Not-found, expired and already-used are deliberately
	// indistinguishable to the caller.
	ErrInvalidChallenge = errors.New("invalid or expired challenge")

	// ErrSignatureMismatch is returned when the recovered signer does not match
	// the claimed address, or the signature is malformed
	ErrSignatureMismatch = errors.New("signature mismatch")

	// ErrWalletNotLinked is returned when the address has no owning identity
	ErrWalletNotLinked = errors.New("wallet not linked to an account")

	// ErrIdentityInactive is returned when the owning identity is missing or deactivated
	ErrIdentityInactive = errors.New("identity inactive or not found")

	// ErrUnauthenticated is returned when a session token is missing, malformed,
	// incorrectly signed or expired
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden is returned when a valid session lacks the required role
	ErrForbidden = errors.New("insufficient role permission")

	// ErrNotFound is returned by store lookups that match no record
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateNonce is returned by the store when a nonce value collides
	ErrDuplicateNonce = errors.New("nonce already exists")
)
