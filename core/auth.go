package core

import "time"

// Role is the authorization tier of an identity. The set is closed.
type Role string

const (
	RoleUser     Role = "USER"
	RoleApprover Role = "APPROVER"
	RoleAdmin    Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleApprover, RoleAdmin:
		return true
	}
	return false
}

// Challenge is a single-use authentication challenge bound to an address.
// The message is the exact text the wallet must sign; verification always
// runs against the stored message, never a client-supplied one.
type Challenge struct {
	ID        string     // Unique identifier for the challenge
	Address   string     // Lowercase Ethereum address the challenge is bound to
	Nonce     string     // Random nonce embedded in the message
	Message   string     // Exact text to be signed
	IssuedAt  time.Time  // When the challenge was created
	ExpiresAt time.Time  // When the challenge expires
	UsedAt    *time.Time // Set exactly once on successful redemption
}

// WalletBinding maps an Ethereum address to its owning identity.
// An address belongs to at most one identity, case-insensitively.
type WalletBinding struct {
	ID         string
	IdentityID string
	Address    string // stored lowercase
	IsPrimary  bool   // at most one primary binding per identity
	IsVerified bool   // ownership proven by a successful redemption
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// Identity is the account a wallet authenticates as. It is owned by the
// directory; this subsystem only reads it and rejects inactive accounts.
type Identity struct {
	ID       string
	FullName string
	Email    string
	Role     Role
	IsActive bool
}

// Session is the authenticated state carried by a session token.
type Session struct {
	TokenID    string // jti claim
	IdentityID string // sub claim
	Role       Role   // role claim; refreshed from the directory on validation
	Address    string // wallet claim, lowercase
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// ChallengeGrant is what the client receives from a challenge request.
type ChallengeGrant struct {
	Nonce     string
	Message   string
	ExpiresAt time.Time
}
