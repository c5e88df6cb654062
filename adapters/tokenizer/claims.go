package tokenizer

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/baliola/walletgate/core"
)

// SessionClaims combines the standard claims with wallet session fields.
// sub carries the identity id; jti the session token id.
type SessionClaims struct {
	jwt.RegisteredClaims
	Role   core.Role `json:"role"`
	Wallet string    `json:"wallet"` // lowercase authenticated address
}
