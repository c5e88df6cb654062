package tokenizer

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/baliola/walletgate/core"
	"github.com/baliola/walletgate/ports"
)

// AudienceSession marks tokens minted by this service.
const AudienceSession = "session:access"

// JWTTokenizer signs session tokens with HMAC-SHA256. Verification walks an
// ordered key ring so a rotated-out secret keeps validating tokens it signed
// until they expire; only the first key ever signs.
type JWTTokenizer struct {
	signKey    []byte
	verifyKeys [][]byte
}

// NewJWTTokenizer creates a tokenizer. signKey signs new tokens;
// previousKeys are accepted for verification only.
func NewJWTTokenizer(signKey []byte, previousKeys ...[]byte) (ports.Tokenizer, error) {
	if len(signKey) == 0 {
		return nil, errors.New("signing key is required")
	}
	verifyKeys := append([][]byte{signKey}, previousKeys...)
	return &JWTTokenizer{signKey: signKey, verifyKeys: verifyKeys}, nil
}

// SessionToToken converts a session to a signed JWT string.
func (j *JWTTokenizer) SessionToToken(session *core.Session) (string, error) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.IdentityID,
			ID:        session.TokenID,
			Audience:  jwt.ClaimStrings{AudienceSession},
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
		Role:   session.Role,
		Wallet: session.Address,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signedToken, nil
}

// TokenToSession parses and verifies a JWT string against the key ring and
// returns the embedded session.
func (j *JWTTokenizer) TokenToSession(tokenStr string) (*core.Session, error) {
	var lastErr error
	for _, key := range j.verifyKeys {
		session, err := j.parseWithKey(tokenStr, key)
		if err == nil {
			return session, nil
		}
		lastErr = err
		// Only a signature mismatch justifies trying the next ring key;
		// expiry or structural failures are terminal for every key.
		if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			break
		}
	}
	return nil, lastErr
}

func (j *JWTTokenizer) parseWithKey(tokenStr string, key []byte) (*core.Session, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	}, jwt.WithAudience(AudienceSession), jwt.WithExpirationRequired())

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, core.ErrUnauthenticated
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}

	session := &core.Session{
		TokenID:    claims.ID,
		IdentityID: claims.Subject,
		Role:       claims.Role,
		Address:    claims.Wallet,
		IssuedAt:   claims.IssuedAt.Time,
		ExpiresAt:  claims.ExpiresAt.Time,
	}

	return session, nil
}
