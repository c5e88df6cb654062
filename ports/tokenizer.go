package ports

import "github.com/baliola/walletgate/core"

// Tokenizer converts between sessions and signed token strings.
type Tokenizer interface {
	// SessionToToken mints a signed, self-contained token for the session.
	SessionToToken(session *core.Session) (string, error)

	// TokenToSession verifies a token string (signature and expiry) and
	// returns the embedded session. Any failure maps to core.ErrUnauthenticated
	// at the service layer.
	TokenToSession(token string) (*core.Session, error)
}
