package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/baliola/walletgate/core"
	"github.com/baliola/walletgate/internal/eth"
	"github.com/baliola/walletgate/ports"
)

const (
	// DefaultChallengeTTL is how long a challenge stays redeemable.
	DefaultChallengeTTL = 5 * time.Minute

	// DefaultSessionTTL is how long an issued session token stays valid.
	DefaultSessionTTL = 7 * 24 * time.Hour

	// nonceInsertRetries bounds retries on the improbable nonce collision.
	nonceInsertRetries = 3
)

// challengeMessageTemplate is the exact text presented to the wallet for
// signing. Every byte matters: the redeemer verifies the signature against
// the stored rendering of this template, so any drift between what the
// client displays and what is stored changes the recovered address.
const challengeMessageTemplate = `%s wants you to sign in with your Ethereum account:
%s

This request will not trigger a blockchain transaction or cost any gas fees.

Nonce: %s`

// LoginResult is returned on successful challenge redemption.
type LoginResult struct {
	Token    string
	Identity *core.Identity
}

// AuthService implements wallet challenge-response authentication.
type AuthService struct {
	store     ports.Store
	tokenizer ports.Tokenizer
	eventPub  ports.EventPublisher
	logger    *slog.Logger

	domain       string
	challengeTTL time.Duration
	sessionTTL   time.Duration
	now          func() time.Time
}

// Option configures an AuthService.
type Option func(*AuthService)

// WithChallengeTTL overrides the challenge validity window.
func WithChallengeTTL(ttl time.Duration) Option {
	return func(s *AuthService) { s.challengeTTL = ttl }
}

// WithSessionTTL overrides the session token validity window.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *AuthService) { s.sessionTTL = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *AuthService) { s.logger = logger }
}

// NewAuthService creates a new authentication service. The domain names the
// requesting application inside the sign-in message.
func NewAuthService(store ports.Store, tokenizer ports.Tokenizer, eventPub ports.EventPublisher, domain string, opts ...Option) *AuthService {
	s := &AuthService{
		store:        store,
		tokenizer:    tokenizer,
		eventPub:     eventPub,
		logger:       slog.Default(),
		domain:       domain,
		challengeTTL: DefaultChallengeTTL,
		sessionTTL:   DefaultSessionTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateChallenge issues a new single-use challenge for the address and
// supersedes any outstanding ones. The returned message embeds the address
// as supplied by the caller; storage and lookups use the lowercase form.
func (s *AuthService) CreateChallenge(ctx context.Context, address string) (*core.ChallengeGrant, error) {
	lower, err := eth.NormalizeAddress(address)
	if err != nil {
		return nil, core.ErrInvalidAddress
	}

	now := s.now()
	if err := s.store.ExpireOutstandingChallenges(ctx, lower, now); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrChallengeCreation, err)
	}

	for attempt := 0; attempt < nonceInsertRetries; attempt++ {
		nonce, err := generateNonce()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrChallengeCreation, err)
		}

		challenge := &core.Challenge{
			ID:        uuid.New().String(),
			Address:   lower,
			Nonce:     nonce,
			Message:   fmt.Sprintf(challengeMessageTemplate, s.domain, address, nonce),
			IssuedAt:  now,
			ExpiresAt: now.Add(s.challengeTTL),
		}

		err = s.store.InsertChallenge(ctx, challenge)
		if errors.Is(err, core.ErrDuplicateNonce) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrChallengeCreation, err)
		}

		return &core.ChallengeGrant{
			Nonce:     challenge.Nonce,
			Message:   challenge.Message,
			ExpiresAt: challenge.ExpiresAt,
		}, nil
	}

	return nil, core.ErrChallengeCreation
}

// VerifyLogin redeems a challenge: it checks the signature over the stored
// message, consumes the challenge atomically, binds the address to its
// identity and issues a session token.
func (s *AuthService) VerifyLogin(ctx context.Context, address, nonce, signature string) (*LoginResult, error) {
	lower, err := eth.NormalizeAddress(address)
	if err != nil {
		return nil, core.ErrInvalidAddress
	}

	now := s.now()
	challenge, err := s.store.FindUnredeemedChallenge(ctx, lower, nonce, now)
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.ErrInvalidChallenge
	}
	if err != nil {
		return nil, fmt.Errorf("find challenge: %w", err)
	}

	ok, err := eth.VerifyPersonalSign(lower, challenge.Message, signature)
	if err != nil || !ok {
		return nil, core.ErrSignatureMismatch
	}

	// Conditional on used_at still being null; a racing redemption that
	// passed the lookup above loses here.
	marked, err := s.store.MarkChallengeUsed(ctx, challenge.ID, now)
	if err != nil {
		return nil, fmt.Errorf("mark challenge used: %w", err)
	}
	if !marked {
		return nil, core.ErrInvalidChallenge
	}

	identity, err := s.resolveIdentity(ctx, lower)
	if err != nil {
		return nil, err
	}

	if err := s.store.MarkWalletVerified(ctx, lower, now); err != nil {
		s.logger.Warn("mark wallet verified failed", "address", lower, "error", err)
	}

	session := &core.Session{
		TokenID:    uuid.New().String(),
		IdentityID: identity.ID,
		Role:       identity.Role,
		Address:    lower,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.sessionTTL),
	}

	token, err := s.tokenizer.SessionToToken(session)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	if s.eventPub != nil {
		if err := s.eventPub.PublishLogin(ctx, identity.ID, lower, session.TokenID); err != nil {
			s.logger.Warn("publish login event failed", "error", err)
		}
	}

	return &LoginResult{Token: token, Identity: identity}, nil
}

// resolveIdentity maps an authenticated address to an active identity.
func (s *AuthService) resolveIdentity(ctx context.Context, address string) (*core.Identity, error) {
	binding, err := s.store.FindWalletBinding(ctx, address)
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.ErrWalletNotLinked
	}
	if err != nil {
		return nil, fmt.Errorf("find wallet binding: %w", err)
	}

	identity, err := s.store.FindIdentity(ctx, binding.IdentityID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.ErrIdentityInactive
	}
	if err != nil {
		return nil, fmt.Errorf("find identity: %w", err)
	}
	if !identity.IsActive {
		return nil, core.ErrIdentityInactive
	}

	return identity, nil
}

// ValidateToken verifies a session token and re-resolves its identity, so
// deactivation takes effect on the next call rather than at token expiry.
// The returned session carries the directory's current role, not the one
// minted into the token.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*core.Session, error) {
	session, err := s.tokenizer.TokenToSession(token)
	if err != nil {
		return nil, core.ErrUnauthenticated
	}

	identity, err := s.store.FindIdentity(ctx, session.IdentityID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.ErrIdentityInactive
	}
	if err != nil {
		return nil, fmt.Errorf("find identity: %w", err)
	}
	if !identity.IsActive {
		return nil, core.ErrIdentityInactive
	}

	session.Role = identity.Role
	return session, nil
}

// Authorize checks the session role against an allow-set.
func (s *AuthService) Authorize(session *core.Session, roles ...core.Role) error {
	for _, role := range roles {
		if session.Role == role {
			return nil
		}
	}
	return core.ErrForbidden
}

// generateNonce returns a 256-bit hex-encoded random value.
func generateNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
