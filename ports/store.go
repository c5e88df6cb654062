package ports

import (
	"context"
	"time"

	"github.com/baliola/walletgate/core"
)

// Store persists challenges and resolves wallet bindings and identities.
// Lookups that match nothing return core.ErrNotFound.
type Store interface {
	// InsertChallenge persists a new challenge. A nonce collision returns
	// core.ErrDuplicateNonce so the caller can retry with a fresh value.
	InsertChallenge(ctx context.Context, challenge *core.Challenge) error

	// FindUnredeemedChallenge returns the challenge for (address, nonce) that
	// is both unused and unexpired at now.
	FindUnredeemedChallenge(ctx context.Context, address, nonce string, now time.Time) (*core.Challenge, error)

	// MarkChallengeUsed atomically transitions used_at from null to now.
	// It reports true only for the call that performed the transition; a
	// concurrent redemption that loses the race observes false.
	MarkChallengeUsed(ctx context.Context, id string, now time.Time) (bool, error)

	// ExpireOutstandingChallenges invalidates every unredeemed challenge for
	// the address, superseding them before a new one is issued.
	ExpireOutstandingChallenges(ctx context.Context, address string, now time.Time) error

	// FindWalletBinding resolves a binding by lowercase address.
	FindWalletBinding(ctx context.Context, address string) (*core.WalletBinding, error)

	// MarkWalletVerified records a successful ownership proof on the binding.
	MarkWalletVerified(ctx context.Context, address string, now time.Time) error

	// FindIdentity loads an identity by id.
	FindIdentity(ctx context.Context, id string) (*core.Identity, error)

	// PutIdentity and PutWalletBinding exist for provisioning and tests; the
	// authentication flow itself never creates directory records.
	PutIdentity(ctx context.Context, identity *core.Identity) error
	PutWalletBinding(ctx context.Context, binding *core.WalletBinding) error
}
