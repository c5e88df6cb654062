package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/baliola/walletgate/core"
	"github.com/baliola/walletgate/ports"
)

// MemoryStore is an in-memory implementation of the Store interface for
// tests and single-node development. The mutex makes the mark-used check
// and write a single critical section, matching the conditional-update
// guarantee of the durable stores.
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]*core.Challenge     // by id
	nonceIndex map[string]string              // nonce -> challenge id
	bindings   map[string]*core.WalletBinding // by lowercase address
	identities map[string]*core.Identity      // by id
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		challenges: make(map[string]*core.Challenge),
		nonceIndex: make(map[string]string),
		bindings:   make(map[string]*core.WalletBinding),
		identities: make(map[string]*core.Identity),
	}
}

var _ ports.Store = (*MemoryStore)(nil)

// InsertChallenge persists a challenge, rejecting duplicate nonce values.
func (s *MemoryStore) InsertChallenge(ctx context.Context, challenge *core.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nonceIndex[challenge.Nonce]; exists {
		return core.ErrDuplicateNonce
	}

	stored := *challenge
	s.challenges[challenge.ID] = &stored
	s.nonceIndex[challenge.Nonce] = challenge.ID
	return nil
}

// FindUnredeemedChallenge returns the unused, unexpired challenge for
// (address, nonce), or core.ErrNotFound.
func (s *MemoryStore) FindUnredeemedChallenge(ctx context.Context, address, nonce string, now time.Time) (*core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.nonceIndex[nonce]
	if !ok {
		return nil, core.ErrNotFound
	}

	challenge, ok := s.challenges[id]
	if !ok || challenge.Address != strings.ToLower(address) {
		return nil, core.ErrNotFound
	}
	if challenge.UsedAt != nil || !challenge.ExpiresAt.After(now) {
		return nil, core.ErrNotFound
	}

	copied := *challenge
	return &copied, nil
}

// MarkChallengeUsed transitions used_at from nil exactly once.
func (s *MemoryStore) MarkChallengeUsed(ctx context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[id]
	if !ok || challenge.UsedAt != nil {
		return false, nil
	}

	usedAt := now
	challenge.UsedAt = &usedAt
	return true, nil
}

// ExpireOutstandingChallenges invalidates all unredeemed challenges for the address.
func (s *MemoryStore) ExpireOutstandingChallenges(ctx context.Context, address string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lower := strings.ToLower(address)
	for _, challenge := range s.challenges {
		if challenge.Address == lower && challenge.UsedAt == nil && challenge.ExpiresAt.After(now) {
			challenge.ExpiresAt = now
		}
	}
	return nil
}

// FindWalletBinding resolves a binding by case-insensitive address.
func (s *MemoryStore) FindWalletBinding(ctx context.Context, address string) (*core.WalletBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	binding, ok := s.bindings[strings.ToLower(address)]
	if !ok {
		return nil, core.ErrNotFound
	}

	copied := *binding
	return &copied, nil
}

// MarkWalletVerified records a successful ownership proof on the binding.
func (s *MemoryStore) MarkWalletVerified(ctx context.Context, address string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	binding, ok := s.bindings[strings.ToLower(address)]
	if !ok {
		return core.ErrNotFound
	}

	usedAt := now
	binding.IsVerified = true
	binding.LastUsedAt = &usedAt
	return nil
}

// FindIdentity loads an identity by id.
func (s *MemoryStore) FindIdentity(ctx context.Context, id string) (*core.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[id]
	if !ok {
		return nil, core.ErrNotFound
	}

	copied := *identity
	return &copied, nil
}

// PutIdentity stores an identity record.
func (s *MemoryStore) PutIdentity(ctx context.Context, identity *core.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *identity
	s.identities[identity.ID] = &copied
	return nil
}

// PutWalletBinding stores a wallet binding keyed by lowercase address.
func (s *MemoryStore) PutWalletBinding(ctx context.Context, binding *core.WalletBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *binding
	copied.Address = strings.ToLower(binding.Address)
	s.bindings[copied.Address] = &copied
	return nil
}
