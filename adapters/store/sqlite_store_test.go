package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baliola/walletgate/core"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreChallengeLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	challenge := &core.Challenge{
		ID:        "ch-1",
		Address:   testAddress,
		Nonce:     testNonce,
		Message:   "sign me",
		IssuedAt:  now,
		ExpiresAt: now.Add(5 * time.Minute),
	}
	require.NoError(t, s.InsertChallenge(ctx, challenge))

	// duplicate nonce violates the unique index
	dup := &core.Challenge{ID: "ch-2", Address: testAddress, Nonce: testNonce, Message: "x", IssuedAt: now, ExpiresAt: now.Add(time.Minute)}
	assert.ErrorIs(t, s.InsertChallenge(ctx, dup), core.ErrDuplicateNonce)

	got, err := s.FindUnredeemedChallenge(ctx, "0xAAAABBBBCCCCDDDDEEEEFFFF0000111122223333", testNonce, now)
	require.NoError(t, err)
	assert.Equal(t, "sign me", got.Message)
	assert.Equal(t, challenge.ExpiresAt, got.ExpiresAt)

	// expired challenge is invisible
	_, err = s.FindUnredeemedChallenge(ctx, testAddress, testNonce, now.Add(5*time.Minute))
	assert.ErrorIs(t, err, core.ErrNotFound)

	// the conditional update transitions exactly once
	ok, err := s.MarkChallengeUsed(ctx, challenge.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.MarkChallengeUsed(ctx, challenge.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.FindUnredeemedChallenge(ctx, testAddress, testNonce, now)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSQLiteStoreMarkUsedConcurrent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC()

	challenge := &core.Challenge{
		ID: "ch-race", Address: testAddress, Nonce: "race-nonce",
		Message: "m", IssuedAt: now, ExpiresAt: now.Add(time.Minute),
	}
	require.NoError(t, s.InsertChallenge(ctx, challenge))

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.MarkChallengeUsed(ctx, challenge.ID, now)
			assert.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for ok := range results {
		if ok {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestSQLiteStoreExpireOutstanding(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC()

	for i, nonce := range []string{"n-1", "n-2"} {
		require.NoError(t, s.InsertChallenge(ctx, &core.Challenge{
			ID: string(rune('a' + i)), Address: testAddress, Nonce: nonce,
			Message: "m", IssuedAt: now, ExpiresAt: now.Add(5 * time.Minute),
		}))
	}

	require.NoError(t, s.ExpireOutstandingChallenges(ctx, testAddress, now))

	for _, nonce := range []string{"n-1", "n-2"} {
		_, err := s.FindUnredeemedChallenge(ctx, testAddress, nonce, now)
		assert.ErrorIs(t, err, core.ErrNotFound, "nonce %s", nonce)
	}
}

func TestSQLiteStoreBindingsAndIdentities(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, s.PutIdentity(ctx, &core.Identity{
		ID: "emp-1", FullName: "Ada Example", Email: "ada@example.com",
		Role: core.RoleAdmin, IsActive: true,
	}))
	require.NoError(t, s.PutWalletBinding(ctx, &core.WalletBinding{
		ID: "w-1", IdentityID: "emp-1",
		Address: "0xAAAABBBBCCCCDDDDEEEEFFFF0000111122223333",
		IsPrimary: true, CreatedAt: now,
	}))

	binding, err := s.FindWalletBinding(ctx, "0xAaaaBBBBccccDDDDeeeeFFFF0000111122223333")
	require.NoError(t, err)
	assert.Equal(t, testAddress, binding.Address)
	assert.True(t, binding.IsPrimary)
	assert.False(t, binding.IsVerified)
	assert.Nil(t, binding.LastUsedAt)

	require.NoError(t, s.MarkWalletVerified(ctx, testAddress, now))
	binding, err = s.FindWalletBinding(ctx, testAddress)
	require.NoError(t, err)
	assert.True(t, binding.IsVerified)
	require.NotNil(t, binding.LastUsedAt)
	assert.Equal(t, now, *binding.LastUsedAt)

	identity, err := s.FindIdentity(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, core.RoleAdmin, identity.Role)
	assert.True(t, identity.IsActive)

	// deactivation is visible on the next read
	identity.IsActive = false
	require.NoError(t, s.PutIdentity(ctx, identity))
	identity, err = s.FindIdentity(ctx, "emp-1")
	require.NoError(t, err)
	assert.False(t, identity.IsActive)

	_, err = s.FindIdentity(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.MarkWalletVerified(ctx, "0x0000000000000000000000000000000000000009", now), core.ErrNotFound)
}
