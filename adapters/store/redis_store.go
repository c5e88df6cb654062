package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/baliola/walletgate/core"
	"github.com/baliola/walletgate/ports"
)

// challenge records outlive their validity window so redeemed nonces stay
// visible to operators for a while; actual pruning is Redis key expiry.
const challengeRetention = 24 * time.Hour

// markUsedScript performs the used_at transition as a single atomic step on
// the server. Returns 1 only for the call that transitioned.
var markUsedScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
local used = redis.call('HGET', KEYS[1], 'used_at')
if used and used ~= '' then
	return 0
end
redis.call('HSET', KEYS[1], 'used_at', ARGV[1])
return 1
`)

// RedisStore implements the Store interface over Redis hashes. It suits
// deployments where the directory (bindings and identities) is mirrored into
// Redis by the provisioning service.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ ports.Store = (*RedisStore)(nil)

// NewRedisStore creates a new Redis store around an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "walletgate:",
	}
}

func (s *RedisStore) challengeKey(id string) string {
	return s.prefix + "nonce:" + id
}

func (s *RedisStore) nonceIndexKey(address, nonce string) string {
	return s.prefix + "nonce:index:" + strings.ToLower(address) + ":" + nonce
}

func (s *RedisStore) outstandingKey(address string) string {
	return s.prefix + "nonce:outstanding:" + strings.ToLower(address)
}

func (s *RedisStore) walletKey(address string) string {
	return s.prefix + "wallet:" + strings.ToLower(address)
}

func (s *RedisStore) identityKey(id string) string {
	return s.prefix + "identity:" + id
}

// InsertChallenge persists a challenge. The nonce index is claimed with
// SET NX, which doubles as the uniqueness check.
func (s *RedisStore) InsertChallenge(ctx context.Context, challenge *core.Challenge) error {
	retention := time.Until(challenge.ExpiresAt) + challengeRetention

	claimed, err := s.client.SetNX(ctx, s.nonceIndexKey(challenge.Address, challenge.Nonce), challenge.ID, retention).Result()
	if err != nil {
		return fmt.Errorf("claim nonce index: %w", err)
	}
	if !claimed {
		return core.ErrDuplicateNonce
	}

	key := s.challengeKey(challenge.ID)
	fields := map[string]any{
		"id":         challenge.ID,
		"address":    challenge.Address,
		"nonce":      challenge.Nonce,
		"message":    challenge.Message,
		"issued_at":  challenge.IssuedAt.UTC().UnixMilli(),
		"expires_at": challenge.ExpiresAt.UTC().UnixMilli(),
		"used_at":    "",
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, retention)
	pipe.SAdd(ctx, s.outstandingKey(challenge.Address), challenge.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	return nil
}

// FindUnredeemedChallenge resolves (address, nonce) through the index and
// filters out used or expired records.
func (s *RedisStore) FindUnredeemedChallenge(ctx context.Context, address, nonce string, now time.Time) (*core.Challenge, error) {
	id, err := s.client.Get(ctx, s.nonceIndexKey(address, nonce)).Result()
	if err == redis.Nil {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve nonce index: %w", err)
	}

	challenge, err := s.loadChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	if challenge.Address != strings.ToLower(address) || challenge.UsedAt != nil || !challenge.ExpiresAt.After(now) {
		return nil, core.ErrNotFound
	}
	return challenge, nil
}

func (s *RedisStore) loadChallenge(ctx context.Context, id string) (*core.Challenge, error) {
	fields, err := s.client.HGetAll(ctx, s.challengeKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	if len(fields) == 0 {
		return nil, core.ErrNotFound
	}

	issuedAt, err := strconv.ParseInt(fields["issued_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse issued_at: %w", err)
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	challenge := &core.Challenge{
		ID:        fields["id"],
		Address:   fields["address"],
		Nonce:     fields["nonce"],
		Message:   fields["message"],
		IssuedAt:  time.UnixMilli(issuedAt).UTC(),
		ExpiresAt: time.UnixMilli(expiresAt).UTC(),
	}
	if raw := fields["used_at"]; raw != "" {
		usedAt, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse used_at: %w", err)
		}
		t := time.UnixMilli(usedAt).UTC()
		challenge.UsedAt = &t
	}
	return challenge, nil
}

// MarkChallengeUsed runs the server-side compare-and-set.
func (s *RedisStore) MarkChallengeUsed(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := markUsedScript.Run(ctx, s.client,
		[]string{s.challengeKey(id)},
		now.UTC().UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("mark challenge used: %w", err)
	}
	return res == 1, nil
}

// ExpireOutstandingChallenges moves expiry to now for every unredeemed
// challenge of the address and clears the outstanding set.
func (s *RedisStore) ExpireOutstandingChallenges(ctx context.Context, address string, now time.Time) error {
	setKey := s.outstandingKey(address)
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("list outstanding challenges: %w", err)
	}

	nowMillis := now.UTC().UnixMilli()
	for _, id := range ids {
		key := s.challengeKey(id)
		used, err := s.client.HGet(ctx, key, "used_at").Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return fmt.Errorf("inspect challenge: %w", err)
		}
		if used != "" {
			continue
		}
		if err := s.client.HSet(ctx, key, "expires_at", nowMillis).Err(); err != nil {
			return fmt.Errorf("expire challenge: %w", err)
		}
	}

	if err := s.client.Del(ctx, setKey).Err(); err != nil {
		return fmt.Errorf("clear outstanding set: %w", err)
	}
	return nil
}

// FindWalletBinding resolves a binding by case-insensitive address.
func (s *RedisStore) FindWalletBinding(ctx context.Context, address string) (*core.WalletBinding, error) {
	fields, err := s.client.HGetAll(ctx, s.walletKey(address)).Result()
	if err != nil {
		return nil, fmt.Errorf("load wallet binding: %w", err)
	}
	if len(fields) == 0 {
		return nil, core.ErrNotFound
	}

	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	binding := &core.WalletBinding{
		ID:         fields["id"],
		IdentityID: fields["identity_id"],
		Address:    fields["address"],
		IsPrimary:  fields["is_primary"] == "1",
		IsVerified: fields["is_verified"] == "1",
		CreatedAt:  time.UnixMilli(createdAt).UTC(),
	}
	if raw := fields["last_used_at"]; raw != "" {
		lastUsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse last_used_at: %w", err)
		}
		t := time.UnixMilli(lastUsed).UTC()
		binding.LastUsedAt = &t
	}
	return binding, nil
}

// MarkWalletVerified records a successful ownership proof on the binding.
func (s *RedisStore) MarkWalletVerified(ctx context.Context, address string, now time.Time) error {
	key := s.walletKey(address)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check wallet binding: %w", err)
	}
	if exists == 0 {
		return core.ErrNotFound
	}

	err = s.client.HSet(ctx, key, map[string]any{
		"is_verified":  "1",
		"last_used_at": now.UTC().UnixMilli(),
	}).Err()
	if err != nil {
		return fmt.Errorf("mark wallet verified: %w", err)
	}
	return nil
}

// FindIdentity loads an identity by id.
func (s *RedisStore) FindIdentity(ctx context.Context, id string) (*core.Identity, error) {
	fields, err := s.client.HGetAll(ctx, s.identityKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	if len(fields) == 0 {
		return nil, core.ErrNotFound
	}

	return &core.Identity{
		ID:       fields["id"],
		FullName: fields["full_name"],
		Email:    fields["email"],
		Role:     core.Role(fields["role"]),
		IsActive: fields["is_active"] == "1",
	}, nil
}

// PutIdentity mirrors an identity record into Redis.
func (s *RedisStore) PutIdentity(ctx context.Context, identity *core.Identity) error {
	err := s.client.HSet(ctx, s.identityKey(identity.ID), map[string]any{
		"id":        identity.ID,
		"full_name": identity.FullName,
		"email":     identity.Email,
		"role":      string(identity.Role),
		"is_active": boolField(identity.IsActive),
	}).Err()
	if err != nil {
		return fmt.Errorf("put identity: %w", err)
	}
	return nil
}

// PutWalletBinding mirrors a wallet binding into Redis.
func (s *RedisStore) PutWalletBinding(ctx context.Context, binding *core.WalletBinding) error {
	createdAt := binding.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	fields := map[string]any{
		"id":          binding.ID,
		"identity_id": binding.IdentityID,
		"address":     strings.ToLower(binding.Address),
		"is_primary":  boolField(binding.IsPrimary),
		"is_verified": boolField(binding.IsVerified),
		"created_at":  createdAt.UTC().UnixMilli(),
	}
	if binding.LastUsedAt != nil {
		fields["last_used_at"] = binding.LastUsedAt.UTC().UnixMilli()
	}

	err := s.client.HSet(ctx, s.walletKey(binding.Address), fields).Err()
	if err != nil {
		return fmt.Errorf("put wallet binding: %w", err)
	}
	return nil
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
