package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/baliola/walletgate/core"
	"github.com/baliola/walletgate/ports"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS auth_nonces (
	id TEXT PRIMARY KEY,
	wallet_address TEXT NOT NULL,
	nonce TEXT NOT NULL UNIQUE,
	message TEXT NOT NULL,
	issued_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	used_at INTEGER
);
CREATE INDEX IF NOT EXISTS ix_auth_nonces_addr ON auth_nonces (wallet_address);
CREATE INDEX IF NOT EXISTS ix_auth_nonces_expiry ON auth_nonces (expires_at);

CREATE TABLE IF NOT EXISTS identities (
	id TEXT PRIMARY KEY,
	full_name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS wallets (
	id TEXT PRIMARY KEY,
	identity_id TEXT NOT NULL REFERENCES identities (id) ON DELETE CASCADE,
	address TEXT NOT NULL,
	is_primary INTEGER NOT NULL DEFAULT 0,
	is_verified INTEGER NOT NULL DEFAULT 0,
	last_used_at INTEGER,
	created_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_wallets_address_lower ON wallets (lower(address));
CREATE UNIQUE INDEX IF NOT EXISTS ux_wallets_primary_per_identity
	ON wallets (identity_id) WHERE is_primary = 1;
`

// SQLiteStore implements the Store interface over a SQLite file. The
// mark-used transition is a single conditional UPDATE, so concurrent
// redemptions cannot both observe an unused challenge and both succeed.
type SQLiteStore struct {
	db *sql.DB
}

var _ ports.Store = (*SQLiteStore)(nil)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLiteStore opens (creating if needed) the auth database and applies
// the schema.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertChallenge persists a challenge record.
func (s *SQLiteStore) InsertChallenge(ctx context.Context, challenge *core.Challenge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_nonces (id, wallet_address, nonce, message, issued_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		challenge.ID, challenge.Address, challenge.Nonce, challenge.Message,
		toMillis(challenge.IssuedAt), toMillis(challenge.ExpiresAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrDuplicateNonce
		}
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

// FindUnredeemedChallenge returns the unused, unexpired challenge for (address, nonce).
func (s *SQLiteStore) FindUnredeemedChallenge(ctx context.Context, address, nonce string, now time.Time) (*core.Challenge, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, wallet_address, nonce, message, issued_at, expires_at
		FROM auth_nonces
		WHERE wallet_address = ? AND nonce = ? AND used_at IS NULL AND expires_at > ?`,
		strings.ToLower(address), nonce, toMillis(now),
	)

	var challenge core.Challenge
	var issuedAt, expiresAt int64
	err := row.Scan(&challenge.ID, &challenge.Address, &challenge.Nonce, &challenge.Message, &issuedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find challenge: %w", err)
	}

	challenge.IssuedAt = fromMillis(issuedAt)
	challenge.ExpiresAt = fromMillis(expiresAt)
	return &challenge, nil
}

// MarkChallengeUsed performs the atomic used_at transition. The WHERE clause
// repeats the used_at IS NULL check so only one of any racing redemptions
// sees an affected row.
func (s *SQLiteStore) MarkChallengeUsed(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE auth_nonces SET used_at = ? WHERE id = ? AND used_at IS NULL`,
		toMillis(now), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark challenge used: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// ExpireOutstandingChallenges invalidates all unredeemed challenges for the address.
func (s *SQLiteStore) ExpireOutstandingChallenges(ctx context.Context, address string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE auth_nonces SET expires_at = ?
		WHERE wallet_address = ? AND used_at IS NULL AND expires_at > ?`,
		toMillis(now), strings.ToLower(address), toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("expire outstanding challenges: %w", err)
	}
	return nil
}

// FindWalletBinding resolves a binding by case-insensitive address.
func (s *SQLiteStore) FindWalletBinding(ctx context.Context, address string) (*core.WalletBinding, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, identity_id, address, is_primary, is_verified, last_used_at, created_at
		FROM wallets WHERE lower(address) = ?`,
		strings.ToLower(address),
	)

	var binding core.WalletBinding
	var lastUsedAt sql.NullInt64
	var createdAt int64
	err := row.Scan(&binding.ID, &binding.IdentityID, &binding.Address,
		&binding.IsPrimary, &binding.IsVerified, &lastUsedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find wallet binding: %w", err)
	}

	if lastUsedAt.Valid {
		t := fromMillis(lastUsedAt.Int64)
		binding.LastUsedAt = &t
	}
	binding.CreatedAt = fromMillis(createdAt)
	return &binding, nil
}

// MarkWalletVerified records a successful ownership proof on the binding.
func (s *SQLiteStore) MarkWalletVerified(ctx context.Context, address string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE wallets SET is_verified = 1, last_used_at = ? WHERE lower(address) = ?`,
		toMillis(now), strings.ToLower(address),
	)
	if err != nil {
		return fmt.Errorf("mark wallet verified: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// FindIdentity loads an identity by id.
func (s *SQLiteStore) FindIdentity(ctx context.Context, id string) (*core.Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, full_name, email, role, is_active FROM identities WHERE id = ?`, id)

	var identity core.Identity
	err := row.Scan(&identity.ID, &identity.FullName, &identity.Email, &identity.Role, &identity.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find identity: %w", err)
	}
	return &identity, nil
}

// PutIdentity upserts an identity record.
func (s *SQLiteStore) PutIdentity(ctx context.Context, identity *core.Identity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (id, full_name, email, role, is_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			full_name = excluded.full_name,
			email = excluded.email,
			role = excluded.role,
			is_active = excluded.is_active`,
		identity.ID, identity.FullName, identity.Email, identity.Role, identity.IsActive,
	)
	if err != nil {
		return fmt.Errorf("put identity: %w", err)
	}
	return nil
}

// PutWalletBinding upserts a wallet binding, storing the address lowercase.
func (s *SQLiteStore) PutWalletBinding(ctx context.Context, binding *core.WalletBinding) error {
	createdAt := binding.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var lastUsedAt any
	if binding.LastUsedAt != nil {
		lastUsedAt = toMillis(*binding.LastUsedAt)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (id, identity_id, address, is_primary, is_verified, last_used_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			identity_id = excluded.identity_id,
			address = excluded.address,
			is_primary = excluded.is_primary,
			is_verified = excluded.is_verified,
			last_used_at = excluded.last_used_at`,
		binding.ID, binding.IdentityID, strings.ToLower(binding.Address),
		binding.IsPrimary, binding.IsVerified, lastUsedAt, toMillis(createdAt),
	)
	if err != nil {
		return fmt.Errorf("put wallet binding: %w", err)
	}
	return nil
}

// isUniqueViolation detects SQLite unique-constraint failures.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
