package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/domain"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
)

// APIKeyStore manages tenant-bound API keys
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, tenantID, userID uuid.UUID, name string, expiresAt *time.Time) (*APIKey, string, error)
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*APIKey, error)
	RevokeAPIKey(ctx context.Context, tenantID, keyID uuid.UUID) error
	AuthenticateAPIKey(ctx context.Context, token string) (*APIKey, error)
}

// PostgresAPIKeyStore stores API keys in the api_keys table
type PostgresAPIKeyStore struct {
	iso       *postgres.Isolator
	generator *TokenGenerator
	now       func() time.Time
}

// NewPostgresAPIKeyStore creates an API key store
func NewPostgresAPIKeyStore(iso *postgres.Isolator, prefix string) *PostgresAPIKeyStore {
	if prefix == "" {
		prefix = APIKeyPrefix
	}
	return &PostgresAPIKeyStore{
		iso:       iso,
		generator: NewTokenGenerator(prefix),
		now:       time.Now,
	}
}

// Generator exposes the key format so the authenticator can route tokens
func (s *PostgresAPIKeyStore) Generator() *TokenGenerator {
	return s.generator
}

const apiKeyColumns = `id, tenant_id, user_id, name, key_prefix, key_hash, created_at, expires_at, last_used_at, revoked_at`

func scanAPIKey(row interface{ Scan(...interface{}) error }) (*APIKey, error) {
	k := &APIKey{}
	var expiresAt, lastUsedAt, revokedAt sql.NullTime
	if err := row.Scan(&k.ID, &k.TenantID, &k.UserID, &k.Name, &k.KeyPrefix, &k.KeyHash,
		&k.CreatedAt, &expiresAt, &lastUsedAt, &revokedAt); err != nil {
		return nil, err
	}
	k.ExpiresAt = nullTime(expiresAt)
	k.LastUsedAt = nullTime(lastUsedAt)
	k.RevokedAt = nullTime(revokedAt)
	return k, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// CreateAPIKey issues a key bound to tenantID. The plaintext key is returned once.
func (s *PostgresAPIKeyStore) CreateAPIKey(ctx context.Context, tenantID, userID uuid.UUID, name string, expiresAt *time.Time) (*APIKey, string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 255 {
		return nil, "", fmt.Errorf("%w: name must be 1-255 characters", domain.ErrInvalidInput)
	}
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return nil, "", fmt.Errorf("%w: expiry must be in the future", domain.ErrInvalidInput)
	}

	token, hash, prefix, err := s.generator.GenerateToken(tenantID)
	if err != nil {
		return nil, "", err
	}

	var key *APIKey
	err = s.iso.Run(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO api_keys (id, tenant_id, user_id, name, key_prefix, key_hash, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+apiKeyColumns,
			uuid.New(), tenantID, userID, name, prefix, hash, expiresAt,
		)
		var err error
		key, err = scanAPIKey(row)
		return err
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to create api key: %w", err)
	}

	return key, token, nil
}

// ListAPIKeys lists every key of the tenant, newest first
func (s *PostgresAPIKeyStore) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*APIKey, error) {
	var keys []*APIKey
	err := s.iso.Run(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT `+apiKeyColumns+` FROM api_keys WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			k, err := scanAPIKey(rows)
			if err != nil {
				return fmt.Errorf("failed to scan api key: %w", err)
			}
			keys = append(keys, k)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

// RevokeAPIKey revokes a key. Revoked keys stop authenticating immediately.
func (s *PostgresAPIKeyStore) RevokeAPIKey(ctx context.Context, tenantID, keyID uuid.UUID) error {
	return s.iso.Run(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE api_keys SET revoked_at = NOW() WHERE id = $1 AND tenant_id = $2 AND revoked_at IS NULL`,
			keyID, tenantID)
		if err != nil {
			return fmt.Errorf("failed to revoke api key: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// AuthenticateAPIKey resolves a plaintext key. The lookup runs under the
// tenant encoded in the key, so a key can never resolve outside its tenant.
func (s *PostgresAPIKeyStore) AuthenticateAPIKey(ctx context.Context, token string) (*APIKey, error) {
	tenantID, err := s.generator.ParseToken(token)
	if err != nil {
		return nil, err
	}
	hash := HashToken(token)

	var key *APIKey
	err = s.iso.RunIn(ctx, postgres.Scope{TenantID: tenantID}, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1 AND tenant_id = $2`, hash, tenantID)
		k, err := scanAPIKey(row)
		if err != nil {
			return err
		}
		if !HashEqual(k.KeyHash, hash) || !k.Active(s.now()) {
			return domain.ErrUnauthenticated
		}

		if _, err := tx.ExecContext(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, k.ID); err != nil {
			return fmt.Errorf("failed to touch api key: %w", err)
		}
		key = k
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: unknown api key", domain.ErrUnauthenticated)
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}
