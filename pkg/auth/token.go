package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/domain"
)

const (
	// SecretLength is the number of random bytes in a token (32 bytes = 256 bits)
	SecretLength = 32

	// Well-known token prefixes
	APIKeyPrefix     = "wdn_"
	InvitationPrefix = "inv_"

	tenantPartLength = 22 // base64url of 16 bytes, no padding
	displayLength    = 8
)

// TokenGenerator generates opaque tokens bound to one tenant.
// Format: <prefix><base64url(tenant uuid)>_<base64url(32 random bytes)>
//
// The tenant part lets lookups run under that tenant's isolation scope. The
// stored hash covers the whole token, so a forged tenant part never matches.
type TokenGenerator struct {
	prefix string
}

// NewTokenGenerator creates a generator for the given prefix
func NewTokenGenerator(prefix string) *TokenGenerator {
	return &TokenGenerator{prefix: prefix}
}

// Prefix returns the generator's token prefix
func (tg *TokenGenerator) Prefix() string {
	return tg.prefix
}

// GenerateToken creates a new token bound to tenantID. Only the hash is
// stored; the plaintext is shown once.
func (tg *TokenGenerator) GenerateToken(tenantID uuid.UUID) (token string, tokenHash string, displayPrefix string, err error) {
	randomBytes := make([]byte, SecretLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	tenantPart := base64.RawURLEncoding.EncodeToString(tenantID[:])
	secret := base64.RawURLEncoding.EncodeToString(randomBytes)

	token = tg.prefix + tenantPart + "_" + secret
	return token, HashToken(token), tg.prefix + secret[:displayLength], nil
}

// ParseToken validates the token layout and returns the bound tenant
func (tg *TokenGenerator) ParseToken(token string) (uuid.UUID, error) {
	if !strings.HasPrefix(token, tg.prefix) {
		return uuid.Nil, fmt.Errorf("%w: token must start with %q", domain.ErrUnauthenticated, tg.prefix)
	}

	body := strings.TrimPrefix(token, tg.prefix)
	if len(body) < tenantPartLength+2 || body[tenantPartLength] != '_' {
		return uuid.Nil, fmt.Errorf("%w: malformed token", domain.ErrUnauthenticated)
	}

	raw, err := base64.RawURLEncoding.DecodeString(body[:tenantPartLength])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid token encoding", domain.ErrUnauthenticated)
	}
	tenantID, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid token tenant", domain.ErrUnauthenticated)
	}

	if _, err := base64.RawURLEncoding.DecodeString(body[tenantPartLength+1:]); err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid token encoding", domain.ErrUnauthenticated)
	}

	return tenantID, nil
}

// Matches reports whether token carries this generator's prefix
func (tg *TokenGenerator) Matches(token string) bool {
	return strings.HasPrefix(token, tg.prefix)
}

// HashToken computes the SHA256 hash of a token for lookup
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// HashEqual compares two token hashes in constant time
func HashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
