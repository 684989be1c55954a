package auth

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/domain"
)

func TestTokenGenerator_GenerateToken(t *testing.T) {
	tg := NewTokenGenerator(APIKeyPrefix)
	tenantID := uuid.New()

	token, tokenHash, displayPrefix, err := tg.GenerateToken(tenantID)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(token, APIKeyPrefix))
	assert.Len(t, tokenHash, 64)
	assert.Equal(t, HashToken(token), tokenHash)
	assert.True(t, strings.HasPrefix(displayPrefix, APIKeyPrefix))
	assert.Len(t, displayPrefix, len(APIKeyPrefix)+8)
	assert.NotContains(t, displayPrefix, base64.RawURLEncoding.EncodeToString(tenantID[:]))

	parsed, err := tg.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, tenantID, parsed)
}

func TestTokenGenerator_Uniqueness(t *testing.T) {
	tg := NewTokenGenerator(InvitationPrefix)
	tenantID := uuid.New()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, hash, _, err := tg.GenerateToken(tenantID)
		require.NoError(t, err)
		assert.False(t, seen[token], "duplicate token")
		assert.False(t, seen[hash], "duplicate hash")
		seen[token] = true
		seen[hash] = true
	}
}

func TestTokenGenerator_ParseTokenRejectsMalformed(t *testing.T) {
	tg := NewTokenGenerator(APIKeyPrefix)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong prefix", "inv_abc"},
		{"empty body", APIKeyPrefix},
		{"missing separator", APIKeyPrefix + strings.Repeat("A", 40)},
		{"bad tenant encoding", APIKeyPrefix + strings.Repeat("*", 22) + "_secret"},
		{"bad secret encoding", APIKeyPrefix + base64.RawURLEncoding.EncodeToString(make([]byte, 16)) + "_$$$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tg.ParseToken(tt.token)
			assert.ErrorIs(t, err, domain.ErrUnauthenticated)
		})
	}
}

func TestTokenGenerator_ForgedTenantChangesHash(t *testing.T) {
	tg := NewTokenGenerator(APIKeyPrefix)
	victim, attacker := uuid.New(), uuid.New()

	token, hash, _, err := tg.GenerateToken(attacker)
	require.NoError(t, err)

	forged := APIKeyPrefix + base64.RawURLEncoding.EncodeToString(victim[:]) + token[len(APIKeyPrefix)+22:]
	parsed, err := tg.ParseToken(forged)
	require.NoError(t, err)
	assert.Equal(t, victim, parsed)
	assert.False(t, HashEqual(hash, HashToken(forged)))
}

func TestTokenGenerator_Matches(t *testing.T) {
	tg := NewTokenGenerator(APIKeyPrefix)
	assert.True(t, tg.Matches("wdn_x"))
	assert.False(t, tg.Matches("eyJhbGciOi"))
	assert.Equal(t, APIKeyPrefix, tg.Prefix())
}
