package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestSessionTokens_IssueAndVerify(t *testing.T) {
	tokens := NewSessionTokens(testSecret, "warden", time.Hour)
	userID := uuid.New()

	token, sessionID, expiresAt, err := tokens.Issue(userID)
	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	id, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, id.UserID)
	assert.Equal(t, sessionID, id.SessionID)
	assert.Equal(t, MethodSession, id.Method)
	assert.Equal(t, uuid.Nil, id.BoundTenantID)
}

func TestSessionTokens_Expired(t *testing.T) {
	tokens := NewSessionTokens(testSecret, "warden", time.Minute)
	issued := time.Now().Add(-time.Hour)
	tokens.now = func() time.Time { return issued }

	token, _, _, err := tokens.Issue(uuid.New())
	require.NoError(t, err)

	tokens.now = time.Now
	_, err = tokens.Verify(token)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestSessionTokens_RejectsForeignTokens(t *testing.T) {
	tokens := NewSessionTokens(testSecret, "warden", time.Hour)
	userID := uuid.New()

	otherIssuer, _, _, err := NewSessionTokens(testSecret, "someone-else", time.Hour).Issue(userID)
	require.NoError(t, err)
	otherKey, _, _, err := NewSessionTokens("ffffffffffffffffffffffffffffffff", "warden", time.Hour).Issue(userID)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, SessionClaims{
		SessionID: "sid",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "warden",
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSession, err := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "warden",
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"wrong issuer":       otherIssuer,
		"wrong key":          otherKey,
		"alg none":           unsigned,
		"missing session id": noSession,
		"garbage":            "not.a.jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.Verify(token)
			assert.ErrorIs(t, err, domain.ErrUnauthenticated)
		})
	}
}
