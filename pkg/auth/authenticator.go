package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/domain"
)

// SessionVerifier verifies browser session tokens
type SessionVerifier interface {
	Verify(token string) (*Identity, error)
}

// APIKeyAuthenticator resolves plaintext API keys
type APIKeyAuthenticator interface {
	AuthenticateAPIKey(ctx context.Context, token string) (*APIKey, error)
}

// Authenticator turns request credentials into a verified Identity
type Authenticator struct {
	sessions  SessionVerifier
	keys      APIKeyAuthenticator
	keyPrefix string
}

// NewAuthenticator creates an authenticator. Tokens starting with keyPrefix
// are treated as API keys, everything else as session tokens.
func NewAuthenticator(sessions SessionVerifier, keys APIKeyAuthenticator, keyPrefix string) *Authenticator {
	if keyPrefix == "" {
		keyPrefix = APIKeyPrefix
	}
	return &Authenticator{
		sessions:  sessions,
		keys:      keys,
		keyPrefix: keyPrefix,
	}
}

// Authenticate verifies the bearer credential on r
func (a *Authenticator) Authenticate(r *http.Request) (*Identity, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}

	if strings.HasPrefix(token, a.keyPrefix) {
		if a.keys == nil {
			return nil, domain.ErrUnauthenticated
		}
		key, err := a.keys.AuthenticateAPIKey(r.Context(), token)
		if err != nil {
			return nil, fmt.Errorf("api key rejected: %w", err)
		}
		return &Identity{
			UserID:        key.UserID,
			Method:        MethodAPIKey,
			APIKeyID:      key.ID,
			BoundTenantID: key.TenantID,
		}, nil
	}

	return a.sessions.Verify(token)
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// WithIdentity attaches a verified identity to ctx
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return contextkeys.WithIdentity(ctx, id)
}

// IdentityFromContext returns the verified identity attached to ctx
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextkeys.IdentityKey).(*Identity)
	return id, ok && id != nil
}
