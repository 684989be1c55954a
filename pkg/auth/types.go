package auth

import (
	"time"

	"github.com/google/uuid"
)

// Method identifies how a request was authenticated
type Method string

const (
	MethodSession Method = "session"
	MethodAPIKey  Method = "api_key"
)

// Identity is a verified caller produced by the Authenticator
type Identity struct {
	UserID    uuid.UUID
	Method    Method
	SessionID string
	APIKeyID  uuid.UUID
	// BoundTenantID is set for API keys and is the only tenant they may act in
	BoundTenantID uuid.UUID
}

// APIKey is a tenant-bound credential
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	UserID     uuid.UUID  `json:"user_id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"key_prefix"`
	KeyHash    string     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the key can authenticate at t
func (k *APIKey) Active(t time.Time) bool {
	if k.RevokedAt != nil {
		return false
	}
	return k.ExpiresAt == nil || t.Before(*k.ExpiresAt)
}
