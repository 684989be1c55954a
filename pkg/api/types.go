package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/domain"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/tenants"
)

var errAPIKeySession = fmt.Errorf("%w: requires a browser session", domain.ErrPermissionDenied)

// SessionResponse describes the caller's resolved session
type SessionResponse struct {
	UserID       uuid.UUID  `json:"user_id"`
	TenantID     *uuid.UUID `json:"tenant_id"`
	Role         string     `json:"role,omitempty"`
	IsSuperAdmin bool       `json:"is_super_admin"`
	Method       string     `json:"method"`
	Capabilities []string   `json:"capabilities"`
}

// SwitchTenantRequest selects a tenant. A null tenant_id clears the selection.
type SwitchTenantRequest struct {
	TenantID *uuid.UUID `json:"tenant_id"`
}

// CreateTenantRequest is the body of POST /v1/tenants. The caller becomes the
// owner.
type CreateTenantRequest struct {
	Name            string     `json:"name"`
	Slug            string     `json:"slug"`
	ParentTenantID  *uuid.UUID `json:"parent_tenant_id,omitempty"`
	CustomDomain    *string    `json:"custom_domain,omitempty"`
	PlanCode        string     `json:"plan_code,omitempty"`
	EnabledModules  []string   `json:"enabled_modules,omitempty"`
	DefaultLanguage string     `json:"default_language,omitempty"`
}

// SetParentRequest reparents a tenant. A null parent detaches it.
type SetParentRequest struct {
	ParentTenantID *uuid.UUID `json:"parent_tenant_id"`
}

// TenantListResponse wraps a list of tenants
type TenantListResponse struct {
	Tenants []*tenants.Tenant `json:"tenants"`
}

// AddMemberRequest is the body of POST /v1/members
type AddMemberRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Role   rbac.Role `json:"role"`
}

// ChangeRoleRequest is the body of PUT /v1/members/{user_id}
type ChangeRoleRequest struct {
	Role rbac.Role `json:"role"`
}

// MemberListResponse wraps a list of memberships
type MemberListResponse struct {
	Members []*tenants.Membership `json:"members"`
}

// CreateInvitationRequest is the body of POST /v1/invitations
type CreateInvitationRequest struct {
	Email string    `json:"email"`
	Role  rbac.Role `json:"role"`
}

// AcceptInvitationRequest redeems an invitation token
type AcceptInvitationRequest struct {
	Token string `json:"token"`
}

// InvitationListResponse wraps a list of invitations
type InvitationListResponse struct {
	Invitations []*tenants.Invitation `json:"invitations"`
}

// CreateAPIKeyRequest is the body of POST /v1/api-keys
type CreateAPIKeyRequest struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CreateAPIKeyResponse carries the plaintext token, which is never shown again
type CreateAPIKeyResponse struct {
	*auth.APIKey
	Token string `json:"token"`
}

// APIKeyListResponse wraps a list of API keys
type APIKeyListResponse struct {
	APIKeys []*auth.APIKey `json:"api_keys"`
}

// AuditSearchResponse wraps a page of audit records
type AuditSearchResponse struct {
	Records []*audit.Record `json:"records"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}
