package tenants

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/rbac"
)

// Tenant is an organization whose data is isolated from every other tenant
type Tenant struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Slug            string     `json:"slug"`
	CustomDomain    *string    `json:"custom_domain,omitempty"`
	ParentTenantID  *uuid.UUID `json:"parent_tenant_id,omitempty"`
	PlanCode        string     `json:"plan_code"`
	EnabledModules  []string   `json:"enabled_modules"`
	DefaultLanguage string     `json:"default_language"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeactivatedAt   *time.Time `json:"deactivated_at,omitempty"`
}

// Membership is the edge between a user and a tenant
type Membership struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  uuid.UUID  `json:"tenant_id"`
	UserID    uuid.UUID  `json:"user_id"`
	Role      rbac.Role  `json:"role"`
	IsActive  bool       `json:"is_active"`
	InvitedBy *uuid.UUID `json:"invited_by,omitempty"`
	JoinedAt  time.Time  `json:"joined_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Invitation is a pending offer of membership
type Invitation struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	Email      string     `json:"email"`
	Role       rbac.Role  `json:"role"`
	Token      string     `json:"token,omitempty"` // only set on creation
	InvitedBy  uuid.UUID  `json:"invited_by"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy *uuid.UUID `json:"accepted_by,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Pending reports whether the invitation can still be accepted at t
func (i *Invitation) Pending(t time.Time) bool {
	return i.AcceptedAt == nil && i.RevokedAt == nil && t.Before(i.ExpiresAt)
}

// CreateTenantRequest represents a request to create a tenant
type CreateTenantRequest struct {
	Name            string     `json:"name"`
	Slug            string     `json:"slug"`
	OwnerUserID     uuid.UUID  `json:"-"`
	ParentTenantID  *uuid.UUID `json:"parent_tenant_id,omitempty"`
	CustomDomain    *string    `json:"custom_domain,omitempty"`
	PlanCode        string     `json:"plan_code,omitempty"`
	EnabledModules  []string   `json:"enabled_modules,omitempty"`
	DefaultLanguage string     `json:"default_language,omitempty"`
}

// UpdateTenantRequest represents a settings update. Nil fields are unchanged.
type UpdateTenantRequest struct {
	Name            *string   `json:"name,omitempty"`
	CustomDomain    *string   `json:"custom_domain,omitempty"`
	PlanCode        *string   `json:"plan_code,omitempty"`
	EnabledModules  *[]string `json:"enabled_modules,omitempty"`
	DefaultLanguage *string   `json:"default_language,omitempty"`
}

// Directory is the authoritative registry of tenants
type Directory interface {
	CreateTenant(ctx context.Context, req CreateTenantRequest) (*Tenant, error)
	GetTenant(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error)
	ListTenants(ctx context.Context) ([]*Tenant, error)
	UpdateTenant(ctx context.Context, id uuid.UUID, req UpdateTenantRequest) (*Tenant, error)
	DeactivateTenant(ctx context.Context, id uuid.UUID) error
	ListChildren(ctx context.Context, id uuid.UUID) ([]*Tenant, error)
	SetParent(ctx context.Context, id uuid.UUID, parentID *uuid.UUID) error
}

// MemberStore manages memberships and roles
type MemberStore interface {
	AddMember(ctx context.Context, tenantID, userID uuid.UUID, role rbac.Role, invitedBy *uuid.UUID) (*Membership, error)
	ChangeRole(ctx context.Context, tenantID, userID uuid.UUID, role rbac.Role) (*Membership, error)
	RemoveMember(ctx context.Context, tenantID, userID uuid.UUID) error
	ListMembers(ctx context.Context, tenantID uuid.UUID, includeInactive bool) ([]*Membership, error)
	GetMember(ctx context.Context, tenantID, userID uuid.UUID) (*Membership, error)
	ActiveMembership(ctx context.Context, tenantID, userID uuid.UUID) (*Membership, error)
}

// InvitationStore manages invitations
type InvitationStore interface {
	CreateInvitation(ctx context.Context, tenantID uuid.UUID, email string, role rbac.Role, invitedBy uuid.UUID) (*Invitation, error)
	ListInvitations(ctx context.Context, tenantID uuid.UUID) ([]*Invitation, error)
	RevokeInvitation(ctx context.Context, tenantID, invitationID uuid.UUID) error
	AcceptInvitation(ctx context.Context, token string, userID uuid.UUID) (*Membership, error)
	PurgeExpiredInvitations(ctx context.Context) (int64, error)
}

// Service combines the tenant directory, membership store and invitations
type Service interface {
	Directory
	MemberStore
	InvitationStore
}
