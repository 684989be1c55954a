package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action names an audited mutation
type Action string

const (
	ActionTenantCreate        Action = "tenant.create"
	ActionTenantUpdate        Action = "tenant.update"
	ActionTenantDeactivate    Action = "tenant.deactivate"
	ActionTenantReparent      Action = "tenant.reparent"
	ActionMemberAdd           Action = "member.add"
	ActionMemberRoleChange    Action = "member.role_change"
	ActionMemberRemove        Action = "member.remove"
	ActionInvitationCreate    Action = "invitation.create"
	ActionInvitationRevoke    Action = "invitation.revoke"
	ActionInvitationAccept    Action = "invitation.accept"
	ActionAPIKeyCreate        Action = "api_key.create"
	ActionAPIKeyRevoke        Action = "api_key.revoke"
	ActionSessionSwitch       Action = "session.switch_tenant"
	ActionPermissionDenied    Action = "authz.denied"
	ActionPermissionBypass    Action = "authz.bypass"
	ActionPlatformAdminGrant  Action = "platform_admin.grant"
	ActionPlatformAdminRevoke Action = "platform_admin.revoke"
)

// Status represents the outcome of an audited action
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusDenied  Status = "denied"
)

// TargetType represents the kind of entity an action touched
type TargetType string

const (
	TargetTenant        TargetType = "tenant"
	TargetMembership    TargetType = "membership"
	TargetInvitation    TargetType = "invitation"
	TargetAPIKey        TargetType = "api_key"
	TargetSession       TargetType = "session"
	TargetPlatformAdmin TargetType = "platform_admin"
	TargetEndpoint      TargetType = "endpoint"
)

// Record is one append-only audit entry
type Record struct {
	ID              uuid.UUID              `json:"id"`
	TenantID        uuid.UUID              `json:"tenant_id"`
	ActorUserID     *uuid.UUID             `json:"actor_user_id,omitempty"`
	Action          Action                 `json:"action"`
	TargetType      TargetType             `json:"target_type"`
	TargetID        string                 `json:"target_id,omitempty"`
	TargetTenantID  *uuid.UUID             `json:"target_tenant_id,omitempty"`
	Status          Status                 `json:"status"`
	PrivilegeBypass bool                   `json:"privilege_bypass"`
	RequestID       string                 `json:"request_id,omitempty"`
	IPAddress       string                 `json:"ip_address,omitempty"`
	UserAgent       string                 `json:"user_agent,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// SearchFilter represents filters for searching one tenant's audit records
type SearchFilter struct {
	StartTime   *time.Time
	EndTime     *time.Time
	ActorUserID *uuid.UUID
	Actions     []Action
	Status      *Status
	TargetType  TargetType
	TargetID    string
	BypassOnly  bool

	Limit  int
	Offset int
}

const (
	defaultSearchLimit = 100
	maxSearchLimit     = 1000
)

// EffectiveLimit returns the page size Search uses for f
func (f SearchFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return defaultSearchLimit
	case f.Limit > maxSearchLimit:
		return maxSearchLimit
	}
	return f.Limit
}

// ExportFormat represents the format for exporting audit records
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson"
)
