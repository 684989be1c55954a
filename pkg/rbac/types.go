package rbac

import (
	"fmt"
	"strings"

	"github.com/platinummonkey/warden/pkg/domain"
)

// Role is a tenant membership role. The set of roles is closed.
type Role string

const (
	RoleNone   Role = ""
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// RoleSuperAdmin is the platform role recorded in platform_admins. It is not a
// tenant role and never appears on a membership.
const RoleSuperAdmin = "system:superadmin"

// Roles returns the tenant roles from most junior to most senior
func Roles() []Role {
	return []Role{RoleMember, RoleAdmin, RoleOwner}
}

// ParseRole converts a role slug into a Role
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return RoleNone, fmt.Errorf("%w: %q", domain.ErrInvalidRole, s)
	}
	return r, nil
}

// Valid reports whether r is one of the tenant roles
func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleAdmin, RoleOwner:
		return true
	}
	return false
}

// Rank orders roles by seniority. RoleNone ranks below every tenant role.
func (r Role) Rank() int {
	switch r {
	case RoleMember:
		return 1
	case RoleAdmin:
		return 2
	case RoleOwner:
		return 3
	}
	return 0
}

// SeniorTo reports whether r is strictly senior to other
func (r Role) SeniorTo(other Role) bool {
	return r.Rank() > other.Rank()
}

func (r Role) String() string {
	return string(r)
}

// Capability is a named, fine-grained permission
type Capability string

const (
	CapUsersRead        Capability = "users.read"
	CapUsersWrite       Capability = "users.write"
	CapUsersDelete      Capability = "users.delete"
	CapRolesRead        Capability = "roles.read"
	CapRolesWrite       Capability = "roles.write"
	CapRolesDelete      Capability = "roles.delete"
	CapOwnersManage     Capability = "owners.manage"
	CapSettingsRead     Capability = "settings.read"
	CapSettingsWrite    Capability = "settings.write"
	CapTenantDeactivate Capability = "tenant.deactivate"
	CapAPIKeysRead      Capability = "api_keys.read"
	CapAPIKeysWrite     Capability = "api_keys.write"
	CapInvitationsWrite Capability = "invitations.write"
	CapAuditRead        Capability = "audit.read"
	CapBillingManage    Capability = "billing.manage"
	CapSystemConfig     Capability = "system.config"
)

// AllCapabilities returns every capability known to the evaluator
func AllCapabilities() []Capability {
	return []Capability{
		CapUsersRead,
		CapUsersWrite,
		CapUsersDelete,
		CapRolesRead,
		CapRolesWrite,
		CapRolesDelete,
		CapOwnersManage,
		CapSettingsRead,
		CapSettingsWrite,
		CapTenantDeactivate,
		CapAPIKeysRead,
		CapAPIKeysWrite,
		CapInvitationsWrite,
		CapAuditRead,
		CapBillingManage,
		CapSystemConfig,
	}
}

// ParseCapability converts a capability identifier into a Capability
func ParseCapability(s string) (Capability, error) {
	for _, c := range AllCapabilities() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown capability %q", domain.ErrInvalidInput, s)
}

// Combinator selects how a set of capabilities is evaluated
type Combinator int

const (
	// All requires every capability in the set
	All Combinator = iota
	// Any requires at least one capability in the set
	Any
)

func (c Combinator) String() string {
	if c == Any {
		return "any"
	}
	return "all"
}

// Subject is the part of a session the evaluator looks at
type Subject struct {
	Role       Role
	SuperAdmin bool
}

// Decision is the outcome of a capability check. Bypass is set when the
// check passed only because the subject is a super admin.
type Decision struct {
	Allowed bool `json:"allowed"`
	Bypass  bool `json:"bypass,omitempty"`
}
