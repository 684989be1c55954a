package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/domain"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
	"github.com/platinummonkey/warden/pkg/tenants"
)

// MembershipLookup returns the caller's active membership in an active tenant
type MembershipLookup interface {
	ActiveMembership(ctx context.Context, tenantID, userID uuid.UUID) (*tenants.Membership, error)
}

// TenantLookup is used to check that a tenant a super admin selects without
// a membership exists and is active
type TenantLookup interface {
	GetTenant(ctx context.Context, id uuid.UUID) (*tenants.Tenant, error)
}

// Resolver builds a Context from a verified identity. Memberships and the
// platform admin flag are read fresh on every call; nothing is cached across
// requests.
type Resolver struct {
	members    MembershipLookup
	tenants    TenantLookup
	admins     PlatformAdmins
	selections SelectionStore
	metrics    *observability.Metrics
	logger     *observability.Logger
}

// NewResolver creates a new Resolver. metrics may be nil.
func NewResolver(members MembershipLookup, tenantLookup TenantLookup, admins PlatformAdmins, selections SelectionStore, metrics *observability.Metrics, logger *observability.Logger) *Resolver {
	return &Resolver{
		members:    members,
		tenants:    tenantLookup,
		admins:     admins,
		selections: selections,
		metrics:    metrics,
		logger:     logger,
	}
}

// Resolve produces the session context for id.
//
// API keys act in the tenant they were issued for, whatever the request
// says. Browser sessions act in their stored selection, or in no tenant until
// one is selected. A selection that no longer matches an active membership
// fails with ErrTenantMismatch and is cleared.
func (r *Resolver) Resolve(ctx context.Context, id *auth.Identity) (sc *Context, err error) {
	method := "unknown"
	if id != nil {
		method = string(id.Method)
	}
	defer func() {
		if r.metrics != nil {
			r.metrics.SessionResolutionsTotal.WithLabelValues(method, resolutionOutcome(err)).Inc()
		}
	}()

	if id == nil || id.UserID == uuid.Nil {
		return nil, domain.ErrUnauthenticated
	}

	superAdmin, err := r.admins.IsSuperAdmin(ctx, id.UserID)
	if err != nil {
		return nil, err
	}

	switch id.Method {
	case auth.MethodAPIKey:
		if id.BoundTenantID == uuid.Nil {
			return nil, domain.ErrUnauthenticated
		}
		role, err := r.roleIn(ctx, id.BoundTenantID, id.UserID, superAdmin)
		if err != nil {
			return nil, err
		}
		return newContext(id, id.BoundTenantID, role, superAdmin), nil

	case auth.MethodSession:
		if id.SessionID == "" {
			return nil, domain.ErrUnauthenticated
		}
		selected, err := r.selections.Get(ctx, id.SessionID)
		if err != nil {
			return nil, err
		}
		if selected == uuid.Nil {
			return newContext(id, uuid.Nil, rbac.RoleNone, superAdmin), nil
		}

		role, err := r.roleIn(ctx, selected, id.UserID, superAdmin)
		if errors.Is(err, domain.ErrTenantMismatch) {
			if clearErr := r.selections.Clear(ctx, id.SessionID); clearErr != nil {
				r.logger.WithError(clearErr).Warn("Failed to clear stale tenant selection")
			}
		}
		if err != nil {
			return nil, err
		}
		return newContext(id, selected, role, superAdmin), nil
	}

	return nil, domain.ErrUnauthenticated
}

// SwitchTenant validates the caller's membership in tenantID, persists the
// selection and returns a new Context. The permission memo of current is not
// carried over.
func (r *Resolver) SwitchTenant(ctx context.Context, current *Context, tenantID uuid.UUID) (sc *Context, err error) {
	defer func() {
		if r.metrics != nil {
			r.metrics.TenantSwitchesTotal.WithLabelValues(resolutionOutcome(err)).Inc()
		}
	}()

	if current == nil {
		return nil, domain.ErrUnauthenticated
	}
	if current.method != auth.MethodSession {
		return nil, fmt.Errorf("%w: API keys are bound to one tenant", domain.ErrPermissionDenied)
	}
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("%w: tenant is required", domain.ErrInvalidInput)
	}

	superAdmin, err := r.admins.IsSuperAdmin(ctx, current.userID)
	if err != nil {
		return nil, err
	}
	role, err := r.roleIn(ctx, tenantID, current.userID, superAdmin)
	if err != nil {
		return nil, err
	}

	if err := r.selections.Set(ctx, current.sessionID, tenantID); err != nil {
		return nil, err
	}

	r.logger.WithFields(map[string]interface{}{
		"user_id":     current.userID.String(),
		"from_tenant": current.tenantID.String(),
		"to_tenant":   tenantID.String(),
	}).Info("Tenant switched")

	id := &auth.Identity{UserID: current.userID, Method: current.method, SessionID: current.sessionID}
	return newContext(id, tenantID, role, superAdmin), nil
}

// ClearSelection drops the stored selection of a browser session
func (r *Resolver) ClearSelection(ctx context.Context, current *Context) error {
	if current == nil || current.method != auth.MethodSession {
		return nil
	}
	return r.selections.Clear(ctx, current.sessionID)
}

// roleIn returns the user's role in tenantID. Super admins without a
// membership get rbac.RoleNone as long as the tenant is active; everyone else
// gets ErrTenantMismatch, which never reveals whether the tenant exists.
func (r *Resolver) roleIn(ctx context.Context, tenantID, userID uuid.UUID, superAdmin bool) (rbac.Role, error) {
	m, err := r.members.ActiveMembership(ctx, tenantID, userID)
	if err == nil {
		return m.Role, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return rbac.RoleNone, err
	}
	if !superAdmin {
		return rbac.RoleNone, domain.ErrTenantMismatch
	}

	adminCtx := postgres.WithScope(ctx, postgres.Scope{TenantID: tenantID, UserID: userID, SuperAdmin: true})
	t, err := r.tenants.GetTenant(adminCtx, tenantID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && !t.IsActive) {
		return rbac.RoleNone, domain.ErrTenantMismatch
	}
	if err != nil {
		return rbac.RoleNone, err
	}
	return rbac.RoleNone, nil
}

func resolutionOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, domain.ErrTenantMismatch):
		return "tenant_mismatch"
	case errors.Is(err, domain.ErrPermissionDenied):
		return "denied"
	default:
		return "error"
	}
}
