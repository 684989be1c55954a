package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/domain"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/platinummonkey/warden/pkg/tenants"
)

// createTenant creates a tenant owned by the caller. API keys cannot create
// tenants.
func (s *Server) createTenant(w http.ResponseWriter, r *http.Request) {
	sc := session.MustFromContext(r.Context())
	if sc.Method() != auth.MethodSession {
		s.fail(w, r, errAPIKeySession)
		return
	}

	var req CreateTenantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	bypass, err := s.parentAdmittedByBypass(r, sc, req.ParentTenantID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	tenant, err := s.tenants.CreateTenant(r.Context(), tenants.CreateTenantRequest{
		Name:            req.Name,
		Slug:            req.Slug,
		OwnerUserID:     sc.UserID(),
		ParentTenantID:  req.ParentTenantID,
		CustomDomain:    req.CustomDomain,
		PlanCode:        req.PlanCode,
		EnabledModules:  req.EnabledModules,
		DefaultLanguage: req.DefaultLanguage,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rec := audit.NewRecord(r, audit.ActionTenantCreate, audit.TargetTenant, tenant.ID.String())
	rec.TenantID = tenant.ID
	rec.Metadata = map[string]interface{}{"slug": tenant.Slug}
	rec.TargetTenantID = tenant.ParentTenantID
	rec.PrivilegeBypass = bypass
	s.emit(r, rec)

	httputil.WriteCreated(w, tenant)
}

// parentAdmittedByBypass reports whether a super admin is attaching a child
// to a parent they do not own
func (s *Server) parentAdmittedByBypass(r *http.Request, sc *session.Context, parentID *uuid.UUID) (bool, error) {
	if parentID == nil || !sc.IsSuperAdmin() {
		return false, nil
	}
	m, err := s.tenants.ActiveMembership(r.Context(), *parentID, sc.UserID())
	if errors.Is(err, domain.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return m.Role != rbac.RoleOwner, nil
}

// listTenants lists the tenants the caller belongs to, or every active
// tenant for platform admins
func (s *Server) listTenants(w http.ResponseWriter, r *http.Request) {
	list, err := s.tenants.ListTenants(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*tenants.Tenant{}
	}
	httputil.WriteSuccess(w, TenantListResponse{Tenants: list})
}

func (s *Server) getCurrentTenant(w http.ResponseWriter, r *http.Request) {
	sc := session.MustFromContext(r.Context())
	tenant, err := s.tenants.GetTenant(r.Context(), sc.TenantID())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, tenant)
}

// updateCurrentTenant applies a settings update. Plan and module changes
// additionally need billing.manage.
func (s *Server) updateCurrentTenant(w http.ResponseWriter, r *http.Request) {
	sc := session.MustFromContext(r.Context())

	var req tenants.UpdateTenantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if (req.PlanCode != nil || req.EnabledModules != nil) && !s.requireCapability(w, r, rbac.CapBillingManage) {
		return
	}

	tenant, err := s.tenants.UpdateTenant(r.Context(), sc.TenantID(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rec := audit.NewRecord(r, audit.ActionTenantUpdate, audit.TargetTenant, tenant.ID.String())
	rec.Metadata = map[string]interface{}{"fields": updatedFields(req)}
	s.emit(r, rec)

	httputil.WriteSuccess(w, tenant)
}

func updatedFields(req tenants.UpdateTenantRequest) []string {
	fields := []string{}
	if req.Name != nil {
		fields = append(fields, "name")
	}
	if req.CustomDomain != nil {
		fields = append(fields, "custom_domain")
	}
	if req.PlanCode != nil {
		fields = append(fields, "plan_code")
	}
	if req.EnabledModules != nil {
		fields = append(fields, "enabled_modules")
	}
	if req.DefaultLanguage != nil {
		fields = append(fields, "default_language")
	}
	return fields
}

func (s *Server) deactivateCurrentTenant(w http.ResponseWriter, r *http.Request) {
	sc := session.MustFromContext(r.Context())
	if err := s.tenants.DeactivateTenant(r.Context(), sc.TenantID()); err != nil {
		s.fail(w, r, err)
		return
	}

	s.emit(r, audit.NewRecord(r, audit.ActionTenantDeactivate, audit.TargetTenant, sc.TenantID().String()))

	if err := s.resolver.ClearSelection(r.Context(), sc); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("Failed to clear tenant selection")
	}
	httputil.WriteNoContent(w)
}

func (s *Server) listChildren(w http.ResponseWriter, r *http.Request) {
	sc := session.MustFromContext(r.Context())
	children, err := s.tenants.ListChildren(r.Context(), sc.TenantID())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if children == nil {
		children = []*tenants.Tenant{}
	}
	httputil.WriteSuccess(w, TenantListResponse{Tenants: children})
}

// setParent moves a tenant in the hierarchy. The record is filed under the
// tenant being moved.
func (s *Server) setParent(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	var req SetParentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.tenants.SetParent(r.Context(), id, req.ParentTenantID); err != nil {
		s.fail(w, r, err)
		return
	}

	rec := audit.NewRecord(r, audit.ActionTenantReparent, audit.TargetTenant, id.String())
	rec.TenantID = id
	rec.TargetTenantID = req.ParentTenantID
	s.emit(r, rec)

	httputil.WriteNoContent(w)
}
