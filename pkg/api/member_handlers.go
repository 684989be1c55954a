package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/domain"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/platinummonkey/warden/pkg/tenants"
)

// requireOwnersManage rejects owner-level changes by anyone without
// owners.manage
func (s *Server) requireOwnersManage(w http.ResponseWriter, r *http.Request, roles ...rbac.Role) bool {
	for _, role := range roles {
		if role == rbac.RoleOwner {
			return s.requireCapability(w, r, rbac.CapOwnersManage)
		}
	}
	return true
}

func membershipRecord(r *http.Request, action audit.Action, userID uuid.UUID) *audit.Record {
	rec := audit.NewRecord(r, action, audit.TargetMembership, userID.String())
	rec.Metadata = map[string]interface{}{}
	return rec
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	sc := session.MustFromContext(r.Context())
	includeInactive, err := httputil.ParseQueryBool(r, "include_inactive", false)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	members, err := s.tenants.ListMembers(r.Context(), sc.TenantID(), includeInactive)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if members == nil {
		members = []*tenants.Membership{}
	}
	httputil.WriteSuccess(w, MemberListResponse{Members: members})
}

func (s *Server) getMember(w http.ResponseWriter, r *http.Request) {
	sc := session.MustFromContext(r.Context())
	userID, ok := httputil.ParsePathUUIDOrError(w, r, "user_id")
	if !ok {
		return
	}

	m, err := s.tenants.GetMember(r.Context(), sc.TenantID(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	sc := session.MustFromContext(r.Context())

	var req AddMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !s.requireOwnersManage(w, r, req.Role) {
		return
	}

	invitedBy := sc.UserID()
	m, err := s.tenants.AddMember(r.Context(), sc.TenantID(), req.UserID, req.Role, &invitedBy)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rec := membershipRecord(r, audit.ActionMemberAdd, m.UserID)
	rec.Metadata["role"] = string(m.Role)
	s.emit(r, rec)

	httputil.WriteCreated(w, m)
}

// changeRole updates a member's role. Promoting to or demoting from owner
// needs owners.manage.
func (s *Server) changeRole(w http.ResponseWriter, r *http.Request) {
	sc := session.MustFromContext(r.Context())
	userID, ok := httputil.ParsePathUUIDOrError(w, r, "user_id")
	if !ok {
		return
	}
	var req ChangeRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !req.Role.Valid() {
		s.fail(w, r, domain.ErrInvalidRole)
		return
	}

	current, err := s.tenants.GetMember(r.Context(), sc.TenantID(), userID)
	if err == nil && !current.IsActive {
		err = domain.ErrNotFound
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !s.requireOwnersManage(w, r, current.Role, req.Role) {
		return
	}

	m, err := s.tenants.ChangeRole(r.Context(), sc.TenantID(), userID, req.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rec := membershipRecord(r, audit.ActionMemberRoleChange, userID)
	rec.Metadata["from"] = string(current.Role)
	rec.Metadata["to"] = string(m.Role)
	s.emit(r, rec)

	httputil.WriteSuccess(w, m)
}

// removeMember deactivates a membership. Removing an owner needs
// owners.manage.
func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	sc := session.MustFromContext(r.Context())
	userID, ok := httputil.ParsePathUUIDOrError(w, r, "user_id")
	if !ok {
		return
	}

	current, err := s.tenants.GetMember(r.Context(), sc.TenantID(), userID)
	if err == nil && !current.IsActive {
		err = domain.ErrNotFound
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !s.requireOwnersManage(w, r, current.Role) {
		return
	}

	if err := s.tenants.RemoveMember(r.Context(), sc.TenantID(), userID); err != nil {
		s.fail(w, r, err)
		return
	}

	rec := membershipRecord(r, audit.ActionMemberRemove, userID)
	rec.Metadata["role"] = string(current.Role)
	s.emit(r, rec)

	httputil.WriteNoContent(w)
}
