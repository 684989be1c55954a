package api

import (
	"net/http"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/domain"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/platinummonkey/warden/pkg/tenants"
)

func (s *Server) listInvitations(w http.ResponseWriter, r *http.Request) {
	sc := session.MustFromContext(r.Context())
	invitations, err := s.tenants.ListInvitations(r.Context(), sc.TenantID())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if invitations == nil {
		invitations = []*tenants.Invitation{}
	}
	httputil.WriteSuccess(w, InvitationListResponse{Invitations: invitations})
}

// createInvitation returns the invitation with its token. The token is not
// written to the audit trail.
func (s *Server) createInvitation(w http.ResponseWriter, r *http.Request) {
	sc := session.MustFromContext(r.Context())

	var req CreateInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !s.requireOwnersManage(w, r, req.Role) {
		return
	}

	inv, err := s.tenants.CreateInvitation(r.Context(), sc.TenantID(), req.Email, req.Role, sc.UserID())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rec := audit.NewRecord(r, audit.ActionInvitationCreate, audit.TargetInvitation, inv.ID.String())
	rec.Metadata = map[string]interface{}{"email": inv.Email, "role": string(inv.Role)}
	s.emit(r, rec)

	httputil.WriteCreated(w, inv)
}

func (s *Server) revokeInvitation(w http.ResponseWriter, r *http.Request) {
	sc := session.MustFromContext(r.Context())
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.tenants.RevokeInvitation(r.Context(), sc.TenantID(), id); err != nil {
		s.fail(w, r, err)
		return
	}

	s.emit(r, audit.NewRecord(r, audit.ActionInvitationRevoke, audit.TargetInvitation, id.String()))
	httputil.WriteNoContent(w)
}

// acceptInvitation redeems a token for the calling user. It needs no tenant
// selection; the token names the tenant.
func (s *Server) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	sc := session.MustFromContext(r.Context())
	if sc.Method() != auth.MethodSession {
		s.fail(w, r, errAPIKeySession)
		return
	}

	var req AcceptInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Token == "" {
		s.fail(w, r, domain.ErrInvalidInput)
		return
	}

	m, err := s.tenants.AcceptInvitation(r.Context(), req.Token, sc.UserID())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rec := audit.NewRecord(r, audit.ActionInvitationAccept, audit.TargetMembership, m.UserID.String())
	rec.TenantID = m.TenantID
	rec.Metadata = map[string]interface{}{"role": string(m.Role)}
	s.emit(r, rec)

	httputil.WriteSuccess(w, m)
}
