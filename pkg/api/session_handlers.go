package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/session"
)

func sessionView(sc *session.Context) SessionResponse {
	resp := SessionResponse{
		UserID:       sc.UserID(),
		Role:         string(sc.Role()),
		IsSuperAdmin: sc.IsSuperAdmin(),
		Method:       string(sc.Method()),
		Capabilities: []string{},
	}
	if sc.HasTenant() {
		tenantID := sc.TenantID()
		resp.TenantID = &tenantID
	}
	for _, c := range sc.Role().Capabilities().List() {
		resp.Capabilities = append(resp.Capabilities, string(c))
	}
	return resp
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sc := session.MustFromContext(r.Context())
	httputil.WriteSuccess(w, sessionView(sc))
}

// switchTenant selects the tenant for the rest of the browser session. A null
// tenant_id clears the selection.
func (s *Server) switchTenant(w http.ResponseWriter, r *http.Request) {
	var req SwitchTenantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	current := session.MustFromContext(r.Context())

	if req.TenantID == nil {
		if current.Method() != auth.MethodSession {
			s.fail(w, r, errAPIKeySession)
			return
		}
		if err := s.resolver.ClearSelection(r.Context(), current); err != nil {
			s.fail(w, r, err)
			return
		}
		id := &auth.Identity{UserID: current.UserID(), Method: current.Method(), SessionID: current.SessionID()}
		httputil.WriteSuccess(w, sessionView(session.New(id, uuid.Nil, "", current.IsSuperAdmin())))
		return
	}

	next, err := s.resolver.SwitchTenant(r.Context(), current, *req.TenantID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rec := audit.NewRecord(r.WithContext(session.WithContext(r.Context(), next)),
		audit.ActionSessionSwitch, audit.TargetSession, next.TenantID().String())
	if current.HasTenant() {
		rec.Metadata = map[string]interface{}{"from_tenant": current.TenantID().String()}
	}
	s.emit(r, rec)

	httputil.WriteSuccess(w, sessionView(next))
}
