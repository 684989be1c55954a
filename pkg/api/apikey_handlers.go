package api

import (
	"net/http"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/session"
)

func (s *Server) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	sc := session.MustFromContext(r.Context())
	keys, err := s.apiKeys.ListAPIKeys(r.Context(), sc.TenantID())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if keys == nil {
		keys = []*auth.APIKey{}
	}
	httputil.WriteSuccess(w, APIKeyListResponse{APIKeys: keys})
}

// createAPIKey issues a key bound to the current tenant and the caller
func (s *Server) createAPIKey(w http.ResponseWriter, r *http.Request) {
	sc := session.MustFromContext(r.Context())

	var req CreateAPIKeyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	key, token, err := s.apiKeys.CreateAPIKey(r.Context(), sc.TenantID(), sc.UserID(), req.Name, req.ExpiresAt)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rec := audit.NewRecord(r, audit.ActionAPIKeyCreate, audit.TargetAPIKey, key.ID.String())
	rec.Metadata = map[string]interface{}{"name": key.Name, "key_prefix": key.KeyPrefix}
	s.emit(r, rec)

	httputil.WriteCreated(w, CreateAPIKeyResponse{APIKey: key, Token: token})
}

func (s *Server) revokeAPIKey(w http.ResponseWriter, r *http.Request) {
	sc := session.MustFromContext(r.Context())
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.apiKeys.RevokeAPIKey(r.Context(), sc.TenantID(), id); err != nil {
		s.fail(w, r, err)
		return
	}

	s.emit(r, audit.NewRecord(r, audit.ActionAPIKeyRevoke, audit.TargetAPIKey, id.String()))
	httputil.WriteNoContent(w)
}
