package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type subjectAuthorizer struct {
	subject Subject
	memo    *Memo
}

func (a *subjectAuthorizer) Authorize(mode Combinator, caps ...Capability) Decision {
	return a.memo.EvaluateSet(a.subject, mode, caps...)
}

func authorizerFor(s *Subject) AuthorizerFunc {
	return func(r *http.Request) (Authorizer, bool) {
		if s == nil {
			return nil, false
		}
		return &subjectAuthorizer{subject: *s, memo: NewMemo()}, true
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name       string
		subject    *Subject
		wantStatus int
	}{
		{"no session", nil, http.StatusUnauthorized},
		{"member denied", &Subject{Role: RoleMember}, http.StatusForbidden},
		{"admin allowed", &Subject{Role: RoleAdmin}, http.StatusOK},
		{"super admin allowed", &Subject{SuperAdmin: true}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := NewPermissionMiddleware(authorizerFor(tt.subject))
			w := httptest.NewRecorder()
			pm.RequirePermission(CapUsersWrite)(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/members", nil))
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRequireAllAndAny(t *testing.T) {
	member := &Subject{Role: RoleMember}
	pm := NewPermissionMiddleware(authorizerFor(member))

	w := httptest.NewRecorder()
	pm.RequireAllPermissions(CapUsersRead, CapAuditRead)(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	pm.RequireAnyPermission(CapUsersRead, CapAuditRead)(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPermissionMiddleware_Observer(t *testing.T) {
	var observed []Decision
	pm := NewPermissionMiddleware(authorizerFor(&Subject{SuperAdmin: true}), func(r *http.Request, mode Combinator, caps []Capability, d Decision) {
		observed = append(observed, d)
	})

	w := httptest.NewRecorder()
	pm.RequirePermission(CapTenantDeactivate)(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []Decision{{Allowed: true, Bypass: true}}, observed)
}

func TestPermissionMiddleware_GenericForbiddenBody(t *testing.T) {
	pm := NewPermissionMiddleware(authorizerFor(&Subject{Role: RoleMember}))
	w := httptest.NewRecorder()
	pm.RequirePermission(CapRolesDelete)(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"forbidden"}`, w.Body.String())
}
