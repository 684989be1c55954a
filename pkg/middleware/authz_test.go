package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/session"
)

type captureEmitter struct {
	mu      sync.Mutex
	records []*audit.Record
}

func (e *captureEmitter) Emit(_ context.Context, rec *audit.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, rec)
}

func requestWithSession(sc *session.Context) *http.Request {
	r := httptest.NewRequest("POST", "/v1/members", nil)
	if sc == nil {
		return r
	}
	return r.WithContext(session.WithContext(r.Context(), sc))
}

func TestPermissionMiddleware_AllowsAndCounts(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	emitter := &captureEmitter{}
	guard := NewPermissionMiddleware(metrics, emitter)

	sc := session.New(&auth.Identity{UserID: uuid.New()}, uuid.New(), rbac.RoleAdmin, false)
	w := httptest.NewRecorder()
	guard.RequirePermission(rbac.CapUsersWrite)(okHandler).ServeHTTP(w, requestWithSession(sc))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuthorizationDecisionsTotal.WithLabelValues("users.write", "allowed")))
	assert.Empty(t, emitter.records)
}

func TestPermissionMiddleware_DenialIsAudited(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	emitter := &captureEmitter{}
	guard := NewPermissionMiddleware(metrics, emitter)

	userID, tenantID := uuid.New(), uuid.New()
	sc := session.New(&auth.Identity{UserID: userID}, tenantID, rbac.RoleMember, false)
	w := httptest.NewRecorder()
	guard.RequireAllPermissions(rbac.CapUsersWrite, rbac.CapUsersRead)(okHandler).ServeHTTP(w, requestWithSession(sc))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuthorizationDecisionsTotal.WithLabelValues("users.write,users.read", "denied")))

	require.Len(t, emitter.records, 1)
	rec := emitter.records[0]
	assert.Equal(t, audit.ActionPermissionDenied, rec.Action)
	assert.Equal(t, audit.StatusDenied, rec.Status)
	assert.Equal(t, tenantID, rec.TenantID)
	assert.Equal(t, "POST /v1/members", rec.TargetID)
	assert.Equal(t, "member", rec.Metadata["role"])
	assert.Equal(t, "all", rec.Metadata["mode"])
}

func TestPermissionMiddleware_SuperAdminBypassCounted(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	guard := NewPermissionMiddleware(metrics, nil)

	sc := session.New(&auth.Identity{UserID: uuid.New()}, uuid.New(), rbac.RoleNone, true)
	w := httptest.NewRecorder()
	guard.RequirePermission(rbac.CapTenantDeactivate)(okHandler).ServeHTTP(w, requestWithSession(sc))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PrivilegeBypassTotal.WithLabelValues("tenant.deactivate")))
	assert.True(t, sc.PrivilegeBypassed())
}

func TestPermissionMiddleware_BypassIsAudited(t *testing.T) {
	emitter := &captureEmitter{}
	guard := NewPermissionMiddleware(nil, emitter)

	tenantID := uuid.New()
	sc := session.New(&auth.Identity{UserID: uuid.New()}, tenantID, rbac.RoleNone, true)
	r := httptest.NewRequest("GET", "/v1/audit", nil)
	r = r.WithContext(session.WithContext(r.Context(), sc))
	w := httptest.NewRecorder()
	guard.RequirePermission(rbac.CapAuditRead)(okHandler).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, emitter.records, 1)
	rec := emitter.records[0]
	assert.Equal(t, audit.ActionPermissionBypass, rec.Action)
	assert.Equal(t, audit.StatusSuccess, rec.Status)
	assert.True(t, rec.PrivilegeBypass)
	assert.Equal(t, tenantID, rec.TenantID)
	assert.Equal(t, "GET /v1/audit", rec.TargetID)
	assert.Equal(t, "audit.read", rec.Metadata["capabilities"])
}

func TestPermissionMiddleware_HeldCapabilityNotAuditedForSuperAdmin(t *testing.T) {
	emitter := &captureEmitter{}
	guard := NewPermissionMiddleware(nil, emitter)

	sc := session.New(&auth.Identity{UserID: uuid.New()}, uuid.New(), rbac.RoleAdmin, true)
	w := httptest.NewRecorder()
	guard.RequirePermission(rbac.CapUsersWrite)(okHandler).ServeHTTP(w, requestWithSession(sc))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, emitter.records)
}

func TestPermissionMiddleware_NoSession(t *testing.T) {
	emitter := &captureEmitter{}
	guard := NewPermissionMiddleware(nil, emitter)

	w := httptest.NewRecorder()
	guard.RequirePermission(rbac.CapUsersRead)(okHandler).ServeHTTP(w, requestWithSession(nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, emitter.records)
}

func TestDecisionRecorder_TenantlessDenialNotAudited(t *testing.T) {
	emitter := &captureEmitter{}
	guard := NewPermissionMiddleware(nil, emitter)

	sc := session.New(&auth.Identity{UserID: uuid.New()}, uuid.Nil, rbac.RoleNone, false)
	w := httptest.NewRecorder()
	guard.RequirePermission(rbac.CapUsersRead)(okHandler).ServeHTTP(w, requestWithSession(sc))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, emitter.records)
}
