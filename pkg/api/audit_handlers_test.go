package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/rbac"
)

func TestSearchAudit(t *testing.T) {
	env := newTestEnv(auth.MethodSession, uuid.New(), rbac.RoleAdmin, false)
	actor := uuid.New()
	env.audit.records = []*audit.Record{{
		ID:         uuid.New(),
		TenantID:   env.tenantID(),
		Action:     audit.ActionMemberAdd,
		TargetType: audit.TargetMembership,
		Status:     audit.StatusSuccess,
		CreatedAt:  time.Now(),
	}}

	w := env.do("GET", "/v1/audit?action=member.add,member.remove&action=authz.denied&status=denied"+
		"&actor_user_id="+actor.String()+"&start_time=2026-01-01T00:00:00Z&bypass_only=true&limit=5000&offset=10", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp AuditSearchResponse
	decode(t, w, &resp)
	assert.Len(t, resp.Records, 1)
	assert.Equal(t, 1000, resp.Limit)
	assert.Equal(t, 10, resp.Offset)

	assert.Equal(t, env.tenantID(), env.audit.tenantID)
	f := env.audit.filter
	assert.Equal(t, []audit.Action{audit.ActionMemberAdd, audit.ActionMemberRemove, audit.ActionPermissionDenied}, f.Actions)
	require.NotNil(t, f.Status)
	assert.Equal(t, audit.StatusDenied, *f.Status)
	assert.Equal(t, actor, *f.ActorUserID)
	assert.True(t, f.BypassOnly)
	require.NotNil(t, f.StartTime)
	assert.Equal(t, 2026, f.StartTime.Year())
}

func TestSearchAudit_CSV(t *testing.T) {
	env := newTestEnv(auth.MethodSession, uuid.New(), rbac.RoleOwner, false)
	env.audit.records = []*audit.Record{{
		ID:        uuid.New(),
		TenantID:  env.tenantID(),
		Action:    audit.ActionTenantUpdate,
		Status:    audit.StatusSuccess,
		CreatedAt: time.Now(),
	}}

	w := env.do("GET", "/v1/audit?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "audit-"+env.tenantID().String()+".csv")

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID,CreatedAt"))
}

func TestSearchAudit_BadInput(t *testing.T) {
	env := newTestEnv(auth.MethodSession, uuid.New(), rbac.RoleAdmin, false)

	for _, query := range []string{
		"format=xml",
		"start_time=yesterday",
		"start_time=2026-02-01T00:00:00Z&end_time=2026-01-01T00:00:00Z",
		"offset=-1",
		"actor_user_id=nope",
	} {
		w := env.do("GET", "/v1/audit?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
}

func TestSearchAudit_MemberDenied(t *testing.T) {
	env := newTestEnv(auth.MethodSession, uuid.New(), rbac.RoleMember, false)

	w := env.do("GET", "/v1/audit", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSearchAudit_SuperAdminReadIsAudited(t *testing.T) {
	env := newTestEnv(auth.MethodSession, uuid.New(), rbac.RoleNone, true)

	w := env.do("GET", "/v1/audit", nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []audit.Action{audit.ActionPermissionBypass}, env.emitter.actions())
	rec := env.emitter.last()
	assert.True(t, rec.PrivilegeBypass)
	assert.Equal(t, env.tenantID(), rec.TenantID)
	require.NotNil(t, rec.TargetTenantID)
	assert.Equal(t, env.tenantID(), *rec.TargetTenantID)
}
