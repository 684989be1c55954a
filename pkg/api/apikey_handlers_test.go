package api

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/rbac"
)

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv(auth.MethodSession, uuid.New(), rbac.RoleAdmin, false)

	w := env.do("POST", "/v1/api-keys", CreateAPIKeyRequest{Name: "ci"})
	require.Equal(t, http.StatusCreated, w.Code)

	var created CreateAPIKeyResponse
	decode(t, w, &created)
	assert.Equal(t, "wdn_test_secret", created.Token)
	assert.Equal(t, env.tenantID(), created.TenantID)
	assert.Equal(t, env.identity.UserID, created.UserID)

	rec := env.emitter.last()
	require.NotNil(t, rec)
	assert.Equal(t, audit.ActionAPIKeyCreate, rec.Action)
	assert.NotContains(t, rec.Metadata, "token")

	w = env.do("GET", "/v1/api-keys", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list APIKeyListResponse
	decode(t, w, &list)
	require.Len(t, list.APIKeys, 1)

	w = env.do("DELETE", "/v1/api-keys/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do("DELETE", "/v1/api-keys/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, []audit.Action{audit.ActionAPIKeyCreate, audit.ActionAPIKeyRevoke}, env.emitter.actions())
}

func TestAPIKeys_MemberCanReadNotWrite(t *testing.T) {
	env := newTestEnv(auth.MethodSession, uuid.New(), rbac.RoleMember, false)

	w := env.do("GET", "/v1/api-keys", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"api_keys":[]}`, w.Body.String())

	w = env.do("POST", "/v1/api-keys", CreateAPIKeyRequest{Name: "ci"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
