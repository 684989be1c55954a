package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/domain"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/tenants"
)

func TestCreateInvitation(t *testing.T) {
	env := newTestEnv(auth.MethodSession, uuid.New(), rbac.RoleAdmin, false)

	w := env.do("POST", "/v1/invitations", CreateInvitationRequest{Email: "new@example.com", Role: rbac.RoleMember})
	require.Equal(t, http.StatusCreated, w.Code)

	var inv tenants.Invitation
	decode(t, w, &inv)
	assert.Equal(t, "inv_token", inv.Token)
	assert.Equal(t, env.identity.UserID, inv.InvitedBy)

	rec := env.emitter.last()
	require.NotNil(t, rec)
	assert.Equal(t, audit.ActionInvitationCreate, rec.Action)
	assert.Equal(t, "new@example.com", rec.Metadata["email"])
	assert.NotContains(t, rec.Metadata, "token")
}

func TestCreateInvitation_OwnerRole(t *testing.T) {
	env := newTestEnv(auth.MethodSession, uuid.New(), rbac.RoleAdmin, false)
	w := env.do("POST", "/v1/invitations", CreateInvitationRequest{Email: "new@example.com", Role: rbac.RoleOwner})
	assert.Equal(t, http.StatusForbidden, w.Code)

	env = newTestEnv(auth.MethodSession, uuid.New(), rbac.RoleOwner, false)
	w = env.do("POST", "/v1/invitations", CreateInvitationRequest{Email: "new@example.com", Role: rbac.RoleOwner})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRevokeInvitation(t *testing.T) {
	env := newTestEnv(auth.MethodSession, uuid.New(), rbac.RoleAdmin, false)
	invID := uuid.New()
	env.tenants.revokeInvitationFunc = func(ctx context.Context, tenantID, id uuid.UUID) error {
		if id != invID {
			return domain.ErrNotFound
		}
		return nil
	}

	w := env.do("DELETE", "/v1/invitations/"+invID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do("DELETE", "/v1/invitations/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, []audit.Action{audit.ActionInvitationRevoke}, env.emitter.actions())
}

func TestAcceptInvitation(t *testing.T) {
	env := newTestEnv(auth.MethodSession, uuid.Nil, rbac.RoleNone, false)
	invitedTenant := uuid.New()
	env.tenants.acceptInvitationFunc = func(ctx context.Context, token string, userID uuid.UUID) (*tenants.Membership, error) {
		assert.Equal(t, "inv_token", token)
		return &tenants.Membership{TenantID: invitedTenant, UserID: userID, Role: rbac.RoleMember, IsActive: true}, nil
	}

	w := env.do("POST", "/v1/invitations/accept", AcceptInvitationRequest{Token: "inv_token"})
	require.Equal(t, http.StatusOK, w.Code)

	rec := env.emitter.last()
	require.NotNil(t, rec)
	assert.Equal(t, audit.ActionInvitationAccept, rec.Action)
	assert.Equal(t, invitedTenant, rec.TenantID)
	assert.False(t, rec.PrivilegeBypass)
}

func TestAcceptInvitation_Errors(t *testing.T) {
	env := newTestEnv(auth.MethodSession, uuid.Nil, rbac.RoleNone, false)

	w := env.do("POST", "/v1/invitations/accept", AcceptInvitationRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("POST", "/v1/invitations/accept", AcceptInvitationRequest{Token: "unknown"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	keyEnv := newTestEnv(auth.MethodAPIKey, uuid.New(), rbac.RoleAdmin, false)
	w = keyEnv.do("POST", "/v1/invitations/accept", AcceptInvitationRequest{Token: "inv_token"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
