package rbac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/domain"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"owner", RoleOwner, false},
		{"Admin", RoleAdmin, false},
		{" member ", RoleMember, false},
		{"", RoleNone, true},
		{"superadmin", RoleNone, true},
		{RoleSuperAdmin, RoleNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrInvalidRole))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoleRank(t *testing.T) {
	assert.True(t, RoleOwner.SeniorTo(RoleAdmin))
	assert.True(t, RoleAdmin.SeniorTo(RoleMember))
	assert.True(t, RoleMember.SeniorTo(RoleNone))
	assert.False(t, RoleMember.SeniorTo(RoleMember))
	assert.False(t, RoleNone.Valid())
}

func TestParseCapability(t *testing.T) {
	c, err := ParseCapability("users.write")
	require.NoError(t, err)
	assert.Equal(t, CapUsersWrite, c)

	_, err = ParseCapability("users.*")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestCombinatorString(t *testing.T) {
	assert.Equal(t, "all", All.String())
	assert.Equal(t, "any", Any.String())
}
