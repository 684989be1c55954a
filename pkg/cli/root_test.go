package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/domain"
	"github.com/platinummonkey/warden/pkg/tenants"
)

type fakeBackend struct {
	migrated  bool
	granted   []uuid.UUID
	revoked   []uuid.UUID
	isAdmin   bool
	created   *tenants.CreateTenantRequest
	createErr error
}

func (f *fakeBackend) Migrate(ctx context.Context) error {
	f.migrated = true
	return nil
}

func (f *fakeBackend) GrantSuperAdmin(ctx context.Context, userID uuid.UUID) error {
	f.granted = append(f.granted, userID)
	return nil
}

func (f *fakeBackend) RevokeSuperAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	f.revoked = append(f.revoked, userID)
	return f.isAdmin, nil
}

func (f *fakeBackend) IssueToken(userID uuid.UUID) (string, time.Time, error) {
	return "token-for-" + userID.String(), time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), nil
}

func (f *fakeBackend) CreateTenant(ctx context.Context, req tenants.CreateTenantRequest) (*tenants.Tenant, error) {
	f.created = &req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &tenants.Tenant{ID: uuid.New(), Name: req.Name, Slug: "acme"}, nil
}

func runCommand(t *testing.T, backend Backend, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := NewRootCommand(backend, &out).Execute(context.Background(), args)
	return out.String(), err
}

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand(&fakeBackend{}, &bytes.Buffer{})

	assert.Equal(t, "warden-admin", root.Name)
	expectedCommands := []string{
		"migrate",
		"grant-superadmin",
		"revoke-superadmin",
		"issue-token",
		"create-tenant",
	}
	for _, cmdName := range expectedCommands {
		assert.Contains(t, root.Subcommands, cmdName, "Expected subcommand %s to be registered", cmdName)
	}
	assert.Equal(t, len(expectedCommands), len(root.Subcommands))
}

func TestCommandUsage(t *testing.T) {
	output, err := runCommand(t, &fakeBackend{})
	require.NoError(t, err)

	assert.Contains(t, output, "Usage: warden-admin <command> [args]")
	assert.Less(t, strings.Index(output, "create-tenant"), strings.Index(output, "migrate"))
}

func TestUnknownCommand(t *testing.T) {
	_, err := runCommand(t, &fakeBackend{}, "push")
	assert.EqualError(t, err, "unknown command: push")
}

func TestMigrate(t *testing.T) {
	backend := &fakeBackend{}
	output, err := runCommand(t, backend, "migrate")
	require.NoError(t, err)
	assert.True(t, backend.migrated)
	assert.Contains(t, output, "Migrations applied")
}

func TestGrantAndRevokeSuperAdmin(t *testing.T) {
	backend := &fakeBackend{}
	userID := uuid.New()

	_, err := runCommand(t, backend, "grant-superadmin", "--user", userID.String())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{userID}, backend.granted)

	output, err := runCommand(t, backend, "revoke-superadmin", "--user", userID.String())
	require.NoError(t, err)
	assert.Contains(t, output, "was not a super admin")

	backend.isAdmin = true
	output, err = runCommand(t, backend, "revoke-superadmin", "--user", userID.String())
	require.NoError(t, err)
	assert.Contains(t, output, "Revoked super admin")
}

func TestUserFlagValidation(t *testing.T) {
	for _, cmd := range []string{"grant-superadmin", "revoke-superadmin", "issue-token"} {
		_, err := runCommand(t, &fakeBackend{}, cmd)
		assert.EqualError(t, err, "--user is required", cmd)

		_, err = runCommand(t, &fakeBackend{}, cmd, "--user", "bob")
		assert.Error(t, err, cmd)
	}
}

func TestIssueToken(t *testing.T) {
	userID := uuid.New()
	output, err := runCommand(t, &fakeBackend{}, "issue-token", "--user", userID.String())
	require.NoError(t, err)
	assert.Contains(t, output, "token-for-"+userID.String())
	assert.Contains(t, output, "expires: 2026-01-02T03:04:05Z")
}

func TestCreateTenant(t *testing.T) {
	backend := &fakeBackend{}
	owner, parent := uuid.New(), uuid.New()

	output, err := runCommand(t, backend, "create-tenant", "--name", "Acme", "--owner", owner.String(), "--parent", parent.String())
	require.NoError(t, err)
	assert.Contains(t, output, "Created tenant acme")

	require.NotNil(t, backend.created)
	assert.Equal(t, "Acme", backend.created.Name)
	assert.Equal(t, owner, backend.created.OwnerUserID)
	require.NotNil(t, backend.created.ParentTenantID)
	assert.Equal(t, parent, *backend.created.ParentTenantID)
}

func TestCreateTenant_Errors(t *testing.T) {
	_, err := runCommand(t, &fakeBackend{}, "create-tenant", "--owner", uuid.NewString())
	assert.EqualError(t, err, "--name is required")

	_, err = runCommand(t, &fakeBackend{}, "create-tenant", "--name", "Acme")
	assert.EqualError(t, err, "--owner is required")

	backend := &fakeBackend{createErr: domain.ErrSlugTaken}
	_, err = runCommand(t, backend, "create-tenant", "--name", "Acme", "--owner", uuid.NewString())
	assert.True(t, errors.Is(err, domain.ErrSlugTaken))
	assert.Nil(t, backend.created.ParentTenantID)
}
