package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/tenants"
)

// Backend is what the admin commands act on
type Backend interface {
	Migrate(ctx context.Context) error
	GrantSuperAdmin(ctx context.Context, userID uuid.UUID) error
	RevokeSuperAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
	IssueToken(userID uuid.UUID) (token string, expiresAt time.Time, err error)
	CreateTenant(ctx context.Context, req tenants.CreateTenantRequest) (*tenants.Tenant, error)
}

func parseUUIDFlag(fs *flag.FlagSet, name string) (uuid.UUID, error) {
	value := fs.Lookup(name).Value.String()
	if value == "" {
		return uuid.Nil, fmt.Errorf("--%s is required", name)
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return id, nil
}

func newMigrateCommand(backend Backend, out io.Writer) *Command {
	cmd := &Command{
		Name:        "migrate",
		Description: "Apply pending database migrations",
		Flags:       flag.NewFlagSet("migrate", flag.ContinueOnError),
	}
	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if err := backend.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Migrations applied")
		return nil
	}
	return cmd
}

func newGrantSuperAdminCommand(backend Backend, out io.Writer) *Command {
	cmd := &Command{
		Name:        "grant-superadmin",
		Description: "Grant the platform super admin role to a user",
		Flags:       flag.NewFlagSet("grant-superadmin", flag.ContinueOnError),
	}
	cmd.Flags.String("user", "", "User ID")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		userID, err := parseUUIDFlag(cmd.Flags, "user")
		if err != nil {
			return err
		}
		if err := backend.GrantSuperAdmin(ctx, userID); err != nil {
			return err
		}
		fmt.Fprintf(out, "Granted super admin to %s\n", userID)
		return nil
	}
	return cmd
}

func newRevokeSuperAdminCommand(backend Backend, out io.Writer) *Command {
	cmd := &Command{
		Name:        "revoke-superadmin",
		Description: "Revoke the platform super admin role from a user",
		Flags:       flag.NewFlagSet("revoke-superadmin", flag.ContinueOnError),
	}
	cmd.Flags.String("user", "", "User ID")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		userID, err := parseUUIDFlag(cmd.Flags, "user")
		if err != nil {
			return err
		}
		removed, err := backend.RevokeSuperAdmin(ctx, userID)
		if err != nil {
			return err
		}
		if !removed {
			fmt.Fprintf(out, "%s was not a super admin\n", userID)
			return nil
		}
		fmt.Fprintf(out, "Revoked super admin from %s\n", userID)
		return nil
	}
	return cmd
}

func newIssueTokenCommand(backend Backend, out io.Writer) *Command {
	cmd := &Command{
		Name:        "issue-token",
		Description: "Issue a session token for a user",
		Flags:       flag.NewFlagSet("issue-token", flag.ContinueOnError),
	}
	cmd.Flags.String("user", "", "User ID")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		userID, err := parseUUIDFlag(cmd.Flags, "user")
		if err != nil {
			return err
		}
		token, expiresAt, err := backend.IssueToken(userID)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, token)
		fmt.Fprintf(out, "expires: %s\n", expiresAt.UTC().Format(time.RFC3339))
		return nil
	}
	return cmd
}

func newCreateTenantCommand(backend Backend, out io.Writer) *Command {
	cmd := &Command{
		Name:        "create-tenant",
		Description: "Create a tenant and its owner membership",
		Flags:       flag.NewFlagSet("create-tenant", flag.ContinueOnError),
	}
	name := cmd.Flags.String("name", "", "Tenant name")
	slug := cmd.Flags.String("slug", "", "Tenant slug (derived from the name if empty)")
	plan := cmd.Flags.String("plan", "", "Plan code")
	cmd.Flags.String("owner", "", "Owner user ID")
	cmd.Flags.String("parent", "", "Parent tenant ID")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *name == "" {
			return fmt.Errorf("--name is required")
		}
		owner, err := parseUUIDFlag(cmd.Flags, "owner")
		if err != nil {
			return err
		}
		req := tenants.CreateTenantRequest{Name: *name, Slug: *slug, OwnerUserID: owner, PlanCode: *plan}
		if cmd.Flags.Lookup("parent").Value.String() != "" {
			parent, err := parseUUIDFlag(cmd.Flags, "parent")
			if err != nil {
				return err
			}
			req.ParentTenantID = &parent
		}

		tenant, err := backend.CreateTenant(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Created tenant %s (%s)\n", tenant.Slug, tenant.ID)
		return nil
	}
	return cmd
}
