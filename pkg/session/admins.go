package session

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
)

// PlatformAdmins answers whether a user is a super admin. The flag comes from
// platform_admins only, never from a tenant membership.
type PlatformAdmins interface {
	IsSuperAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
}

// PostgresPlatformAdmins reads and maintains the platform_admins table
type PostgresPlatformAdmins struct {
	iso *postgres.Isolator
}

// NewPostgresPlatformAdmins creates a new PostgresPlatformAdmins
func NewPostgresPlatformAdmins(iso *postgres.Isolator) *PostgresPlatformAdmins {
	return &PostgresPlatformAdmins{iso: iso}
}

// IsSuperAdmin reports whether userID holds the platform role
func (p *PostgresPlatformAdmins) IsSuperAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := p.iso.RunIn(ctx, postgres.Scope{UserID: userID}, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM platform_admins WHERE user_id = $1 AND role = $2)`,
			userID, rbac.RoleSuperAdmin,
		).Scan(&exists)
	})
	if err != nil {
		return false, fmt.Errorf("failed to check platform admin: %w", err)
	}
	return exists, nil
}

// Grant makes userID a super admin. Granting twice is a no-op.
func (p *PostgresPlatformAdmins) Grant(ctx context.Context, userID uuid.UUID, grantedBy *uuid.UUID) error {
	err := p.iso.RunIn(ctx, postgres.SystemScope(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO platform_admins (user_id, role, granted_by)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO NOTHING`,
			userID, rbac.RoleSuperAdmin, grantedBy)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to grant platform admin: %w", err)
	}
	return nil
}

// Revoke removes the platform role from userID. It reports whether a grant
// existed.
func (p *PostgresPlatformAdmins) Revoke(ctx context.Context, userID uuid.UUID) (bool, error) {
	var removed int64
	err := p.iso.RunIn(ctx, postgres.SystemScope(), func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM platform_admins WHERE user_id = $1`, userID)
		if err != nil {
			return err
		}
		removed, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to revoke platform admin: %w", err)
	}
	return removed > 0, nil
}
