package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/domain"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
)

const membershipColumns = `id, tenant_id, user_id, role, is_active, invited_by, created_at, updated_at`

func scanMembership(row rowScanner) (*Membership, error) {
	m := &Membership{}
	var invitedBy uuid.NullUUID
	if err := row.Scan(&m.ID, &m.TenantID, &m.UserID, &m.Role, &m.IsActive, &invitedBy,
		&m.JoinedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if invitedBy.Valid {
		m.InvitedBy = &invitedBy.UUID
	}
	return m, nil
}

func validateMemberRole(role rbac.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidRole, string(role))
	}
	return nil
}

// upsertMembership inserts a membership or reactivates a removed one. An
// already active pair yields ErrDuplicateMembership.
func upsertMembership(ctx context.Context, tx *sql.Tx, tenantID, userID uuid.UUID, role rbac.Role, invitedBy *uuid.UUID) (*Membership, error) {
	row := tx.QueryRowContext(ctx, `
		INSERT INTO memberships (id, tenant_id, user_id, role, invited_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ON CONSTRAINT memberships_tenant_user_key DO UPDATE
		SET role = EXCLUDED.role, invited_by = EXCLUDED.invited_by, is_active = true, updated_at = NOW()
		WHERE memberships.is_active = false
		RETURNING `+membershipColumns,
		uuid.New(), tenantID, userID, role, invitedBy,
	)
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDuplicateMembership
	}
	return m, err
}

// AddMember adds a user to a tenant. Re-adding a removed member reactivates
// the existing membership with the new role.
func (s *PostgresService) AddMember(ctx context.Context, tenantID, userID uuid.UUID, role rbac.Role, invitedBy *uuid.UUID) (*Membership, error) {
	if err := validateMemberRole(role); err != nil {
		return nil, err
	}
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user is required", domain.ErrInvalidInput)
	}

	var m *Membership
	err := s.iso.Run(ctx, func(tx *sql.Tx) error {
		var err error
		m, err = upsertMembership(ctx, tx, tenantID, userID, role, invitedBy)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateMembership) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to add member: %w", err)
	}
	return m, nil
}

// lockOwners locks the tenant's active owner rows for the rest of the
// transaction and returns their user IDs
func lockOwners(ctx context.Context, tx *sql.Tx, tenantID uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT user_id FROM memberships
		WHERE tenant_id = $1 AND role = 'owner' AND is_active
		FOR UPDATE`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock owners: %w", err)
	}
	defer rows.Close()

	owners := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners[id] = true
	}
	return owners, rows.Err()
}

func lockActiveMember(ctx context.Context, tx *sql.Tx, tenantID, userID uuid.UUID) (*Membership, error) {
	m, err := scanMembership(tx.QueryRowContext(ctx, `
		SELECT `+membershipColumns+` FROM memberships
		WHERE tenant_id = $1 AND user_id = $2 AND is_active
		FOR UPDATE`, tenantID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return m, err
}

// ChangeRole updates a member's role. Demoting the last active owner fails
// with ErrLastOwnerViolation.
func (s *PostgresService) ChangeRole(ctx context.Context, tenantID, userID uuid.UUID, role rbac.Role) (*Membership, error) {
	if err := validateMemberRole(role); err != nil {
		return nil, err
	}

	var m *Membership
	err := s.iso.RunSerializable(ctx, func(tx *sql.Tx) error {
		owners, err := lockOwners(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		current, err := lockActiveMember(ctx, tx, tenantID, userID)
		if err != nil {
			return err
		}

		if current.Role == rbac.RoleOwner && role != rbac.RoleOwner && len(owners) <= 1 {
			return domain.ErrLastOwnerViolation
		}
		if current.Role == role {
			m = current
			return nil
		}

		m, err = scanMembership(tx.QueryRowContext(ctx, `
			UPDATE memberships SET role = $1, updated_at = NOW()
			WHERE id = $2
			RETURNING `+membershipColumns, role, current.ID))
		return err
	})
	if err != nil {
		return nil, wrapMemberError("failed to change role", err)
	}
	return m, nil
}

// RemoveMember deactivates a membership. Removing the last active owner
// fails with ErrLastOwnerViolation.
func (s *PostgresService) RemoveMember(ctx context.Context, tenantID, userID uuid.UUID) error {
	err := s.iso.RunSerializable(ctx, func(tx *sql.Tx) error {
		owners, err := lockOwners(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		current, err := lockActiveMember(ctx, tx, tenantID, userID)
		if err != nil {
			return err
		}

		if current.Role == rbac.RoleOwner && len(owners) <= 1 {
			return domain.ErrLastOwnerViolation
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE memberships SET is_active = false, updated_at = NOW() WHERE id = $1`, current.ID)
		return err
	})
	if err != nil {
		return wrapMemberError("failed to remove member", err)
	}
	return nil
}

func wrapMemberError(msg string, err error) error {
	for _, sentinel := range []error{domain.ErrNotFound, domain.ErrLastOwnerViolation, domain.ErrPermissionDenied} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// ListMembers lists a tenant's members, active only unless includeInactive
func (s *PostgresService) ListMembers(ctx context.Context, tenantID uuid.UUID, includeInactive bool) ([]*Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE tenant_id = $1`
	if !includeInactive {
		query += ` AND is_active`
	}
	query += ` ORDER BY created_at ASC, id`

	var members []*Membership
	err := s.iso.Run(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, tenantID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			m, err := scanMembership(rows)
			if err != nil {
				return fmt.Errorf("failed to scan member: %w", err)
			}
			members = append(members, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// GetMember retrieves a membership, active or not
func (s *PostgresService) GetMember(ctx context.Context, tenantID, userID uuid.UUID) (*Membership, error) {
	var m *Membership
	err := s.iso.Run(ctx, func(tx *sql.Tx) error {
		var err error
		m, err = scanMembership(tx.QueryRowContext(ctx,
			`SELECT `+membershipColumns+` FROM memberships WHERE tenant_id = $1 AND user_id = $2`,
			tenantID, userID))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// ActiveMembership returns the user's active membership in an active tenant.
// The lookup is scoped to exactly that tenant and user, so it can run before
// a session exists. It always reads the primary.
func (s *PostgresService) ActiveMembership(ctx context.Context, tenantID, userID uuid.UUID) (*Membership, error) {
	scope := postgres.Scope{TenantID: tenantID, UserID: userID}

	var m *Membership
	err := s.iso.RunIn(ctx, scope, func(tx *sql.Tx) error {
		var err error
		m, err = scanMembership(tx.QueryRowContext(ctx, `
			SELECT m.id, m.tenant_id, m.user_id, m.role, m.is_active, m.invited_by, m.created_at, m.updated_at
			FROM memberships m
			JOIN tenants t ON t.id = m.tenant_id
			WHERE m.tenant_id = $1 AND m.user_id = $2 AND m.is_active AND t.is_active`,
			tenantID, userID))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}
