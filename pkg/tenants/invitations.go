package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/domain"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
)

const invitationColumns = `id, tenant_id, email, role, invited_by, expires_at, accepted_at, accepted_by, revoked_at, created_at`

func scanInvitation(row rowScanner) (*Invitation, error) {
	inv := &Invitation{}
	var acceptedAt, revokedAt sql.NullTime
	var acceptedBy uuid.NullUUID
	if err := row.Scan(&inv.ID, &inv.TenantID, &inv.Email, &inv.Role, &inv.InvitedBy, &inv.ExpiresAt,
		&acceptedAt, &acceptedBy, &revokedAt, &inv.CreatedAt); err != nil {
		return nil, err
	}
	if acceptedAt.Valid {
		inv.AcceptedAt = &acceptedAt.Time
	}
	if acceptedBy.Valid {
		inv.AcceptedBy = &acceptedBy.UUID
	}
	if revokedAt.Valid {
		inv.RevokedAt = &revokedAt.Time
	}
	return inv, nil
}

// CreateInvitation issues an invitation token for email. The plaintext token
// is only returned here; the database keeps its hash.
func (s *PostgresService) CreateInvitation(ctx context.Context, tenantID uuid.UUID, email string, role rbac.Role, invitedBy uuid.UUID) (*Invitation, error) {
	if err := validateMemberRole(role); err != nil {
		return nil, err
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	token, hash, _, err := s.invitations.GenerateToken(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate invitation token: %w", err)
	}
	expiresAt := s.now().Add(s.invitationTTL)

	var inv *Invitation
	err = s.iso.Run(ctx, func(tx *sql.Tx) error {
		var err error
		inv, err = scanInvitation(tx.QueryRowContext(ctx, `
			INSERT INTO invitations (id, tenant_id, email, role, token_hash, invited_by, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+invitationColumns,
			uuid.New(), tenantID, email, role, hash, invitedBy, expiresAt,
		))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	inv.Token = token
	return inv, nil
}

// ListInvitations lists a tenant's pending invitations, newest first
func (s *PostgresService) ListInvitations(ctx context.Context, tenantID uuid.UUID) ([]*Invitation, error) {
	var out []*Invitation
	err := s.iso.Run(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT `+invitationColumns+` FROM invitations
			WHERE tenant_id = $1 AND accepted_at IS NULL AND revoked_at IS NULL AND expires_at > $2
			ORDER BY created_at DESC, id`, tenantID, s.now())
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			inv, err := scanInvitation(rows)
			if err != nil {
				return fmt.Errorf("failed to scan invitation: %w", err)
			}
			out = append(out, inv)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	return out, nil
}

// RevokeInvitation revokes a pending invitation
func (s *PostgresService) RevokeInvitation(ctx context.Context, tenantID, invitationID uuid.UUID) error {
	return s.iso.Run(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE invitations SET revoked_at = $1
			WHERE id = $2 AND tenant_id = $3 AND accepted_at IS NULL AND revoked_at IS NULL`,
			s.now(), invitationID, tenantID)
		if err != nil {
			return fmt.Errorf("failed to revoke invitation: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// AcceptInvitation redeems an invitation token for userID. The transaction
// is scoped to the tenant named by the token, so the invitation and the new
// membership are the only rows it can touch.
func (s *PostgresService) AcceptInvitation(ctx context.Context, token string, userID uuid.UUID) (*Membership, error) {
	if userID == uuid.Nil {
		return nil, domain.ErrUnauthenticated
	}
	tenantID, err := s.invitations.ParseToken(token)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	hash := auth.HashToken(token)
	now := s.now()

	var m *Membership
	scope := postgres.Scope{TenantID: tenantID, UserID: userID}
	err = s.iso.RunSerializableIn(ctx, scope, func(tx *sql.Tx) error {
		inv, err := scanInvitation(tx.QueryRowContext(ctx, `
			SELECT `+invitationColumns+` FROM invitations
			WHERE token_hash = $1 AND tenant_id = $2
			FOR UPDATE`, hash, tenantID))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if inv.AcceptedAt != nil || inv.RevokedAt != nil {
			return domain.ErrNotFound
		}
		if !now.Before(inv.ExpiresAt) {
			return fmt.Errorf("%w: invitation expired", domain.ErrInvalidInput)
		}

		var active bool
		err = tx.QueryRowContext(ctx, `SELECT is_active FROM tenants WHERE id = $1`, tenantID).Scan(&active)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !active) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		if m, err = upsertMembership(ctx, tx, tenantID, userID, inv.Role, &inv.InvitedBy); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE invitations SET accepted_at = $1, accepted_by = $2 WHERE id = $3`,
			now, userID, inv.ID)
		return err
	})
	if err != nil {
		for _, sentinel := range []error{domain.ErrNotFound, domain.ErrDuplicateMembership, domain.ErrInvalidInput} {
			if errors.Is(err, sentinel) {
				return nil, err
			}
		}
		return nil, fmt.Errorf("failed to accept invitation: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"tenant_id": tenantID.String(),
		"user_id":   userID.String(),
	}).Info("Invitation accepted")
	return m, nil
}

// PurgeExpiredInvitations deletes unaccepted invitations that expired or
// were revoked. It runs as a system job across every tenant.
func (s *PostgresService) PurgeExpiredInvitations(ctx context.Context) (int64, error) {
	var purged int64
	err := s.iso.RunIn(ctx, postgres.SystemScope(), func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM invitations
			WHERE accepted_at IS NULL AND (expires_at <= $1 OR revoked_at IS NOT NULL)`, s.now())
		if err != nil {
			return err
		}
		purged, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge invitations: %w", err)
	}
	if purged > 0 {
		s.logger.WithField("count", purged).Info("Purged expired invitations")
	}
	return purged, nil
}
