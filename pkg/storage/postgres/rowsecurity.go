package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrRowSecurityBypassed is returned when the connected role is a superuser
// or holds BYPASSRLS. Row-level security policies do not apply to such roles.
var ErrRowSecurityBypassed = errors.New("database role bypasses row-level security")

const rowSecurityQuery = `SELECT rolsuper OR rolbypassrls FROM pg_roles WHERE rolname = current_user`

// VerifyRowSecurity checks that the role behind db is subject to row-level
// security
func VerifyRowSecurity(ctx context.Context, db *sql.DB) error {
	var bypass bool
	if err := db.QueryRowContext(ctx, rowSecurityQuery).Scan(&bypass); err != nil {
		return fmt.Errorf("failed to inspect database role: %w", err)
	}
	if bypass {
		return ErrRowSecurityBypassed
	}
	return nil
}

// VerifyRowSecurity checks the primary and every replica
func (cm *ConnectionManager) VerifyRowSecurity(ctx context.Context) error {
	if err := VerifyRowSecurity(ctx, cm.primary); err != nil {
		return fmt.Errorf("primary: %w", err)
	}

	cm.mu.RLock()
	replicas := make([]*sql.DB, len(cm.replicas))
	copy(replicas, cm.replicas)
	cm.mu.RUnlock()

	for i, replica := range replicas {
		if err := VerifyRowSecurity(ctx, replica); err != nil {
			return fmt.Errorf("replica-%d: %w", i, err)
		}
	}
	return nil
}
