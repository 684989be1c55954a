package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/platinummonkey/warden/pkg/storage/postgres"
)

// Store reads audit records. Reads go to a replica when one is configured
// and are still bounded by the caller's isolation scope.
type Store struct {
	iso *postgres.Isolator
}

// NewStore creates an audit store
func NewStore(iso *postgres.Isolator) *Store {
	return &Store{iso: iso}
}

// Search returns a tenant's audit records, newest first
func (s *Store) Search(ctx context.Context, tenantID uuid.UUID, filter SearchFilter) ([]*Record, error) {
	query := `
		SELECT
			id, tenant_id, actor_user_id, action, target_type, target_id,
			target_tenant_id, status, privilege_bypass, request_id,
			ip_address, user_agent, metadata, created_at
		FROM audit_records
		WHERE tenant_id = $1`

	args := []interface{}{tenantID}
	argCount := 2

	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filter.StartTime)
		argCount++
	}

	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *filter.EndTime)
		argCount++
	}

	if filter.ActorUserID != nil {
		query += fmt.Sprintf(" AND actor_user_id = $%d", argCount)
		args = append(args, *filter.ActorUserID)
		argCount++
	}

	if len(filter.Actions) > 0 {
		query += fmt.Sprintf(" AND action = ANY($%d)", argCount)
		actions := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			actions[i] = string(a)
		}
		args = append(args, pq.Array(actions))
		argCount++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, string(*filter.Status))
		argCount++
	}

	if filter.TargetType != "" {
		query += fmt.Sprintf(" AND target_type = $%d", argCount)
		args = append(args, string(filter.TargetType))
		argCount++
	}

	if filter.TargetID != "" {
		query += fmt.Sprintf(" AND target_id = $%d", argCount)
		args = append(args, filter.TargetID)
		argCount++
	}

	if filter.BypassOnly {
		query += " AND privilege_bypass"
	}

	query += " ORDER BY created_at DESC, id"

	limit := filter.EffectiveLimit()
	query += fmt.Sprintf(" LIMIT $%d", argCount)
	args = append(args, limit)
	argCount++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	var records []*Record
	err := s.iso.RunReadOnly(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return fmt.Errorf("failed to scan audit record: %w", err)
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search audit records: %w", err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	rec := &Record{}
	var actor, targetTenant uuid.NullUUID
	var targetID, requestID, ip, userAgent sql.NullString
	var action, targetType, status string
	var metadata []byte

	if err := rows.Scan(&rec.ID, &rec.TenantID, &actor, &action, &targetType, &targetID,
		&targetTenant, &status, &rec.PrivilegeBypass, &requestID,
		&ip, &userAgent, &metadata, &rec.CreatedAt); err != nil {
		return nil, err
	}

	rec.Action = Action(action)
	rec.TargetType = TargetType(targetType)
	rec.Status = Status(status)
	rec.TargetID = targetID.String
	rec.RequestID = requestID.String
	rec.IPAddress = ip.String
	rec.UserAgent = userAgent.String
	if actor.Valid {
		rec.ActorUserID = &actor.UUID
	}
	if targetTenant.Valid {
		rec.TargetTenantID = &targetTenant.UUID
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return rec, nil
}
