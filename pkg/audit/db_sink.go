package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/storage/postgres"
)

// DBSink appends records to audit_records. Each insert runs scoped to the
// record's tenant, so a record can only land in the tenant it names.
type DBSink struct {
	iso *postgres.Isolator
}

// NewDBSink creates a database sink
func NewDBSink(iso *postgres.Isolator) *DBSink {
	return &DBSink{iso: iso}
}

// Write inserts rec
func (s *DBSink) Write(ctx context.Context, rec *Record) error {
	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal audit metadata: %w", err)
	}

	scope := postgres.Scope{TenantID: rec.TenantID}
	if rec.ActorUserID != nil {
		scope.UserID = *rec.ActorUserID
	}

	return s.iso.RunIn(ctx, scope, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO audit_records (
				id, tenant_id, actor_user_id, action, target_type, target_id,
				target_tenant_id, status, privilege_bypass, request_id,
				ip_address, user_agent, metadata, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			rec.ID, rec.TenantID, nullUUID(rec.ActorUserID), string(rec.Action), string(rec.TargetType), rec.TargetID,
			nullUUID(rec.TargetTenantID), string(rec.Status), rec.PrivilegeBypass, rec.RequestID,
			rec.IPAddress, rec.UserAgent, metadataJSON, rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert audit record: %w", err)
		}
		return nil
	})
}

func nullUUID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return *id
}
