package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/domain"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
)

var recordRowColumns = []string{"id", "tenant_id", "actor_user_id", "action", "target_type", "target_id",
	"target_tenant_id", "status", "privilege_bypass", "request_id", "ip_address", "user_agent", "metadata", "created_at"}

func TestStoreSearch_DefaultFilter(t *testing.T) {
	iso, mock := newMockIsolator(t)
	store := NewStore(iso)
	tenantID, actor := uuid.New(), uuid.New()
	ctx := postgres.WithScope(context.Background(), postgres.Scope{TenantID: tenantID, UserID: actor})

	mock.ExpectBegin()
	mock.ExpectExec(`set_config`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM audit_records\s+WHERE tenant_id = \$1 ORDER BY created_at DESC, id LIMIT \$2`).
		WithArgs(tenantID, defaultSearchLimit).
		WillReturnRows(sqlmock.NewRows(recordRowColumns).
			AddRow(uuid.NewString(), tenantID.String(), actor.String(), "member.add", "membership", "u-1",
				nil, "success", false, "req-1", "10.0.0.1", "curl", []byte(`{"role":"admin"}`), time.Now()).
			AddRow(uuid.NewString(), tenantID.String(), nil, "tenant.update", "tenant", tenantID.String(),
				nil, "success", true, nil, nil, nil, []byte(`{}`), time.Now()))
	mock.ExpectCommit()

	records, err := store.Search(ctx, tenantID, SearchFilter{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, ActionMemberAdd, records[0].Action)
	require.NotNil(t, records[0].ActorUserID)
	assert.Equal(t, actor, *records[0].ActorUserID)
	assert.Equal(t, "admin", records[0].Metadata["role"])

	assert.Nil(t, records[1].ActorUserID)
	assert.True(t, records[1].PrivilegeBypass)
	assert.Empty(t, records[1].RequestID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSearch_AllFilters(t *testing.T) {
	iso, mock := newMockIsolator(t)
	store := NewStore(iso)
	tenantID, actor := uuid.New(), uuid.New()
	ctx := postgres.WithScope(context.Background(), postgres.Scope{TenantID: tenantID})
	start, end := time.Now().Add(-time.Hour), time.Now()
	denied := StatusDenied

	mock.ExpectBegin()
	mock.ExpectExec(`set_config`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`created_at >= \$2 AND created_at <= \$3 AND actor_user_id = \$4 AND action = ANY\(\$5\) AND status = \$6 AND target_type = \$7 AND target_id = \$8 AND privilege_bypass ORDER BY created_at DESC, id LIMIT \$9 OFFSET \$10`).
		WithArgs(tenantID, start, end, actor, `{"member.add","member.remove"}`, "denied", "membership", "u-1", maxSearchLimit, 20).
		WillReturnRows(sqlmock.NewRows(recordRowColumns))
	mock.ExpectCommit()

	records, err := store.Search(ctx, tenantID, SearchFilter{
		StartTime:   &start,
		EndTime:     &end,
		ActorUserID: &actor,
		Actions:     []Action{ActionMemberAdd, ActionMemberRemove},
		Status:      &denied,
		TargetType:  TargetMembership,
		TargetID:    "u-1",
		BypassOnly:  true,
		Limit:       5000,
		Offset:      20,
	})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSearch_RequiresScope(t *testing.T) {
	iso, mock := newMockIsolator(t)
	store := NewStore(iso)

	_, err := store.Search(context.Background(), uuid.New(), SearchFilter{})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.NoError(t, mock.ExpectationsWereMet())
}
