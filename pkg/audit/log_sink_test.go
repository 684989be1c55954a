package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSink_WritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(&buf)

	actor := uuid.New()
	rec := &Record{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		ActorUserID: &actor,
		Action:      ActionInvitationCreate,
		TargetType:  TargetInvitation,
		TargetID:    "inv-1",
		Status:      StatusSuccess,
		Metadata:    map[string]interface{}{"email": "a@example.com"},
		CreatedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, sink.Write(context.Background(), rec))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "invitation.create", line["event"])
	assert.Equal(t, rec.TenantID.String(), line["tenant_id"])
	assert.Equal(t, actor.String(), line["actor_user_id"])
	assert.Equal(t, "2024-01-02T03:04:05Z", line["time"])
	assert.NotContains(t, line, "target_tenant_id")
	require.NoError(t, sink.Close())
}

func TestFileLogSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.log")
	sink, err := NewFileLogSink(path)
	require.NoError(t, err)

	require.NoError(t, sink.Write(context.Background(), &Record{ID: uuid.New(), TenantID: uuid.New(), Action: ActionTenantCreate}))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event":"tenant.create"`)
}
