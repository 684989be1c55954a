package audit

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []*Record {
	actor := uuid.New()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*Record{
		{ID: uuid.New(), TenantID: uuid.New(), ActorUserID: &actor, Action: ActionMemberAdd,
			TargetType: TargetMembership, TargetID: "u-1", Status: StatusSuccess, CreatedAt: created},
		{ID: uuid.New(), TenantID: uuid.New(), Action: ActionPermissionDenied,
			TargetType: TargetEndpoint, TargetID: "/v1/members", Status: StatusDenied, UserAgent: "agent, with comma", CreatedAt: created},
	}
}

func TestExportJSON(t *testing.T) {
	data, err := Export(sampleRecords(), ExportFormatJSON)
	require.NoError(t, err)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "member.add", decoded[0]["action"])

	empty, err := Export(nil, ExportFormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}

func TestExportNDJSON(t *testing.T) {
	data, err := Export(sampleRecords(), ExportFormatNDJSON)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], `"status":"denied"`)
}

func TestExportCSV(t *testing.T) {
	records := sampleRecords()
	data, err := Export(records, ExportFormatCSV)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, records[0].ActorUserID.String(), rows[1][3])
	assert.Equal(t, "2024-03-01T12:00:00Z", rows[1][1])
	assert.Equal(t, "", rows[2][3])
	assert.Equal(t, "agent, with comma", rows[2][12])
}

func TestParseExportFormat(t *testing.T) {
	tests := []struct {
		in          string
		want        ExportFormat
		contentType string
		wantErr     bool
	}{
		{"", ExportFormatJSON, "application/json", false},
		{"json", ExportFormatJSON, "application/json", false},
		{"csv", ExportFormatCSV, "text/csv", false},
		{"ndjson", ExportFormatNDJSON, "application/x-ndjson", false},
		{"xml", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExportFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.contentType, got.ContentType())
		})
	}

	_, err := Export(nil, ExportFormat("xml"))
	assert.Error(t, err)
}
