package session

import (
	"context"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
)

func newMockAdmins(t *testing.T) (*PostgresPlatformAdmins, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	iso := postgres.NewIsolator(postgres.NewConnectionManagerFromDB(db, logger), postgres.IsolatorConfig{}, nil, logger)
	return NewPostgresPlatformAdmins(iso), mock
}

func TestIsSuperAdmin(t *testing.T) {
	admins, mock := newMockAdmins(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`set_config`).
		WithArgs("", userID.String(), "off", "off").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM platform_admins WHERE user_id = \$1 AND role = \$2\)`).
		WithArgs(userID, "system:superadmin").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectCommit()

	ok, err := admins.IsSuperAdmin(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantAndRevoke(t *testing.T) {
	admins, mock := newMockAdmins(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`set_config`).
		WithArgs("", "", "on", "off").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO platform_admins`).
		WithArgs(userID, "system:superadmin", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, admins.Grant(context.Background(), userID, nil))

	mock.ExpectBegin()
	mock.ExpectExec(`set_config`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM platform_admins WHERE user_id = \$1`).
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	removed, err := admins.Revoke(context.Background(), userID)
	require.NoError(t, err)
	assert.False(t, removed)

	assert.NoError(t, mock.ExpectationsWereMet())
}
