package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMigrations_Ordered(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)

	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, strings.TrimSpace(m.SQL))
	}
}

func TestGetMigrations_ForceRowLevelSecurity(t *testing.T) {
	var all strings.Builder
	for _, m := range GetMigrations() {
		all.WriteString(m.SQL)
	}
	schema := all.String()

	for _, table := range []string{"tenants", "memberships", "invitations", "api_keys", "audit_records"} {
		assert.Contains(t, schema, "ALTER TABLE "+table+" ENABLE ROW LEVEL SECURITY", table)
		assert.Contains(t, schema, "ALTER TABLE "+table+" FORCE ROW LEVEL SECURITY", table)
	}

	assert.NotContains(t, schema, "POLICY audit_records_update")
	assert.NotContains(t, schema, "POLICY audit_records_delete")
	assert.NotContains(t, schema, "SECURITY DEFINER")
}

func TestRunMigrations_AppliesPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	migrations := GetMigrations()
	applied := len(migrations) - 2

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS warden_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM warden_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(applied))

	for _, m := range migrations[applied:] {
		mock.ExpectBegin()
		mock.ExpectExec(".+").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO warden_migrations").
			WithArgs(m.Version, m.Description).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	require.NoError(t, RunMigrations(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_UpToDate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS warden_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(len(GetMigrations())))

	require.NoError(t, RunMigrations(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_FailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	last := GetMigrations()[len(GetMigrations())-1]

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS warden_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(last.Version - 1))
	mock.ExpectBegin()
	mock.ExpectExec(".+").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	err = RunMigrations(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), last.Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}
