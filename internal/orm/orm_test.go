package orm

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/activerecord/internal/apperror"
	"github.com/sakif/activerecord/internal/database"
	"github.com/sakif/activerecord/internal/sqlb"
	"github.com/sakif/activerecord/internal/testutil"
)

var fixedNow = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

// newMockDB returns a DB on sqlmock with exact SQL matching and a fixed clock.
func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = sqlDB.Close()
	})

	logger := testutil.NewTestLogger(t)
	conn := database.NewConnection(sqlDB, sqlb.SQLite, logger)
	return New(conn, WithLogger(logger), WithClock(func() time.Time { return fixedNow })), mock
}

func TestNew_MissingConnection(t *testing.T) {
	prev := database.ResetInstance()
	t.Cleanup(func() {
		if prev != nil {
			database.SetInstance(prev)
		} else {
			database.ResetInstance()
		}
	})

	user := New(nil).Define(Config{Name: "User", Unguarded: true})

	_, err := user.New(map[string]any{"name": "ada"})
	assert.ErrorIs(t, err, apperror.ErrMissingConnection)
	assert.EqualError(t, err, "Connection object is missing.")

	_, err = user.Find(context.Background(), 1)
	assert.ErrorIs(t, err, apperror.ErrMissingConnection)

	_, err = New(nil).Table("users").Rows(context.Background())
	assert.ErrorIs(t, err, apperror.ErrMissingConnection)
}

func TestNew_FallsBackToRegisteredConnection(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer func() { _ = sqlDB.Close() }()

	database.SetInstance(database.NewConnection(sqlDB, sqlb.SQLite, nil))
	t.Cleanup(func() { database.ResetInstance() })

	mock.ExpectQuery(`SELECT * FROM "users" WHERE "id" = ? LIMIT 1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ada"))

	user := Define(Config{Name: "User"})
	m, err := user.Find(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "ada", m.Get("name"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_Table_RawQuery(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT * FROM "logs" WHERE "level" = ?`).
		WithArgs("warn").
		WillReturnRows(sqlmock.NewRows([]string{"id", "level"}).AddRow(int64(1), "warn"))
	mock.ExpectQuery(`SELECT * FROM "logs" WHERE "level" = ? LIMIT 1`).
		WithArgs("panic").
		WillReturnRows(sqlmock.NewRows([]string{"id", "level"}))

	rows, err := db.Table("logs").Where("level", "warn").Rows(ctx)
	require.NoError(t, err)
	assert.Equal(t, []sqlb.Row{{"id": int64(1), "level": "warn"}}, rows)

	row, err := db.Table("logs").Where("level", "panic").Row(ctx)
	require.NoError(t, err, "an unbound query never reports not-found")
	assert.Nil(t, row)

	_, err = db.Table("logs").First(ctx)
	assert.ErrorIs(t, err, apperror.ErrConfiguration)
}
