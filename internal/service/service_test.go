package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/activerecord/internal/database"
	"github.com/sakif/activerecord/internal/model"
	"github.com/sakif/activerecord/internal/orm"
	"github.com/sakif/activerecord/internal/testutil"
)

// newTestDB opens an in-memory sqlite database with the application schema.
func newTestDB(t *testing.T) *orm.DB {
	t.Helper()
	ctx := context.Background()
	logger := testutil.NewTestLogger(t)

	conn, err := database.Open(ctx, database.Config{Connection: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = conn.DB.ExecContext(ctx, model.SQLiteSchema)
	require.NoError(t, err)
	return orm.New(conn, orm.WithLogger(logger))
}
