package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workbasket/internal/db"
	"workbasket/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()

	v1, err := migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v1, 1)

	v2, err := migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)

	for _, table := range []string{"workbaskets", "workbasket_access_items", "distribution_targets", "tasks", "workbasket_history_events"} {
		var name string
		err := conn.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}
