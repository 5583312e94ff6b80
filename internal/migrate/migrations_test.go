package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bluenode2024/POCBE/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(conn, dialect))
	require.NoError(t, Migrate(conn, dialect))

	v, err := Version(conn)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT count(*) FROM validations`).Scan(&n))
	assert.Zero(t, n)
}

func TestMigrationsExistForEveryDialect(t *testing.T) {
	for _, d := range []db.Dialect{db.SQLite, db.Postgres} {
		ms, err := loadMigrations(d)
		require.NoError(t, err)
		require.NotEmpty(t, ms, d)
		assert.Equal(t, 1, ms[0].Version)
	}
}
