package migrate

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestPostgres_EmptyDSN(t *testing.T) {
	err := Postgres("", Up)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestDirectionValidation(t *testing.T) {
	for _, direction := range []string{"", "UP", "sideways"} {
		assert.Error(t, Postgres("postgres://localhost/opgate", direction), direction)
		assert.Error(t, SQLite(&sql.DB{}, direction), direction)
	}
}

func TestPgx5URL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/opgate", pgx5URL("postgres://u:p@db:5432/opgate"))
	assert.Equal(t, "pgx5://db/opgate", pgx5URL("postgresql://db/opgate"))
	assert.Equal(t, "pgx5://db/opgate", pgx5URL("pgx5://db/opgate"))
}

func TestSQLite_UpDown(t *testing.T) {
	// Arrange
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "opgate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	// Act & Assert: up twice is a no-op the second time
	require.NoError(t, SQLite(db, Up))
	require.NoError(t, SQLite(db, Up))

	var name string
	require.NoError(t, db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='operators'`).Scan(&name))

	require.NoError(t, SQLite(db, Down))
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='operators'`).Scan(&name)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
