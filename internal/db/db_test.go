package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := "UPDATE contacts SET current_step = ? WHERE id = ? AND current_step = ?"

	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t,
		"UPDATE contacts SET current_step = $1 WHERE id = $2 AND current_step = $3",
		Postgres.Rebind(q),
	)
}

func TestOpenSQLiteAppliesSchemaTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "drip.db")

	conn, dialect, err := Open("sqlite", path)
	require.NoError(t, err)
	assert.Equal(t, SQLite, dialect)
	require.NoError(t, ApplySchema(conn), "schema must be idempotent")

	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM contacts").Scan(&n))
	assert.Zero(t, n)
	require.NoError(t, conn.Close())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, _, err := Open("mysql", "x")
	assert.Error(t, err)
}
