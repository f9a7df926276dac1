package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAppliesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ambientd.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	var version int
	require.NoError(t, db.Conn().QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, SchemaVersion, version)

	tables := []string{
		"finance_entries", "todos", "links", "crypto_intents",
		"handshake_events", "profile_kv", "memories",
	}
	for _, table := range tables {
		var name string
		err := db.Conn().QueryRow(`
			SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?
		`, table).Scan(&name)
		require.NoError(t, err, "table %s missing", table)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ambientd.db")

	db, err := Open(path)
	require.NoError(t, err)
	_, err = db.Conn().Exec(`
		INSERT INTO todos (id, user_id, title, created_at) VALUES ('t1', 'u1', 'x', 0)
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM todos`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "ambientd.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()
	assert.NoError(t, db.Ping())
}
