package db

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInit_CreatesSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "harmony.db")

	pair, err := Init(dbPath)
	require.NoError(t, err)
	defer pair.Close()

	columns, err := tableColumns(pair.Writer(), "audit_events")
	require.NoError(t, err)
	for _, name := range []string{"event_id", "timestamp", "type", "level", "request_id", "song_id", "playback_id", "message", "payload"} {
		require.True(t, columns[name], "missing column %s", name)
	}

	var count int
	require.NoError(t, pair.Reader().QueryRow("SELECT COUNT(*) FROM audit_events").Scan(&count))
	require.Equal(t, 0, count)
}

func TestInit_EmptyPath(t *testing.T) {
	_, err := Init("")
	require.Error(t, err)
}

func TestInit_MigratesOldAuditTable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")

	old, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = old.Exec(`CREATE TABLE audit_events (
		event_id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		type TEXT NOT NULL,
		level TEXT NOT NULL,
		request_id TEXT,
		message TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}'
	)`)
	require.NoError(t, err)
	require.NoError(t, old.Close())

	pair, err := Init(dbPath)
	require.NoError(t, err)
	defer pair.Close()

	columns, err := tableColumns(pair.Writer(), "audit_events")
	require.NoError(t, err)
	require.True(t, columns["song_id"])
	require.True(t, columns["playback_id"])
}

func TestInit_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "harmony.db")

	first, err := Init(dbPath)
	require.NoError(t, err)
	_, err = first.Writer().Exec(`INSERT INTO audit_events (event_id, timestamp, type, level, message) VALUES ('e1', '2026-01-01T00:00:00Z', 'COMMAND', 'INFO', 'hi')`)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Init(dbPath)
	require.NoError(t, err)
	defer second.Close()

	var count int
	require.NoError(t, second.Reader().QueryRow("SELECT COUNT(*) FROM audit_events").Scan(&count))
	require.Equal(t, 1, count)
}
