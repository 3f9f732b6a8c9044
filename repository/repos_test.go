package repository

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/remus-chat/remus-node/database"
	"github.com/remus-chat/remus-node/models"
)

// openTestStore opens a real SQLite database in a temp dir, migrated and
// seeded, and returns the pool plus the seeded guild id.
func openTestStore(t *testing.T) (*sql.DB, string) {
	t.Helper()
	migrations, err := fs.Sub(database.EmbeddedMigrations, "migrations")
	require.NoError(t, err)

	dir := t.TempDir()
	db, err := database.New(filepath.Join(dir, "node.db"), filepath.Join(dir, "backups"), migrations)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	guildID, err := db.EnsureSeed(context.Background(), "Repo Tests")
	require.NoError(t, err)
	return db.Conn, guildID
}

func seedProfile(t *testing.T, conn *sql.DB, id, username string) {
	t.Helper()
	err := NewSQLiteProfileRepo(conn).Upsert(context.Background(), &models.Profile{ID: id, Username: username})
	require.NoError(t, err)
}

func seedMember(t *testing.T, conn *sql.DB, guildID, userID, username string) {
	t.Helper()
	seedProfile(t, conn, userID, username)
	err := NewSQLiteMemberRepo(conn).Create(context.Background(), &models.Member{GuildID: guildID, UserID: userID})
	require.NoError(t, err)
}

// generalChannelID returns the id of the seeded "general" text channel.
func generalChannelID(t *testing.T, conn *sql.DB) string {
	t.Helper()
	var id string
	err := conn.QueryRow("SELECT id FROM channels WHERE name = 'general'").Scan(&id)
	require.NoError(t, err)
	return id
}

func tableCount(t *testing.T, conn *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(query, args...).Scan(&n))
	return n
}
