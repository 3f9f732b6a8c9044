package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remus-chat/remus-node/models"
)

func addAuditEntry(t *testing.T, repo AuditRepository, guildID, id, actorID string, maxEntries int) {
	t.Helper()
	entry := &models.AuditEntry{
		ID: id, GuildID: guildID, ActorID: actorID,
		Action: models.AuditMemberKick, TargetID: "target",
	}
	require.NoError(t, repo.Add(context.Background(), entry, maxEntries))
	assert.False(t, entry.CreatedAt.IsZero(), "Add fills created_at")
}

func TestAuditCapEvictsOldest(t *testing.T) {
	conn, guildID := openTestStore(t)
	repo := NewSQLiteAuditRepo(conn)

	for i := 1; i <= 5; i++ {
		addAuditEntry(t, repo, guildID, fmt.Sprintf("e%d", i), "mod", 3)
	}

	count, err := repo.Count(context.Background(), guildID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	entries, err := repo.List(context.Background(), guildID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "e5", entries[0].ID, "newest first")
	assert.Equal(t, "e4", entries[1].ID)
	assert.Equal(t, "e3", entries[2].ID)
}

func TestAuditListJoinsActorUsername(t *testing.T) {
	conn, guildID := openTestStore(t)
	repo := NewSQLiteAuditRepo(conn)

	seedProfile(t, conn, "mod", "marge")
	addAuditEntry(t, repo, guildID, "e1", "mod", 0)
	addAuditEntry(t, repo, guildID, "e2", "gone-user", 0)

	entries, err := repo.List(context.Background(), guildID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Purged actors keep their entries but lose the username.
	assert.Equal(t, "", entries[0].ActorUsername)
	assert.Equal(t, "marge", entries[1].ActorUsername)
}

func TestAuditListPagination(t *testing.T) {
	conn, guildID := openTestStore(t)
	repo := NewSQLiteAuditRepo(conn)

	for i := 1; i <= 4; i++ {
		addAuditEntry(t, repo, guildID, fmt.Sprintf("e%d", i), "mod", 0)
	}

	entries, err := repo.List(context.Background(), guildID, 2, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e3", entries[0].ID)
	assert.Equal(t, "e2", entries[1].ID)
}
