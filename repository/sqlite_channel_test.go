package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
)

func createChannel(t *testing.T, repo ChannelRepository, guildID, name string, typ models.ChannelType) *models.Channel {
	t.Helper()
	channel := &models.Channel{ID: uuid.NewString(), GuildID: guildID, Name: name, Type: typ}
	require.NoError(t, repo.Create(context.Background(), channel))
	return channel
}

func TestChannelOverridesRoundTrip(t *testing.T) {
	conn, guildID := openTestStore(t)
	ctx := context.Background()
	repo := NewSQLiteChannelRepo(conn)

	channel := createChannel(t, repo, guildID, "staff", models.ChannelText)
	channel.Overrides = &models.PermissionOverrides{
		Roles: map[string]models.Override{
			guildID: {Deny: models.PermViewChannels},
		},
	}
	require.NoError(t, repo.Update(ctx, channel))

	got, err := repo.GetByID(ctx, channel.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Overrides)
	assert.Equal(t, models.PermViewChannels, got.Overrides.Roles[guildID].Deny)

	// Clearing every entry stores NULL, not an empty JSON object.
	channel.Overrides = &models.PermissionOverrides{}
	require.NoError(t, repo.Update(ctx, channel))
	got, err = repo.GetByID(ctx, channel.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Overrides)
}

func TestChannelDeleteCollectsUploads(t *testing.T) {
	conn, guildID := openTestStore(t)
	ctx := context.Background()
	channels := NewSQLiteChannelRepo(conn)
	uploads := NewSQLiteUploadRepo(conn)
	messages := NewSQLiteMessageRepo(conn)

	seedMember(t, conn, guildID, "u1", "alice")
	channel := createChannel(t, channels, guildID, "media", models.ChannelText)

	upload := &models.Upload{
		ID: uuid.NewString(), UploaderID: "u1", ChannelID: channel.ID, Filename: "pic.png",
		StoredName: "1-pic.png", URL: "/uploads/1-pic.png", Size: 10, MimeType: "image/png",
	}
	require.NoError(t, uploads.Create(ctx, upload))
	require.NoError(t, messages.Create(ctx, &models.Message{
		ID: uuid.NewString(), ChannelID: channel.ID, AuthorID: "u1",
		Content: "look", Attachments: []models.Attachment{upload.ToAttachment()},
	}))

	removed, err := channels.Delete(ctx, channel.ID)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "1-pic.png", removed[0].StoredName)

	// Messages cascade with the channel; the upload row went with them.
	assert.Equal(t, 0, tableCount(t, conn, "SELECT COUNT(*) FROM messages WHERE channel_id = ?", channel.ID))
	assert.Equal(t, 0, tableCount(t, conn, "SELECT COUNT(*) FROM uploads"))

	_, err = channels.Delete(ctx, channel.ID)
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestChannelUpdatePositions(t *testing.T) {
	conn, guildID := openTestStore(t)
	ctx := context.Background()
	repo := NewSQLiteChannelRepo(conn)

	category := createChannel(t, repo, guildID, "Topics", models.ChannelCategory)
	a := createChannel(t, repo, guildID, "alpha", models.ChannelText)

	require.NoError(t, repo.UpdatePositions(ctx, guildID, []models.ChannelPosition{
		{ID: a.ID, Position: 0, CategoryID: &category.ID},
	}))
	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CategoryID)
	assert.Equal(t, category.ID, *got.CategoryID)

	// Empty category string moves the channel back to the top level.
	empty := ""
	require.NoError(t, repo.UpdatePositions(ctx, guildID, []models.ChannelPosition{
		{ID: a.ID, Position: 2, CategoryID: &empty},
	}))
	got, err = repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CategoryID)
	assert.Equal(t, 2, got.Position)

	err = repo.UpdatePositions(ctx, guildID, []models.ChannelPosition{
		{ID: "missing", Position: 0},
	})
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestChannelNextPosition(t *testing.T) {
	conn, guildID := openTestStore(t)
	ctx := context.Background()
	repo := NewSQLiteChannelRepo(conn)

	// The seed creates general (0) and Lounge (1) at the top level.
	next, err := repo.NextPosition(ctx, guildID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, next)

	category := createChannel(t, repo, guildID, "Topics", models.ChannelCategory)
	next, err = repo.NextPosition(ctx, guildID, &category.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, next, "empty categories start at zero")
}
