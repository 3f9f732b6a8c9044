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

func TestMessageDeleteRemovesAttachmentRows(t *testing.T) {
	conn, guildID := openTestStore(t)
	ctx := context.Background()
	messages := NewSQLiteMessageRepo(conn)
	uploads := NewSQLiteUploadRepo(conn)

	seedMember(t, conn, guildID, "u1", "alice")
	channelID := generalChannelID(t, conn)

	attached := &models.Upload{
		ID: uuid.NewString(), UploaderID: "u1", ChannelID: channelID, Filename: "pic.png",
		StoredName: "1-pic.png", URL: "/uploads/1-pic.png", Size: 10, MimeType: "image/png",
	}
	loose := &models.Upload{
		ID: uuid.NewString(), UploaderID: "u1", ChannelID: channelID, Filename: "draft.png",
		StoredName: "2-draft.png", URL: "/uploads/2-draft.png", Size: 10, MimeType: "image/png",
	}
	require.NoError(t, uploads.Create(ctx, attached))
	require.NoError(t, uploads.Create(ctx, loose))

	msg := &models.Message{
		ID: uuid.NewString(), ChannelID: channelID, AuthorID: "u1",
		Content: "look", Attachments: []models.Attachment{attached.ToAttachment()},
	}
	require.NoError(t, messages.Create(ctx, msg))

	removed, err := messages.Delete(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, removed, 1, "only the message's own attachments come back")
	assert.Equal(t, "1-pic.png", removed[0].StoredName)

	_, err = messages.GetByID(ctx, msg.ID)
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	// The attachment row went with the message; unattached uploads stay.
	_, err = uploads.GetByID(ctx, attached.ID)
	assert.ErrorIs(t, err, pkg.ErrNotFound)
	_, err = uploads.GetByID(ctx, loose.ID)
	assert.NoError(t, err)

	_, err = messages.Delete(ctx, msg.ID)
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestUploadGetOwnedByIDsScopedToChannel(t *testing.T) {
	conn, guildID := openTestStore(t)
	ctx := context.Background()
	channels := NewSQLiteChannelRepo(conn)
	uploads := NewSQLiteUploadRepo(conn)

	seedMember(t, conn, guildID, "u1", "alice")
	seedMember(t, conn, guildID, "u2", "bob")
	channelID := generalChannelID(t, conn)
	other := createChannel(t, channels, guildID, "other", models.ChannelText)

	mine := &models.Upload{
		ID: uuid.NewString(), UploaderID: "u1", ChannelID: channelID, Filename: "a.png",
		StoredName: "1-a.png", URL: "/uploads/1-a.png", Size: 4, MimeType: "image/png",
	}
	theirs := &models.Upload{
		ID: uuid.NewString(), UploaderID: "u2", ChannelID: channelID, Filename: "b.png",
		StoredName: "2-b.png", URL: "/uploads/2-b.png", Size: 4, MimeType: "image/png",
	}
	elsewhere := &models.Upload{
		ID: uuid.NewString(), UploaderID: "u1", ChannelID: other.ID, Filename: "c.png",
		StoredName: "3-c.png", URL: "/uploads/3-c.png", Size: 4, MimeType: "image/png",
	}
	for _, u := range []*models.Upload{mine, theirs, elsewhere} {
		require.NoError(t, uploads.Create(ctx, u))
	}

	got, err := uploads.GetOwnedByIDs(ctx, "u1", channelID,
		[]string{mine.ID, theirs.ID, elsewhere.ID, "ghost", mine.ID})
	require.NoError(t, err)
	require.Len(t, got, 1, "foreign and cross-channel uploads filtered out")
	assert.Equal(t, mine.ID, got[0].ID)
}
