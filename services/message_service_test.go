package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/ws"
)

type fakeMessageRepo struct {
	messages map[string]*models.Message
	order    []string
	// uploads mimics the delete cascade over attachment rows.
	uploads *fakeUploadRepo
}

func newFakeMessageRepo(uploads *fakeUploadRepo) *fakeMessageRepo {
	return &fakeMessageRepo{messages: map[string]*models.Message{}, uploads: uploads}
}

func (f *fakeMessageRepo) Create(ctx context.Context, message *models.Message) error {
	message.CreatedAt = time.Now()
	f.messages[message.ID] = message
	f.order = append(f.order, message.ID)
	return nil
}

func (f *fakeMessageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, pkg.ErrNotFound
	}
	return m, nil
}

func (f *fakeMessageRepo) List(ctx context.Context, channelID, beforeID string, limit int) (*models.MessagePage, error) {
	page := &models.MessagePage{Messages: []models.Message{}}
	start := len(f.order)
	if beforeID != "" {
		for i, id := range f.order {
			if id == beforeID {
				start = i
				break
			}
		}
	}
	for i := start - 1; i >= 0 && len(page.Messages) < limit; i-- {
		if m := f.messages[f.order[i]]; m != nil && m.ChannelID == channelID {
			page.Messages = append(page.Messages, *m)
		}
	}
	return page, nil
}

func (f *fakeMessageRepo) Delete(ctx context.Context, id string) ([]models.Upload, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, pkg.ErrNotFound
	}
	var removed []models.Upload
	for _, a := range m.Attachments {
		if u, ok := f.uploads.uploads[a.ID]; ok {
			removed = append(removed, *u)
			delete(f.uploads.uploads, a.ID)
		}
	}
	delete(f.messages, id)
	return removed, nil
}

type messageFixture struct {
	messages   *fakeMessageRepo
	uploads    *fakeUploadRepo
	auditLog   *fakeAuditRepo
	spy        *spyPublisher
	uploadsDir string
	svc        MessageService
}

func newMessageFixture(t *testing.T) *messageFixture {
	t.Helper()
	roles, members, channels, perms := newPermFixture(t)

	roles.roles["mod"] = &models.Role{ID: "mod", GuildID: testGuildID, Permissions: models.PermManageMessages, Position: 3}
	roles.memberRoles["mod-user"] = []string{"mod"}
	members.members["mod-user"] = &models.Member{GuildID: testGuildID, UserID: "mod-user", RoleIDs: []string{"mod"}}
	members.members["u2"] = &models.Member{GuildID: testGuildID, UserID: "u2"}

	channels.channels["txt"] = &models.Channel{ID: "txt", GuildID: testGuildID, Type: models.ChannelText}
	channels.channels["txt2"] = &models.Channel{ID: "txt2", GuildID: testGuildID, Type: models.ChannelText}
	channels.channels["vc"] = &models.Channel{ID: "vc", GuildID: testGuildID, Type: models.ChannelVoice}

	uploads := newFakeUploadRepo()
	messages := newFakeMessageRepo(uploads)
	auditLog := &fakeAuditRepo{}
	spy := &spyPublisher{}
	meta := newFakeMetaRepo(testGuildID)
	uploadsDir := t.TempDir()

	svc := NewMessageService(testGuildID, uploadsDir, messages, channels, uploads, perms,
		NewAuditService(testGuildID, auditLog, meta), spy)
	return &messageFixture{messages: messages, uploads: uploads, auditLog: auditLog, spy: spy, uploadsDir: uploadsDir, svc: svc}
}

func TestCreateMessageBroadcasts(t *testing.T) {
	f := newMessageFixture(t)

	msg, err := f.svc.Create(context.Background(), "u1", "txt", &models.CreateMessageRequest{Content: "  hello  "})
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content, "content trimmed")
	assert.Equal(t, "u1", msg.AuthorID)
	assert.True(t, f.spy.hasOp(ws.OpMessageNew))
}

func TestCreateMessageRejectsVoiceChannel(t *testing.T) {
	f := newMessageFixture(t)

	_, err := f.svc.Create(context.Background(), "u1", "vc", &models.CreateMessageRequest{Content: "hi"})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}

func TestCreateMessageDereferencesOwnUploads(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	f.uploads.uploads["mine"] = &models.Upload{ID: "mine", UploaderID: "u1", ChannelID: "txt", Filename: "a.png", URL: "/uploads/a.png"}
	f.uploads.uploads["theirs"] = &models.Upload{ID: "theirs", UploaderID: "u2", ChannelID: "txt", Filename: "b.png"}
	f.uploads.uploads["elsewhere"] = &models.Upload{ID: "elsewhere", UploaderID: "u1", ChannelID: "txt2", Filename: "c.png"}

	msg, err := f.svc.Create(ctx, "u1", "txt", &models.CreateMessageRequest{
		Content:       "look",
		AttachmentIDs: []string{"mine", "theirs", "elsewhere", "ghost"},
	})
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1, "foreign, cross-channel, and unknown ids dropped")
	assert.Equal(t, "mine", msg.Attachments[0].ID)

	// All ids invalid and no content: refused rather than posting empty.
	_, err = f.svc.Create(ctx, "u1", "txt", &models.CreateMessageRequest{AttachmentIDs: []string{"ghost"}})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}

func TestCreateMessageReplyValidation(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	parent, err := f.svc.Create(ctx, "u1", "txt", &models.CreateMessageRequest{Content: "parent"})
	require.NoError(t, err)
	other, err := f.svc.Create(ctx, "u1", "txt2", &models.CreateMessageRequest{Content: "elsewhere"})
	require.NoError(t, err)

	reply, err := f.svc.Create(ctx, "u2", "txt", &models.CreateMessageRequest{Content: "re", ReplyToID: &parent.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyToID)
	assert.Equal(t, parent.ID, *reply.ReplyToID)

	_, err = f.svc.Create(ctx, "u2", "txt", &models.CreateMessageRequest{Content: "re", ReplyToID: &other.ID})
	assert.ErrorIs(t, err, pkg.ErrBadRequest, "cross-channel reply")

	ghost := "ghost"
	_, err = f.svc.Create(ctx, "u2", "txt", &models.CreateMessageRequest{Content: "re", ReplyToID: &ghost})
	assert.ErrorIs(t, err, pkg.ErrBadRequest, "dangling reply target")
}

func TestListMessages(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, "u1", "txt", &models.CreateMessageRequest{Content: "m"})
		require.NoError(t, err)
	}

	page, err := f.svc.List(ctx, "u1", "txt", "", 0)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 3, "bad limit falls back to the default page size")

	page, err = f.svc.List(ctx, "u1", "txt", "", 2)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 2)
}

func TestDeleteMessageAsAuthor(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	msg, err := f.svc.Create(ctx, "u1", "txt", &models.CreateMessageRequest{Content: "oops"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, "u1", "txt", msg.ID))
	assert.True(t, f.spy.hasOp(ws.OpMessageDelete))
	assert.Empty(t, f.auditLog.entries, "self-deletion is not audited")
}

func TestDeleteMessageAsModerator(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	msg, err := f.svc.Create(ctx, "u1", "txt", &models.CreateMessageRequest{Content: "bad"})
	require.NoError(t, err)

	// A plain member cannot delete someone else's message.
	err = f.svc.Delete(ctx, "u2", "txt", msg.ID)
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	require.NoError(t, f.svc.Delete(ctx, "mod-user", "txt", msg.ID))
	assert.Contains(t, f.auditLog.actions(), models.AuditMessageDelete)
}

func TestDeleteMessageCrossChannel(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	msg, err := f.svc.Create(ctx, "u1", "txt", &models.CreateMessageRequest{Content: "here"})
	require.NoError(t, err)

	err = f.svc.Delete(ctx, "u1", "txt2", msg.ID)
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestDeleteMessageRemovesAttachments(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	path := filepath.Join(f.uploadsDir, "stored-a.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))
	f.uploads.uploads["att"] = &models.Upload{
		ID: "att", UploaderID: "u1", ChannelID: "txt",
		Filename: "a.png", StoredName: "stored-a.png", URL: "/uploads/stored-a.png",
	}

	msg, err := f.svc.Create(ctx, "u1", "txt", &models.CreateMessageRequest{
		Content: "pic", AttachmentIDs: []string{"att"},
	})
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1)

	require.NoError(t, f.svc.Delete(ctx, "u1", "txt", msg.ID))

	_, ok := f.uploads.uploads["att"]
	assert.False(t, ok, "upload row removed with the message")
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "stored file unlinked")
}
