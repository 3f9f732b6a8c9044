package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/ws"
)

func newGatewayServiceFixture(t *testing.T) (GatewayService, *messageFixture, *fakeChannelRepo, *fakeMemberRepo) {
	t.Helper()
	_, members, channels, perms := newPermFixture(t)

	channels.channels["txt"] = &models.Channel{ID: "txt", GuildID: testGuildID, Type: models.ChannelText}
	channels.channels["hidden"] = &models.Channel{
		ID: "hidden", GuildID: testGuildID, Type: models.ChannelText,
		Overrides: &models.PermissionOverrides{
			Roles: map[string]models.Override{testGuildID: {Deny: models.PermViewChannels}},
		},
	}
	channels.channels["readonly"] = &models.Channel{
		ID: "readonly", GuildID: testGuildID, Type: models.ChannelText,
		Overrides: &models.PermissionOverrides{
			Roles: map[string]models.Override{testGuildID: {Deny: models.PermSendMessages}},
		},
	}

	uploads := newFakeUploadRepo()
	messages := newFakeMessageRepo(uploads)
	spy := &spyPublisher{}
	msgSvc := NewMessageService(testGuildID, t.TempDir(), messages, channels, uploads, perms,
		NewAuditService(testGuildID, &fakeAuditRepo{}, newFakeMetaRepo(testGuildID)), spy)

	f := &messageFixture{messages: messages, uploads: uploads, spy: spy, svc: msgSvc}
	return NewGatewayService(testGuildID, msgSvc, perms, members), f, channels, members
}

func TestGatewaySendMessageUsesCreatePath(t *testing.T) {
	svc, f, _, _ := newGatewayServiceFixture(t)
	ctx := context.Background()

	result, err := svc.SendMessage(ctx, "u1", "txt", "  hi  ", nil, "")
	require.NoError(t, err)
	msg, ok := result.(*models.Message)
	require.True(t, ok)
	assert.Equal(t, "hi", msg.Content, "socket sends get the same trimming as REST")
	assert.True(t, f.spy.hasOp(ws.OpMessageNew), "fanout happens inside the create path")

	reply, err := svc.SendMessage(ctx, "u1", "txt", "re", nil, msg.ID)
	require.NoError(t, err)
	replyMsg := reply.(*models.Message)
	require.NotNil(t, replyMsg.ReplyToID)
	assert.Equal(t, msg.ID, *replyMsg.ReplyToID)
}

func TestGatewaySendMessageDeniedInHiddenChannel(t *testing.T) {
	svc, _, _, _ := newGatewayServiceFixture(t)

	_, err := svc.SendMessage(context.Background(), "u1", "hidden", "hi", nil, "")
	assert.Error(t, err)
}

func TestGatewayGates(t *testing.T) {
	svc, _, _, _ := newGatewayServiceFixture(t)
	ctx := context.Background()

	assert.True(t, svc.CanAccess(ctx, "u1", "txt"))
	assert.False(t, svc.CanAccess(ctx, "u1", "hidden"))
	assert.False(t, svc.CanAccess(ctx, "ghost", "txt"), "non-members see nothing")

	assert.True(t, svc.CanSend(ctx, "u1", "txt"))
	assert.False(t, svc.CanSend(ctx, "u1", "readonly"), "viewable but posting denied")
	assert.False(t, svc.CanSend(ctx, "u1", "missing"), "unknown channel denies rather than errors")

	assert.True(t, svc.IsMember(ctx, "u1"))
	assert.False(t, svc.IsMember(ctx, "ghost"))
}
