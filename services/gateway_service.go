package services

import (
	"context"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/repository"
	"github.com/remus-chat/remus-node/ws"
)

// GatewayService adapts the message and permission services to the
// socket's chat surface. message:send runs the exact REST create path,
// so permission checks, attachment dereferencing, and fanout stay in
// one place.
type GatewayService interface {
	ws.ChatController
}

type gatewayService struct {
	guildID    string
	messages   MessageService
	perms      PermissionService
	memberRepo repository.MemberRepository
}

// NewGatewayService creates the socket chat adapter.
func NewGatewayService(
	guildID string,
	messages MessageService,
	perms PermissionService,
	memberRepo repository.MemberRepository,
) GatewayService {
	return &gatewayService{
		guildID:    guildID,
		messages:   messages,
		perms:      perms,
		memberRepo: memberRepo,
	}
}

func (s *gatewayService) SendMessage(ctx context.Context, userID, channelID, content string, attachmentIDs []string, replyToID string) (any, error) {
	req := &models.CreateMessageRequest{
		Content:       content,
		AttachmentIDs: attachmentIDs,
	}
	if replyToID != "" {
		req.ReplyToID = &replyToID
	}
	return s.messages.Create(ctx, userID, channelID, req)
}

func (s *gatewayService) CanAccess(ctx context.Context, userID, channelID string) bool {
	return s.perms.RequireInChannel(ctx, userID, channelID, models.PermViewChannels) == nil
}

func (s *gatewayService) CanSend(ctx context.Context, userID, channelID string) bool {
	return s.perms.RequireInChannel(ctx, userID, channelID, models.PermViewChannels|models.PermSendMessages) == nil
}

func (s *gatewayService) IsMember(ctx context.Context, userID string) bool {
	ok, err := s.memberRepo.Exists(ctx, s.guildID, userID)
	return err == nil && ok
}
