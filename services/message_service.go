package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/repository"
	"github.com/remus-chat/remus-node/ws"
)

const defaultMessagePageSize = 50

// MessageService is the chat message business logic.
type MessageService interface {
	// List pages channel history newest first. before is a message id
	// cursor; empty means the latest page.
	List(ctx context.Context, userID, channelID, before string, limit int) (*models.MessagePage, error)
	Create(ctx context.Context, authorID, channelID string, req *models.CreateMessageRequest) (*models.Message, error)
	// Delete allows the author or anyone holding MANAGE_MESSAGES in the
	// channel. Moderator deletions are audited, self-deletions are not.
	Delete(ctx context.Context, actorID, channelID, messageID string) error
}

type messageService struct {
	guildID     string
	uploadsDir  string
	messageRepo repository.MessageRepository
	channelRepo repository.ChannelRepository
	uploadRepo  repository.UploadRepository
	perms       PermissionService
	audit       AuditService
	hub         ws.EventPublisher
}

// NewMessageService creates the message service.
func NewMessageService(
	guildID, uploadsDir string,
	messageRepo repository.MessageRepository,
	channelRepo repository.ChannelRepository,
	uploadRepo repository.UploadRepository,
	perms PermissionService,
	audit AuditService,
	hub ws.EventPublisher,
) MessageService {
	return &messageService{
		guildID:     guildID,
		uploadsDir:  uploadsDir,
		messageRepo: messageRepo,
		channelRepo: channelRepo,
		uploadRepo:  uploadRepo,
		perms:       perms,
		audit:       audit,
		hub:         hub,
	}
}

func (s *messageService) List(ctx context.Context, userID, channelID, before string, limit int) (*models.MessagePage, error) {
	if err := s.perms.RequireInChannel(ctx, userID, channelID, models.PermViewChannels|models.PermReadHistory); err != nil {
		return nil, err
	}
	if err := s.requireTextChannel(ctx, channelID); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 100 {
		limit = defaultMessagePageSize
	}
	page, err := s.messageRepo.List(ctx, channelID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return page, nil
}

func (s *messageService) Create(ctx context.Context, authorID, channelID string, req *models.CreateMessageRequest) (*models.Message, error) {
	if err := s.perms.RequireInChannel(ctx, authorID, channelID, models.PermViewChannels|models.PermSendMessages); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireTextChannel(ctx, channelID); err != nil {
		return nil, err
	}

	// Attachment ids are dereferenced against the author's own uploads
	// for this channel; anything unknown, foreign, or uploaded for a
	// different channel is silently dropped.
	var attachments []models.Attachment
	if len(req.AttachmentIDs) > 0 {
		uploads, err := s.uploadRepo.GetOwnedByIDs(ctx, authorID, channelID, req.AttachmentIDs)
		if err != nil {
			return nil, err
		}
		for _, u := range uploads {
			attachments = append(attachments, u.ToAttachment())
		}
		if req.Content == "" && len(attachments) == 0 {
			return nil, fmt.Errorf("%w: no valid attachments", pkg.ErrBadRequest)
		}
	}

	var replyToID *string
	if req.ReplyToID != nil && *req.ReplyToID != "" {
		parent, err := s.messageRepo.GetByID(ctx, *req.ReplyToID)
		if err != nil {
			return nil, fmt.Errorf("%w: reply target not found", pkg.ErrBadRequest)
		}
		if parent.ChannelID != channelID {
			return nil, fmt.Errorf("%w: reply target is in another channel", pkg.ErrBadRequest)
		}
		replyToID = req.ReplyToID
	}

	message := &models.Message{
		ID:          uuid.NewString(),
		ChannelID:   channelID,
		AuthorID:    authorID,
		Content:     req.Content,
		Attachments: attachments,
		ReplyToID:   replyToID,
	}
	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	// Re-read for the author username join.
	created, err := s.messageRepo.GetByID(ctx, message.ID)
	if err != nil {
		created = message
	}

	s.hub.BroadcastToRoom(ws.ChannelRoom(channelID), ws.Event{Op: ws.OpMessageNew, Data: created})
	return created, nil
}

func (s *messageService) Delete(ctx context.Context, actorID, channelID, messageID string) error {
	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if message.ChannelID != channelID {
		return pkg.ErrNotFound
	}

	moderator := false
	if message.AuthorID != actorID {
		if err := s.perms.RequireInChannel(ctx, actorID, channelID, models.PermManageMessages); err != nil {
			return err
		}
		moderator = true
	}

	uploads, err := s.messageRepo.Delete(ctx, messageID)
	if err != nil {
		return err
	}
	removeUploadFiles(s.uploadsDir, uploads)

	if moderator {
		s.audit.Record(ctx, actorID, models.AuditMessageDelete, messageID, map[string]string{
			"channel_id": channelID, "author_id": message.AuthorID,
		})
	}
	s.hub.BroadcastToRoom(ws.ChannelRoom(channelID), ws.Event{Op: ws.OpMessageDelete, Data: map[string]string{
		"id": messageID, "channel_id": channelID,
	}})
	return nil
}

func (s *messageService) requireTextChannel(ctx context.Context, channelID string) error {
	channel, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	if channel.Type != models.ChannelText {
		return fmt.Errorf("%w: not a text channel", pkg.ErrBadRequest)
	}
	return nil
}
