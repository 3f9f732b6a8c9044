package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/repository"
	"github.com/remus-chat/remus-node/ws"
)

// ChannelService is the channel/category business logic.
type ChannelService interface {
	GetAll(ctx context.Context, userID string) ([]models.Channel, error)
	Get(ctx context.Context, userID, channelID string) (*models.Channel, error)
	Create(ctx context.Context, actorID string, req *models.CreateChannelRequest) (*models.Channel, error)
	Update(ctx context.Context, actorID, channelID string, req *models.UpdateChannelRequest) (*models.Channel, error)
	Delete(ctx context.Context, actorID, channelID string) error
	// Reorder applies a bulk position/category move and broadcasts the
	// full refreshed list. Reordering is idempotent: replaying the same
	// request yields the same layout.
	Reorder(ctx context.Context, actorID string, req *models.ReorderChannelsRequest) ([]models.Channel, error)
}

type channelService struct {
	guildID     string
	uploadsDir  string
	channelRepo repository.ChannelRepository
	perms       PermissionService
	audit       AuditService
	hub         ws.EventPublisher
}

// NewChannelService creates the channel service. uploadsDir is needed
// to unlink files when a channel's messages cascade away.
func NewChannelService(
	guildID, uploadsDir string,
	channelRepo repository.ChannelRepository,
	perms PermissionService,
	audit AuditService,
	hub ws.EventPublisher,
) ChannelService {
	return &channelService{
		guildID:     guildID,
		uploadsDir:  uploadsDir,
		channelRepo: channelRepo,
		perms:       perms,
		audit:       audit,
		hub:         hub,
	}
}

func (s *channelService) GetAll(ctx context.Context, userID string) ([]models.Channel, error) {
	channels, err := s.channelRepo.GetAll(ctx, s.guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get channels: %w", err)
	}

	visible := make([]models.Channel, 0, len(channels))
	keepCategory := make(map[string]bool)
	for _, ch := range channels {
		if ch.Type == models.ChannelCategory {
			continue
		}
		chPerms, err := s.perms.ChannelPermissions(ctx, userID, ch.ID)
		if err != nil {
			return nil, err
		}
		if chPerms.Has(models.PermViewChannels) {
			visible = append(visible, ch)
			if ch.CategoryID != nil {
				keepCategory[*ch.CategoryID] = true
			}
		}
	}
	for _, ch := range channels {
		if ch.Type == models.ChannelCategory && keepCategory[ch.ID] {
			visible = append(visible, ch)
		}
	}
	return visible, nil
}

func (s *channelService) Get(ctx context.Context, userID, channelID string) (*models.Channel, error) {
	if err := s.perms.RequireInChannel(ctx, userID, channelID, models.PermViewChannels); err != nil {
		return nil, err
	}
	return s.channelRepo.GetByID(ctx, channelID)
}

func (s *channelService) Create(ctx context.Context, actorID string, req *models.CreateChannelRequest) (*models.Channel, error) {
	if err := s.perms.Require(ctx, actorID, models.PermManageChannels); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var categoryID *string
	if req.CategoryID != nil && *req.CategoryID != "" {
		parent, err := s.channelRepo.GetByID(ctx, *req.CategoryID)
		if err != nil {
			return nil, fmt.Errorf("%w: category not found", pkg.ErrBadRequest)
		}
		if parent.Type != models.ChannelCategory {
			return nil, fmt.Errorf("%w: parent must be a category", pkg.ErrBadRequest)
		}
		categoryID = req.CategoryID
	}

	position, err := s.channelRepo.NextPosition(ctx, s.guildID, categoryID)
	if err != nil {
		return nil, err
	}

	channel := &models.Channel{
		ID:         uuid.NewString(),
		GuildID:    s.guildID,
		Name:       req.Name,
		Type:       req.Type,
		CategoryID: categoryID,
		Position:   position,
	}
	if err := s.channelRepo.Create(ctx, channel); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actorID, models.AuditChannelCreate, channel.ID, map[string]string{
		"name": channel.Name, "type": string(channel.Type),
	})
	s.hub.BroadcastToRoom(ws.GuildRoom(s.guildID), ws.Event{Op: ws.OpChannelCreate, Data: channel})
	return channel, nil
}

func (s *channelService) Update(ctx context.Context, actorID, channelID string, req *models.UpdateChannelRequest) (*models.Channel, error) {
	if err := s.perms.Require(ctx, actorID, models.PermManageChannels); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	channel, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}

	if req.Overrides != nil {
		// Touching the @everyone override can lock everyone out, so it
		// needs the stronger permission.
		if everyoneChanged(channel.Overrides, req.Overrides, s.guildID) {
			if err := s.perms.Require(ctx, actorID, models.PermManageServer); err != nil {
				return nil, err
			}
		}
		channel.Overrides = req.Overrides
	}
	if req.Name != nil {
		channel.Name = *req.Name
	}

	if err := s.channelRepo.Update(ctx, channel); err != nil {
		return nil, err
	}

	// Overrides shift effective permissions for everyone.
	s.perms.InvalidateAll()

	s.audit.Record(ctx, actorID, models.AuditChannelUpdate, channel.ID, map[string]string{"name": channel.Name})
	s.hub.BroadcastToRoom(ws.GuildRoom(s.guildID), ws.Event{Op: ws.OpChannelUpdate, Data: channel})
	return channel, nil
}

func everyoneChanged(old, new *models.PermissionOverrides, guildID string) bool {
	var oldOv, newOv models.Override
	if old != nil {
		oldOv = old.Roles[guildID]
	}
	if new != nil {
		newOv = new.Roles[guildID]
	}
	return oldOv != newOv
}

func (s *channelService) Delete(ctx context.Context, actorID, channelID string) error {
	if err := s.perms.Require(ctx, actorID, models.PermManageChannels); err != nil {
		return err
	}

	channel, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return err
	}

	uploads, err := s.channelRepo.Delete(ctx, channelID)
	if err != nil {
		return err
	}
	removeUploadFiles(s.uploadsDir, uploads)

	s.perms.InvalidateAll()

	s.audit.Record(ctx, actorID, models.AuditChannelDelete, channelID, map[string]string{"name": channel.Name})
	s.hub.BroadcastToRoom(ws.GuildRoom(s.guildID), ws.Event{Op: ws.OpChannelDelete, Data: map[string]string{"id": channelID}})
	return nil
}

func (s *channelService) Reorder(ctx context.Context, actorID string, req *models.ReorderChannelsRequest) ([]models.Channel, error) {
	if err := s.perms.Require(ctx, actorID, models.PermManageChannels); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Category moves must point at an actual category.
	for _, cp := range req.Channels {
		if cp.CategoryID == nil || *cp.CategoryID == "" {
			continue
		}
		parent, err := s.channelRepo.GetByID(ctx, *cp.CategoryID)
		if err != nil {
			return nil, fmt.Errorf("%w: category %s not found", pkg.ErrBadRequest, *cp.CategoryID)
		}
		if parent.Type != models.ChannelCategory {
			return nil, fmt.Errorf("%w: %s is not a category", pkg.ErrBadRequest, *cp.CategoryID)
		}
	}

	if err := s.channelRepo.UpdatePositions(ctx, s.guildID, req.Channels); err != nil {
		return nil, err
	}

	channels, err := s.channelRepo.GetAll(ctx, s.guildID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actorID, models.AuditChannelReorder, "", map[string]int{"moved": len(req.Channels)})
	s.hub.BroadcastToRoom(ws.GuildRoom(s.guildID), ws.Event{Op: ws.OpChannelReorder, Data: channels})
	return channels, nil
}

// removeUploadFiles unlinks stored files best-effort; missing files are
// not an error.
func removeUploadFiles(uploadsDir string, uploads []models.Upload) {
	for _, u := range uploads {
		if u.StoredName == "" {
			continue
		}
		path := filepath.Join(uploadsDir, filepath.Base(u.StoredName))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("[upload] failed to remove %s: %v", path, err)
		}
	}
}
