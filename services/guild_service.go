package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/repository"
	"github.com/remus-chat/remus-node/ws"
)

// GuildService serves the hydrated guild view and guild-level settings.
type GuildService interface {
	// GetView returns the guild with members, roles, channels the caller
	// can see, and the caller's guild-wide permissions.
	GetView(ctx context.Context, userID string) (*models.GuildView, error)
	UpdateName(ctx context.Context, actorID, name string) (*models.Guild, error)
	GetSettings(ctx context.Context) (models.Settings, error)
	UpdateSettings(ctx context.Context, actorID string, req *models.UpdateSettingsRequest) (models.Settings, error)
}

type guildService struct {
	guildID     string
	iconURL     *string
	guildRepo   repository.GuildRepository
	metaRepo    repository.MetaRepository
	memberRepo  repository.MemberRepository
	roleRepo    repository.RoleRepository
	channelRepo repository.ChannelRepository
	perms       PermissionService
	audit       AuditService
	hub         ws.EventPublisher
}

// NewGuildService creates the guild view/settings service. iconURL is
// the static icon path when the node has one configured.
func NewGuildService(
	guildID string,
	iconURL *string,
	guildRepo repository.GuildRepository,
	metaRepo repository.MetaRepository,
	memberRepo repository.MemberRepository,
	roleRepo repository.RoleRepository,
	channelRepo repository.ChannelRepository,
	perms PermissionService,
	audit AuditService,
	hub ws.EventPublisher,
) GuildService {
	return &guildService{
		guildID:     guildID,
		iconURL:     iconURL,
		guildRepo:   guildRepo,
		metaRepo:    metaRepo,
		memberRepo:  memberRepo,
		roleRepo:    roleRepo,
		channelRepo: channelRepo,
		perms:       perms,
		audit:       audit,
		hub:         hub,
	}
}

func (s *guildService) GetView(ctx context.Context, userID string) (*models.GuildView, error) {
	guild, err := s.guildRepo.GetByID(ctx, s.guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get guild: %w", err)
	}

	members, err := s.memberRepo.GetAll(ctx, s.guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	roles, err := s.roleRepo.GetAll(ctx, s.guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles: %w", err)
	}
	channels, err := s.channelRepo.GetAll(ctx, s.guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get channels: %w", err)
	}

	callerPerms, err := s.perms.GuildPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Filter channels to the ones the caller can view. Categories stay
	// visible if any of their children survive.
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

	if members == nil {
		members = []models.Member{}
	}
	if roles == nil {
		roles = []models.Role{}
	}

	return &models.GuildView{
		Guild:       *guild,
		Members:     members,
		Roles:       roles,
		Channels:    visible,
		Permissions: callerPerms,
		IconURL:     s.iconURL,
	}, nil
}

func (s *guildService) UpdateName(ctx context.Context, actorID, name string) (*models.Guild, error) {
	if err := s.perms.Require(ctx, actorID, models.PermManageServer); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < 1 || n > 100 {
		return nil, fmt.Errorf("%w: guild name must be between 1 and 100 characters", pkg.ErrBadRequest)
	}

	if err := s.guildRepo.UpdateName(ctx, s.guildID, name); err != nil {
		return nil, err
	}
	guild, err := s.guildRepo.GetByID(ctx, s.guildID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actorID, models.AuditGuildUpdate, s.guildID, map[string]string{"name": name})
	s.hub.BroadcastToRoom(ws.GuildRoom(s.guildID), ws.Event{Op: ws.OpGuildUpdate, Data: guild})
	return guild, nil
}

func (s *guildService) GetSettings(ctx context.Context) (models.Settings, error) {
	return s.metaRepo.GetSettings(ctx)
}

func (s *guildService) UpdateSettings(ctx context.Context, actorID string, req *models.UpdateSettingsRequest) (models.Settings, error) {
	if err := s.perms.Require(ctx, actorID, models.PermManageServer); err != nil {
		return models.Settings{}, err
	}
	if err := req.Validate(); err != nil {
		return models.Settings{}, err
	}

	settings, err := s.metaRepo.GetSettings(ctx)
	if err != nil {
		return models.Settings{}, err
	}
	if req.AuditMaxEntries != nil {
		settings.AuditMaxEntries = *req.AuditMaxEntries
	}
	if req.TimeoutMaxMinutes != nil {
		settings.TimeoutMaxMinutes = *req.TimeoutMaxMinutes
	}
	if err := s.metaRepo.SetSettings(ctx, settings); err != nil {
		return models.Settings{}, err
	}

	s.audit.Record(ctx, actorID, models.AuditSettingsUpdate, s.guildID, settings)
	s.hub.BroadcastToRoom(ws.GuildRoom(s.guildID), ws.Event{Op: ws.OpSettingsUpdate, Data: settings})
	return settings, nil
}
