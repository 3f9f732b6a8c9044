// Service container construction.
package main

import (
	"path/filepath"

	"github.com/remus-chat/remus-node/config"
	"github.com/remus-chat/remus-node/media"
	"github.com/remus-chat/remus-node/services"
	"github.com/remus-chat/remus-node/ws"
)

// Services holds every service instance.
type Services struct {
	Permission services.PermissionService
	Identity   services.IdentityService
	Audit      services.AuditService
	Guild      services.GuildService
	Channel    services.ChannelService
	Role       services.RoleService
	Member     services.MemberService
	Message    services.MessageService
	Upload     services.UploadService
	Voice      services.VoiceService
	Gateway    services.GatewayService
	Heartbeat  services.HeartbeatService
}

func initServices(cfg *config.Config, guildID string, repos *Repositories, hub *ws.Hub, engine media.Engine) (*Services, error) {
	perms := services.NewPermissionService(guildID, repos.Role, repos.Member, repos.Channel)
	identity := services.NewIdentityService(cfg.Node.MainBackendURL, repos.Profile)
	audit := services.NewAuditService(guildID, repos.Audit, repos.Meta)

	var iconURL *string
	if cfg.Node.IconPath != "" {
		u := "/api/server/icon"
		iconURL = &u
	}

	iconsDir := filepath.Join(cfg.Database.RuntimeDir, "role-icons")
	upload, err := services.NewUploadService(cfg.Upload.Dir, iconsDir, cfg.Upload.MaxSize, repos.Upload)
	if err != nil {
		return nil, err
	}

	voice := services.NewVoiceService(guildID, engine, cfg.Media.ICEServers, perms, repos.Member, repos.Channel, hub, hub)

	member := services.NewMemberService(
		guildID, cfg.Upload.Dir,
		repos.Member, repos.Profile, repos.Role, repos.Channel,
		repos.Ban, repos.Meta, repos.Purge,
		perms, audit, hub, voice,
	)

	message := services.NewMessageService(guildID, cfg.Upload.Dir, repos.Message, repos.Channel, repos.Upload, perms, audit, hub)

	serverID := guildID
	if len(serverID) > 8 {
		serverID = serverID[:8]
	}

	return &Services{
		Permission: perms,
		Identity:   identity,
		Audit:      audit,
		Guild:      services.NewGuildService(guildID, iconURL, repos.Guild, repos.Meta, repos.Member, repos.Role, repos.Channel, perms, audit, hub),
		Channel:    services.NewChannelService(guildID, cfg.Upload.Dir, repos.Channel, perms, audit, hub),
		Role:       services.NewRoleService(guildID, repos.Role, perms, audit, hub),
		Member:     member,
		Message:    message,
		Upload:     upload,
		Voice:      voice,
		Gateway:    services.NewGatewayService(guildID, message, perms, repos.Member),
		Heartbeat:  services.NewHeartbeatService(cfg.Node.MainBackendURL, cfg.Node.Name, cfg.Node.PublicURL, serverID, cfg.Node.Region, version),
	}, nil
}
