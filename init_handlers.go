// Handler container construction.
package main

import (
	"github.com/remus-chat/remus-node/config"
	"github.com/remus-chat/remus-node/handlers"
	"github.com/remus-chat/remus-node/pkg/ratelimit"
	"github.com/remus-chat/remus-node/ws"
)

// Handlers holds every HTTP handler instance.
type Handlers struct {
	Server  *handlers.ServerHandler
	Guild   *handlers.GuildHandler
	Channel *handlers.ChannelHandler
	Message *handlers.MessageHandler
	Role    *handlers.RoleHandler
	Member  *handlers.MemberHandler
	Upload  *handlers.UploadHandler
	Admin   *handlers.AdminHandler
}

func initHandlers(cfg *config.Config, guildID string, repos *Repositories, svcs *Services, hub *ws.Hub, limiter *ratelimit.Limiter) *Handlers {
	return &Handlers{
		Server:  handlers.NewServerHandler(cfg, guildID, version),
		Guild:   handlers.NewGuildHandler(guildID, svcs.Guild, svcs.Member, svcs.Audit),
		Channel: handlers.NewChannelHandler(guildID, svcs.Channel),
		Message: handlers.NewMessageHandler(svcs.Message),
		Role:    handlers.NewRoleHandler(guildID, svcs.Role, svcs.Upload),
		Member:  handlers.NewMemberHandler(guildID, svcs.Member),
		Upload:  handlers.NewUploadHandler(svcs.Upload, svcs.Permission, limiter, cfg.Upload.MaxSize),
		Admin: handlers.NewAdminHandler(
			guildID, cfg.Upload.Dir,
			repos.Member, repos.Ban, repos.Meta, repos.Message, repos.Upload,
			svcs.Audit, hub,
		),
	}
}
