// Route table. Go 1.22 method patterns on the stdlib mux; the auth
// middleware wraps everything under /api except the public endpoints.
package main

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/remus-chat/remus-node/config"
	"github.com/remus-chat/remus-node/middleware"
	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/ws"
)

func initRoutes(cfg *config.Config, h *Handlers, wsHandler *ws.Handler, authMW *middleware.AuthMiddleware, permMW *middleware.PermissionMiddleware, adminMW *middleware.AdminMiddleware) http.Handler {
	mux := http.NewServeMux()

	authed := func(fn http.HandlerFunc) http.Handler {
		return authMW.Require(fn)
	}

	// Public surface.
	mux.HandleFunc("GET /api/health", h.Server.Health)
	mux.HandleFunc("GET /api/server/info", h.Server.Info)
	mux.HandleFunc("GET /api/server/icon", h.Server.Icon)
	mux.Handle("GET /ws", wsHandler)

	// Static files.
	iconsDir := filepath.Join(cfg.Database.RuntimeDir, "role-icons")
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.Upload.Dir))))
	mux.Handle("GET /role-icons/", http.StripPrefix("/role-icons/", http.FileServer(http.Dir(iconsDir))))

	// Guild.
	mux.Handle("GET /api/guilds", authed(h.Guild.List))
	mux.Handle("POST /api/guilds", authed(h.Guild.Create))
	mux.Handle("PATCH /api/guilds/{guildID}", authed(h.Guild.UpdateName))
	mux.Handle("POST /api/guilds/{guildID}/join", authed(h.Guild.Join))
	mux.Handle("POST /api/guilds/{guildID}/leave", authed(h.Guild.Leave))
	mux.Handle("GET /api/guilds/{guildID}/settings", authed(h.Guild.GetSettings))
	mux.Handle("PATCH /api/guilds/{guildID}/settings", authed(h.Guild.UpdateSettings))
	mux.Handle("GET /api/guilds/{guildID}/audit",
		authMW.Require(permMW.Require(models.PermViewAuditLog)(http.HandlerFunc(h.Guild.Audit))))

	// Channels.
	mux.Handle("GET /api/guilds/{guildID}/channels", authed(h.Channel.List))
	mux.Handle("POST /api/guilds/{guildID}/channels", authed(h.Channel.Create))
	mux.Handle("PATCH /api/guilds/{guildID}/channels/order", authed(h.Channel.Reorder))
	mux.Handle("GET /api/channels/{channelID}", authed(h.Channel.Get))
	mux.Handle("PATCH /api/channels/{channelID}", authed(h.Channel.Update))
	mux.Handle("DELETE /api/channels/{channelID}", authed(h.Channel.Delete))

	// Messages.
	mux.Handle("GET /api/channels/{channelID}/messages", authed(h.Message.List))
	mux.Handle("POST /api/channels/{channelID}/messages", authed(h.Message.Create))
	mux.Handle("DELETE /api/channels/{channelID}/messages/{messageID}", authed(h.Message.Delete))

	// Roles.
	mux.Handle("GET /api/guilds/{guildID}/roles", authed(h.Role.List))
	mux.Handle("POST /api/guilds/{guildID}/roles", authed(h.Role.Create))
	mux.Handle("PATCH /api/roles/{roleID}", authed(h.Role.Update))
	mux.Handle("DELETE /api/roles/{roleID}", authed(h.Role.Delete))
	mux.Handle("POST /api/roles/{roleID}/icon", authed(h.Role.UploadIcon))

	// Members and moderation.
	mux.Handle("GET /api/guilds/{guildID}/members", authed(h.Member.List))
	mux.Handle("PATCH /api/guilds/{guildID}/members/{userID}/nickname", authed(h.Member.UpdateNickname))
	mux.Handle("PATCH /api/guilds/{guildID}/members/{userID}/roles", authed(h.Member.UpdateRoles))
	mux.Handle("PATCH /api/guilds/{guildID}/members/{userID}/timeout", authed(h.Member.UpdateTimeout))
	mux.Handle("PATCH /api/guilds/{guildID}/members/{userID}/voice", authed(h.Member.UpdateVoice))
	mux.Handle("POST /api/guilds/{guildID}/members/{userID}/kick", authed(h.Member.Kick))
	mux.Handle("POST /api/guilds/{guildID}/members/{userID}/ban", authed(h.Member.Ban))
	mux.Handle("POST /api/guilds/{guildID}/members/{userID}/move", authed(h.Member.Move))
	mux.Handle("GET /api/bans", authed(h.Member.ListBans))
	mux.Handle("DELETE /api/bans/{userID}", authed(h.Member.Unban))

	// Uploads.
	mux.Handle("POST /api/files/upload", authed(h.Upload.Upload))

	// Operator surface, loopback + key only.
	admin := func(fn http.HandlerFunc) http.Handler {
		return adminMW.Require(fn)
	}
	mux.Handle("GET /api/admin/stats", admin(h.Admin.Stats))
	mux.Handle("GET /api/admin/members", admin(h.Admin.Members))
	mux.Handle("GET /api/admin/bans", admin(h.Admin.Bans))
	mux.Handle("DELETE /api/admin/bans/{userID}", admin(h.Admin.Unban))
	mux.Handle("GET /api/admin/settings", admin(h.Admin.GetSettings))
	mux.Handle("PATCH /api/admin/settings", admin(h.Admin.UpdateSettings))
	mux.Handle("GET /api/admin/audit", admin(h.Admin.Audit))
	mux.Handle("DELETE /api/admin/messages/{messageID}", admin(h.Admin.DeleteMessage))
	mux.Handle("GET /api/admin/uploads", admin(h.Admin.Uploads))

	// Multipart routes enforce their own size caps and must not inherit
	// the JSON body limit.
	uploadRoute := func(r *http.Request) bool {
		if r.Method != http.MethodPost {
			return false
		}
		if r.URL.Path == "/api/files/upload" {
			return true
		}
		return strings.HasPrefix(r.URL.Path, "/api/roles/") && strings.HasSuffix(r.URL.Path, "/icon")
	}

	return middleware.SecurityHeaders(middleware.LimitBody(mux, uploadRoute))
}
