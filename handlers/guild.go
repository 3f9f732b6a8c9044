package handlers

import (
	"net/http"
	"strconv"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/services"
)

// GuildHandler serves the guild view, membership lifecycle, settings,
// and the audit log.
type GuildHandler struct {
	guildID string
	guilds  services.GuildService
	members services.MemberService
	audit   services.AuditService
}

// NewGuildHandler creates the guild handler.
func NewGuildHandler(guildID string, guilds services.GuildService, members services.MemberService, audit services.AuditService) *GuildHandler {
	return &GuildHandler{guildID: guildID, guilds: guilds, members: members, audit: audit}
}

// List handles GET /api/guilds: a single fully hydrated element.
func (h *GuildHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	view, err := h.guilds.GetView(r.Context(), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, []*models.GuildView{view})
}

// Create handles POST /api/guilds. The node hosts exactly one guild.
func (h *GuildHandler) Create(w http.ResponseWriter, r *http.Request) {
	pkg.ErrorWithMessage(w, http.StatusMethodNotAllowed, "this node hosts a single guild")
}

// UpdateName handles PATCH /api/guilds/{guildID}.
func (h *GuildHandler) UpdateName(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok || !requireNodeGuild(w, r, h.guildID) {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	guild, err := h.guilds.UpdateName(r.Context(), user.ID, req.Name)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, guild)
}

// Join handles POST /api/guilds/{guildID}/join.
func (h *GuildHandler) Join(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok || !requireNodeGuild(w, r, h.guildID) {
		return
	}
	// Auth middleware already ensured the membership row; this endpoint
	// just confirms it for clients that join explicitly.
	if err := h.members.EnsureJoined(r.Context(), user.ID, user.Username); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]bool{"joined": true})
}

// Leave handles POST /api/guilds/{guildID}/leave. Leaving purges every
// trace of the user from this node.
func (h *GuildHandler) Leave(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok || !requireNodeGuild(w, r, h.guildID) {
		return
	}
	if err := h.members.Leave(r.Context(), user.ID); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]bool{"left": true})
}

// GetSettings handles GET /api/guilds/{guildID}/settings.
func (h *GuildHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	if !requireNodeGuild(w, r, h.guildID) {
		return
	}
	settings, err := h.guilds.GetSettings(r.Context())
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, settings)
}

// UpdateSettings handles PATCH /api/guilds/{guildID}/settings.
func (h *GuildHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok || !requireNodeGuild(w, r, h.guildID) {
		return
	}
	var req models.UpdateSettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	settings, err := h.guilds.UpdateSettings(r.Context(), user.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, settings)
}

// Audit handles GET /api/guilds/{guildID}/audit. The VIEW_AUDIT_LOG
// gate sits in the route middleware.
func (h *GuildHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if !requireNodeGuild(w, r, h.guildID) {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	entries, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, entries)
}
