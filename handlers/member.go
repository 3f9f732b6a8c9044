package handlers

import (
	"net/http"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/services"
)

// MemberHandler serves the member listing, per-member patches, and the
// moderation verbs.
type MemberHandler struct {
	guildID string
	members services.MemberService
}

// NewMemberHandler creates the member handler.
func NewMemberHandler(guildID string, members services.MemberService) *MemberHandler {
	return &MemberHandler{guildID: guildID, members: members}
}

// List handles GET /api/guilds/{guildID}/members.
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	if !requireNodeGuild(w, r, h.guildID) {
		return
	}
	members, err := h.members.GetAll(r.Context())
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, members)
}

// UpdateNickname handles PATCH .../members/{userID}/nickname.
func (h *MemberHandler) UpdateNickname(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok || !requireNodeGuild(w, r, h.guildID) {
		return
	}
	var req models.UpdateNicknameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	member, err := h.members.UpdateNickname(r.Context(), user.ID, r.PathValue("userID"), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, member)
}

// UpdateRoles handles PATCH .../members/{userID}/roles.
func (h *MemberHandler) UpdateRoles(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok || !requireNodeGuild(w, r, h.guildID) {
		return
	}
	var req models.UpdateMemberRolesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	member, err := h.members.UpdateRoles(r.Context(), user.ID, r.PathValue("userID"), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, member)
}

// UpdateTimeout handles PATCH .../members/{userID}/timeout.
func (h *MemberHandler) UpdateTimeout(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok || !requireNodeGuild(w, r, h.guildID) {
		return
	}
	var req models.UpdateTimeoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	member, err := h.members.UpdateTimeout(r.Context(), user.ID, r.PathValue("userID"), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, member)
}

// UpdateVoice handles PATCH .../members/{userID}/voice (server mute and
// deafen).
func (h *MemberHandler) UpdateVoice(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok || !requireNodeGuild(w, r, h.guildID) {
		return
	}
	var req models.UpdateVoiceStateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	member, err := h.members.UpdateVoiceState(r.Context(), user.ID, r.PathValue("userID"), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, member)
}

// Kick handles POST .../members/{userID}/kick.
func (h *MemberHandler) Kick(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok || !requireNodeGuild(w, r, h.guildID) {
		return
	}
	var req models.KickRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.members.Kick(r.Context(), user.ID, r.PathValue("userID"), &req); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]bool{"kicked": true})
}

// Ban handles POST .../members/{userID}/ban.
func (h *MemberHandler) Ban(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok || !requireNodeGuild(w, r, h.guildID) {
		return
	}
	var req models.BanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.members.Ban(r.Context(), user.ID, r.PathValue("userID"), &req); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]bool{"banned": true})
}

// Move handles POST .../members/{userID}/move (voice channel move).
func (h *MemberHandler) Move(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok || !requireNodeGuild(w, r, h.guildID) {
		return
	}
	var req models.MoveMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.members.Move(r.Context(), user.ID, r.PathValue("userID"), &req); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]bool{"moved": true})
}

// ListBans handles GET /api/bans.
func (h *MemberHandler) ListBans(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	bans, err := h.members.ListBans(r.Context(), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, bans)
}

// Unban handles DELETE /api/bans/{userID}.
func (h *MemberHandler) Unban(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.members.Unban(r.Context(), user.ID, r.PathValue("userID")); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]bool{"unbanned": true})
}
