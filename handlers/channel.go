package handlers

import (
	"net/http"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/services"
)

// ChannelHandler serves channel and category CRUD plus reordering.
type ChannelHandler struct {
	guildID  string
	channels services.ChannelService
}

// NewChannelHandler creates the channel handler.
func NewChannelHandler(guildID string, channels services.ChannelService) *ChannelHandler {
	return &ChannelHandler{guildID: guildID, channels: channels}
}

// List handles GET /api/guilds/{guildID}/channels.
func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok || !requireNodeGuild(w, r, h.guildID) {
		return
	}
	channels, err := h.channels.GetAll(r.Context(), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, channels)
}

// Create handles POST /api/guilds/{guildID}/channels.
func (h *ChannelHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok || !requireNodeGuild(w, r, h.guildID) {
		return
	}
	var req models.CreateChannelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	channel, err := h.channels.Create(r.Context(), user.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusCreated, channel)
}

// Reorder handles PATCH /api/guilds/{guildID}/channels/order.
func (h *ChannelHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok || !requireNodeGuild(w, r, h.guildID) {
		return
	}
	var req models.ReorderChannelsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	channels, err := h.channels.Reorder(r.Context(), user.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, channels)
}

// Get handles GET /api/channels/{channelID}.
func (h *ChannelHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	channel, err := h.channels.Get(r.Context(), user.ID, r.PathValue("channelID"))
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, channel)
}

// Update handles PATCH /api/channels/{channelID}.
func (h *ChannelHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req models.UpdateChannelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	channel, err := h.channels.Update(r.Context(), user.ID, r.PathValue("channelID"), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, channel)
}

// Delete handles DELETE /api/channels/{channelID}.
func (h *ChannelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.channels.Delete(r.Context(), user.ID, r.PathValue("channelID")); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
