package handlers

import (
	"net/http"
	"strconv"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/services"
)

// MessageHandler serves channel message history and posting.
type MessageHandler struct {
	messages services.MessageService
}

// NewMessageHandler creates the message handler.
func NewMessageHandler(messages services.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// List handles GET /api/channels/{channelID}/messages?before=&limit=.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, err := h.messages.List(r.Context(), user.ID, r.PathValue("channelID"), r.URL.Query().Get("before"), limit)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, page)
}

// Create handles POST /api/channels/{channelID}/messages.
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req models.CreateMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	message, err := h.messages.Create(r.Context(), user.ID, r.PathValue("channelID"), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusCreated, message)
}

// Delete handles DELETE /api/channels/{channelID}/messages/{messageID}.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	err := h.messages.Delete(r.Context(), user.ID, r.PathValue("channelID"), r.PathValue("messageID"))
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
