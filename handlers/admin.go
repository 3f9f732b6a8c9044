package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/repository"
	"github.com/remus-chat/remus-node/services"
	"github.com/remus-chat/remus-node/ws"
)

// adminActor is the audit actor id for operator actions taken through
// the admin surface. There is no member behind it.
const adminActor = "operator"

// AdminHandler is the operator surface behind the loopback+key gate.
// It talks to repositories directly: the operator holds the host keys,
// so member permissions do not apply.
type AdminHandler struct {
	guildID     string
	uploadsDir  string
	memberRepo  repository.MemberRepository
	banRepo     repository.BanRepository
	metaRepo    repository.MetaRepository
	messageRepo repository.MessageRepository
	uploadRepo  repository.UploadRepository
	audit       services.AuditService
	hub         ws.EventPublisher
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(
	guildID, uploadsDir string,
	memberRepo repository.MemberRepository,
	banRepo repository.BanRepository,
	metaRepo repository.MetaRepository,
	messageRepo repository.MessageRepository,
	uploadRepo repository.UploadRepository,
	audit services.AuditService,
	hub ws.EventPublisher,
) *AdminHandler {
	return &AdminHandler{
		guildID:     guildID,
		uploadsDir:  uploadsDir,
		memberRepo:  memberRepo,
		banRepo:     banRepo,
		metaRepo:    metaRepo,
		messageRepo: messageRepo,
		uploadRepo:  uploadRepo,
		audit:       audit,
		hub:         hub,
	}
}

// Stats handles GET /api/admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	memberCount, err := h.memberRepo.Count(r.Context(), h.guildID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]any{
		"members": memberCount,
		"online":  len(h.hub.OnlineUserIDs()),
	})
}

// Members handles GET /api/admin/members.
func (h *AdminHandler) Members(w http.ResponseWriter, r *http.Request) {
	members, err := h.memberRepo.GetAll(r.Context(), h.guildID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, members)
}

// Bans handles GET /api/admin/bans.
func (h *AdminHandler) Bans(w http.ResponseWriter, r *http.Request) {
	bans, err := h.banRepo.GetAll(r.Context())
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, bans)
}

// Unban handles DELETE /api/admin/bans/{userID}.
func (h *AdminHandler) Unban(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	if err := h.banRepo.Delete(r.Context(), userID); err != nil {
		pkg.Error(w, err)
		return
	}
	h.audit.Record(r.Context(), adminActor, models.AuditMemberUnban, userID, nil)
	pkg.JSON(w, http.StatusOK, map[string]bool{"unbanned": true})
}

// GetSettings handles GET /api/admin/settings.
func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.metaRepo.GetSettings(r.Context())
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, settings)
}

// UpdateSettings handles PATCH /api/admin/settings.
func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateSettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		pkg.Error(w, err)
		return
	}
	settings, err := h.metaRepo.GetSettings(r.Context())
	if err != nil {
		pkg.Error(w, err)
		return
	}
	if req.AuditMaxEntries != nil {
		settings.AuditMaxEntries = *req.AuditMaxEntries
	}
	if req.TimeoutMaxMinutes != nil {
		settings.TimeoutMaxMinutes = *req.TimeoutMaxMinutes
	}
	if err := h.metaRepo.SetSettings(r.Context(), settings); err != nil {
		pkg.Error(w, err)
		return
	}
	h.audit.Record(r.Context(), adminActor, models.AuditSettingsUpdate, h.guildID, settings)
	h.hub.BroadcastToRoom(ws.GuildRoom(h.guildID), ws.Event{Op: ws.OpSettingsUpdate, Data: settings})
	pkg.JSON(w, http.StatusOK, settings)
}

// Audit handles GET /api/admin/audit.
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	entries, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, entries)
}

// DeleteMessage handles DELETE /api/admin/messages/{messageID}.
func (h *AdminHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("messageID")
	message, err := h.messageRepo.GetByID(r.Context(), messageID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	uploads, err := h.messageRepo.Delete(r.Context(), messageID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	for _, u := range uploads {
		os.Remove(filepath.Join(h.uploadsDir, u.StoredName))
	}
	h.audit.Record(r.Context(), adminActor, models.AuditMessageDelete, messageID, map[string]string{
		"channel_id": message.ChannelID, "author_id": message.AuthorID,
	})
	h.hub.BroadcastToRoom(ws.ChannelRoom(message.ChannelID), ws.Event{Op: ws.OpMessageDelete, Data: map[string]string{
		"id": messageID, "channel_id": message.ChannelID,
	}})
	pkg.JSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// Uploads handles GET /api/admin/uploads?uploader=.
func (h *AdminHandler) Uploads(w http.ResponseWriter, r *http.Request) {
	uploader := r.URL.Query().Get("uploader")
	if uploader == "" {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "uploader query parameter is required")
		return
	}
	uploads, err := h.uploadRepo.GetByUploader(r.Context(), uploader)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, uploads)
}
