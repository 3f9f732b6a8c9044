package handlers

import (
	"net/http"
	"strconv"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/pkg/ratelimit"
	"github.com/remus-chat/remus-node/services"
)

// UploadAction is the rate limit key for file uploads.
const UploadAction = "upload"

// UploadHandler accepts multipart file uploads bound for a channel.
type UploadHandler struct {
	uploads services.UploadService
	perms   services.PermissionService
	limiter *ratelimit.Limiter
	maxSize int64
}

// NewUploadHandler creates the upload handler. maxSize is the byte cap
// from REMUS_FILE_LIMIT_MB.
func NewUploadHandler(uploads services.UploadService, perms services.PermissionService, limiter *ratelimit.Limiter, maxSize int64) *UploadHandler {
	return &UploadHandler{uploads: uploads, perms: perms, limiter: limiter, maxSize: maxSize}
}

// Upload handles POST /api/files/upload: multipart {file, channelId}.
// The returned attachment is referenced by id when posting the message.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if !h.limiter.Allow(UploadAction, user.ID) {
		w.Header().Set("Retry-After", strconv.Itoa(h.limiter.RetryAfterSeconds(UploadAction, user.ID)))
		pkg.ErrorWithMessage(w, http.StatusTooManyRequests, "too many uploads, slow down")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "file exceeds the size limit")
		return
	}

	channelID := r.FormValue("channelId")
	if channelID == "" {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "channelId is required")
		return
	}
	if err := h.perms.RequireInChannel(r.Context(), user.ID, channelID, models.PermViewChannels|models.PermAttachFiles); err != nil {
		pkg.Error(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	upload, err := h.uploads.Store(r.Context(), user.ID, channelID, header.Filename, mimeType, header.Size, file)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusCreated, map[string]models.Attachment{"attachment": upload.ToAttachment()})
}
