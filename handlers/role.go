package handlers

import (
	"net/http"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/services"
)

const maxRoleIconUpload = 2 << 20

// RoleHandler serves role CRUD and role icon uploads.
type RoleHandler struct {
	guildID string
	roles   services.RoleService
	uploads services.UploadService
}

// NewRoleHandler creates the role handler.
func NewRoleHandler(guildID string, roles services.RoleService, uploads services.UploadService) *RoleHandler {
	return &RoleHandler{guildID: guildID, roles: roles, uploads: uploads}
}

// List handles GET /api/guilds/{guildID}/roles.
func (h *RoleHandler) List(w http.ResponseWriter, r *http.Request) {
	if !requireNodeGuild(w, r, h.guildID) {
		return
	}
	roles, err := h.roles.GetAll(r.Context())
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, roles)
}

// Create handles POST /api/guilds/{guildID}/roles.
func (h *RoleHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok || !requireNodeGuild(w, r, h.guildID) {
		return
	}
	var req models.CreateRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	role, err := h.roles.Create(r.Context(), user.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusCreated, role)
}

// Update handles PATCH /api/roles/{roleID}.
func (h *RoleHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req models.UpdateRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	role, err := h.roles.Update(r.Context(), user.ID, r.PathValue("roleID"), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, role)
}

// Delete handles DELETE /api/roles/{roleID}.
func (h *RoleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.roles.Delete(r.Context(), user.ID, r.PathValue("roleID")); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// UploadIcon handles POST /api/roles/{roleID}/icon, a multipart form
// with a single "icon" file capped at 2 MB.
func (h *RoleHandler) UploadIcon(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	roleID := r.PathValue("roleID")

	r.Body = http.MaxBytesReader(w, r.Body, maxRoleIconUpload+4096)
	if err := r.ParseMultipartForm(maxRoleIconUpload); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "icon exceeds the 2 MB limit")
		return
	}
	file, header, err := r.FormFile("icon")
	if err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "icon file is required")
		return
	}
	defer file.Close()

	iconURL, err := h.uploads.StoreRoleIcon(roleID, header.Filename, header.Size, file)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	role, err := h.roles.SetIconURL(r.Context(), user.ID, roleID, &iconURL)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, role)
}
