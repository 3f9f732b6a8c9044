package handlers

import (
	"net/http"
	"os"

	"github.com/remus-chat/remus-node/config"
	"github.com/remus-chat/remus-node/pkg"
)

// ServerHandler serves the public node metadata endpoints.
type ServerHandler struct {
	cfg     *config.Config
	guildID string
	version string
}

// NewServerHandler creates the server metadata handler.
func NewServerHandler(cfg *config.Config, guildID, version string) *ServerHandler {
	return &ServerHandler{cfg: cfg, guildID: guildID, version: version}
}

// Health handles GET /api/health.
func (h *ServerHandler) Health(w http.ResponseWriter, r *http.Request) {
	pkg.JSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.version})
}

// serverID is the short public identifier: the first 8 chars of the
// guild id.
func (h *ServerHandler) serverID() string {
	if len(h.guildID) < 8 {
		return h.guildID
	}
	return h.guildID[:8]
}

// Info handles GET /api/server/info.
func (h *ServerHandler) Info(w http.ResponseWriter, r *http.Request) {
	var iconURL *string
	if h.cfg.Node.IconPath != "" {
		u := "/api/server/icon"
		iconURL = &u
	}
	pkg.JSON(w, http.StatusOK, map[string]any{
		"name":           h.cfg.Node.Name,
		"publicUrl":      h.cfg.Node.PublicURL,
		"serverId":       h.serverID(),
		"region":         h.cfg.Node.Region,
		"mainBackendUrl": h.cfg.Node.MainBackendURL,
		"iconUrl":        iconURL,
		"iceServers":     h.cfg.Media.ICEServers,
	})
}

// Icon handles GET /api/server/icon, serving the configured icon file
// with a sniffed content type.
func (h *ServerHandler) Icon(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Node.IconPath == "" {
		pkg.ErrorWithMessage(w, http.StatusNotFound, "no icon configured")
		return
	}
	data, err := os.ReadFile(h.cfg.Node.IconPath)
	if err != nil {
		pkg.ErrorWithMessage(w, http.StatusNotFound, "icon not found")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(data)
}
