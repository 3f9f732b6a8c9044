package middleware

import (
	"net/http"

	"github.com/remus-chat/remus-node/handlers"
	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/services"
)

// PermissionMiddleware gates routes on resolved permissions. It runs
// after AuthMiddleware, so the context always carries the user.
//
// Routes where the decision depends on ownership (deleting your own
// message) skip this layer; the service decides there.
type PermissionMiddleware struct {
	perms services.PermissionService
}

// NewPermissionMiddleware creates the permission gate factory.
func NewPermissionMiddleware(perms services.PermissionService) *PermissionMiddleware {
	return &PermissionMiddleware{perms: perms}
}

// Require gates on a guild-wide permission.
func (m *PermissionMiddleware) Require(perm models.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := r.Context().Value(handlers.UserContextKey).(*models.AuthUser)
			if !ok {
				pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
				return
			}
			if err := m.perms.Require(r.Context(), user.ID, perm); err != nil {
				pkg.Error(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireInChannel gates on an effective channel permission, reading
// the channel id from the {channelID} path segment.
func (m *PermissionMiddleware) RequireInChannel(perm models.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := r.Context().Value(handlers.UserContextKey).(*models.AuthUser)
			if !ok {
				pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
				return
			}
			channelID := r.PathValue("channelID")
			if channelID == "" {
				pkg.ErrorWithMessage(w, http.StatusBadRequest, "channel id is required")
				return
			}
			if err := m.perms.RequireInChannel(r.Context(), user.ID, channelID, perm); err != nil {
				pkg.Error(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
