// Package handlers holds the HTTP layer. Handlers decode the request,
// pull the verified user from the context, call one service method, and
// write the envelope. No business rules live here.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
)

type contextKey string

// UserContextKey carries the verified *models.AuthUser, set by the auth
// middleware.
const UserContextKey contextKey = "user"

// currentUser pulls the verified user from the context. Routes behind
// the auth middleware always have one; a miss is a wiring bug.
func currentUser(w http.ResponseWriter, r *http.Request) (*models.AuthUser, bool) {
	user, ok := r.Context().Value(UserContextKey).(*models.AuthUser)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return nil, false
	}
	return user, true
}

// decodeJSON decodes the body into dst and writes the 400 itself on
// failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// requireNodeGuild rejects requests addressed to a guild this node does
// not host. Single guild per node.
func requireNodeGuild(w http.ResponseWriter, r *http.Request, nodeGuildID string) bool {
	if g := r.PathValue("guildID"); g != "" && g != nodeGuildID {
		pkg.ErrorWithMessage(w, http.StatusNotFound, "unknown guild")
		return false
	}
	return true
}
