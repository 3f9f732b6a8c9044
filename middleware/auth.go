// Package middleware holds the HTTP request pipeline layers: identity
// verification, ban gate, permission gates, the admin surface gate, and
// security headers. Each layer is a func(http.Handler) http.Handler;
// a failed check writes the error and never calls next.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/remus-chat/remus-node/handlers"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/services"
)

// AuthMiddleware resolves the bearer token against the external
// authority and attaches the verified user to the request context.
type AuthMiddleware struct {
	identity services.IdentityService
	members  services.MemberService
}

// NewAuthMiddleware creates the auth layer.
func NewAuthMiddleware(identity services.IdentityService, members services.MemberService) *AuthMiddleware {
	return &AuthMiddleware{identity: identity, members: members}
}

// Require verifies the Authorization header, refuses banned users, and
// creates the membership row on first touch. The verified user lands in
// the context under handlers.UserContextKey.
func (m *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "invalid authorization format, use: Bearer <token>")
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		user, err := m.identity.Verify(r.Context(), token)
		if err != nil {
			pkg.Error(w, err)
			return
		}

		// Banned users get a hard 403 before any handler runs; the same
		// call creates the member row for everyone else.
		if err := m.members.EnsureJoined(r.Context(), user.ID, user.Username); err != nil {
			pkg.Error(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), handlers.UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
