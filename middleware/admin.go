package middleware

import (
	"crypto/subtle"
	"net"
	"net/http"

	"github.com/remus-chat/remus-node/pkg"
)

// AdminMiddleware gates the /api/admin surface. Requests must come from
// a loopback address AND carry the configured X-Remus-Admin-Key. With
// no key configured the surface is disabled entirely.
type AdminMiddleware struct {
	key string
}

// NewAdminMiddleware creates the admin gate.
func NewAdminMiddleware(key string) *AdminMiddleware {
	return &AdminMiddleware{key: key}
}

// Require rejects non-local or unkeyed requests with 404 so the admin
// surface does not advertise its existence.
func (m *AdminMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.key == "" || !isLoopback(r.RemoteAddr) {
			pkg.ErrorWithMessage(w, http.StatusNotFound, "not found")
			return
		}
		provided := r.Header.Get("X-Remus-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(m.key)) != 1 {
			pkg.ErrorWithMessage(w, http.StatusNotFound, "not found")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
