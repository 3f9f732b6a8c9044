package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// HandshakeDeps are the callbacks the socket handshake needs from the
// service layer. The ws package stays free of service imports; main
// wires these in.
type HandshakeDeps struct {
	// Verify resolves a token to (userID, username) via the identity
	// resolver. A failed verify rejects the upgrade.
	Verify func(ctx context.Context, token string) (string, string, error)
	// IsBanned gates the handshake. Banned users get an auth:banned
	// event and an immediate close instead of a session.
	IsBanned func(ctx context.Context, userID string) (bool, error)
	// EnsureMember makes sure a membership row exists for the user.
	EnsureMember func(ctx context.Context, userID, username string) error
	// CheckOrigin applies the node's CORS origin policy to the upgrade.
	CheckOrigin func(r *http.Request) bool
	GuildID     string
}

// Handler upgrades HTTP requests to WebSocket sessions.
type Handler struct {
	hub      *Hub
	deps     HandshakeDeps
	upgrader websocket.Upgrader
}

// NewHandler creates the socket endpoint handler.
func NewHandler(hub *Hub, deps HandshakeDeps) *Handler {
	return &Handler{
		hub:  hub,
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     deps.CheckOrigin,
		},
	}
}

// ServeHTTP authenticates ?token=, rejects banned users, registers the
// client, and starts its pumps.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	userID, username, err := h.deps.Verify(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	banned, err := h.deps.IsBanned(r.Context(), userID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// Channel rooms are joined lazily via channel:join, so permission
	// changes never leave a connection in a stale room set.
	rooms := []string{UserRoom(userID), GuildRoom(h.deps.GuildID)}
	if !banned {
		if err := h.deps.EnsureMember(r.Context(), userID, username); err != nil {
			log.Printf("[ws] failed to ensure membership for user %s: %v", userID, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}

	// A banned user still gets a socket, but only long enough to be
	// told why before the close.
	if banned {
		_ = conn.WriteJSON(Event{Op: OpAuthBanned, Data: AuthBannedData{}})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "banned"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	client := &Client{
		hub:          h.hub,
		conn:         conn,
		sessionID:    uuid.NewString(),
		userID:       userID,
		guildID:      h.deps.GuildID,
		initialRooms: rooms,
		send:         make(chan []byte, sendBufferSize),
	}

	h.hub.SetUserUsername(userID, username)
	h.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}
