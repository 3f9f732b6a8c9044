package ws

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
)

// EventPublisher is the fanout surface the service layer depends on.
// Services never see the Hub struct, which keeps them testable with a
// spy publisher.
type EventPublisher interface {
	BroadcastToAll(event Event)
	BroadcastToRoom(room string, event Event)
	BroadcastToRoomExcept(room, excludeUserID string, event Event)
	// BroadcastToRoomExceptSession skips a single connection, not the
	// whole user. Voice fanout uses it so a second tab of the same user
	// still hears about the first tab's streams.
	BroadcastToRoomExceptSession(room, excludeSessionID string, event Event)
	BroadcastToUser(userID string, event Event)
	BroadcastToSession(sessionID string, event Event)
	// DisconnectUser emits guild:kicked with the reason to every session
	// of the user and then closes them. Kick and ban go through here.
	DisconnectUser(userID, reason string)
	OnlineUserIDs() []string
}

// RoomManager lets the voice coordinator move individual connections
// between voice rooms without touching Hub internals.
type RoomManager interface {
	JoinSessionRoom(sessionID, room string)
	LeaveSessionRoom(sessionID, room string)
}

// Hub indexes every connection three ways: by room for fanout, by user
// for session counting, and by session for voice signaling. All fanout
// methods take a read lock only.
type Hub struct {
	mu sync.RWMutex
	// roomIndex: room name → client set.
	roomIndex map[string]map[*Client]bool
	// clientRooms: reverse index so deregistration is O(rooms of client).
	clientRooms map[*Client]map[string]bool
	// userSessions: userID → client set. One user may hold several tabs.
	userSessions map[string]map[*Client]bool
	// sessions: sessionID → client.
	sessions map[string]*Client

	register   chan *Client
	unregister chan *Client

	// seq numbers every outbound event so clients can spot gaps.
	seq atomic.Int64

	usernames map[string]string
	userMu    sync.RWMutex

	// onDisconnect fires once per dropped connection, after removal.
	// lastSession is true when it was the user's final connection.
	onDisconnect func(sessionID, userID string, lastSession bool)

	voice        VoiceController
	voiceLimiter VoiceJoinLimiter
	chat         ChatController
}

// NewHub creates an empty hub. Call Run in its own goroutine.
func NewHub() *Hub {
	return &Hub{
		roomIndex:    make(map[string]map[*Client]bool),
		clientRooms:  make(map[*Client]map[string]bool),
		userSessions: make(map[string]map[*Client]bool),
		sessions:     make(map[string]*Client),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		usernames:    make(map[string]string),
	}
}

// SetDisconnectHook installs the single deregistration hook. The voice
// coordinator uses it to tear down the session's peer when a tab
// closes. Must be called before the first connection.
func (h *Hub) SetDisconnectHook(hook func(sessionID, userID string, lastSession bool)) {
	h.onDisconnect = hook
}

// Run is the hub's registration loop. Started as a goroutine from main.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.userSessions[client.userID]; !ok {
		h.userSessions[client.userID] = make(map[*Client]bool)
	}
	h.userSessions[client.userID][client] = true
	h.sessions[client.sessionID] = client
	h.clientRooms[client] = make(map[string]bool)
	sessions := len(h.userSessions[client.userID])
	h.mu.Unlock()

	for _, room := range client.initialRooms {
		h.joinRoomClient(client, room)
	}

	log.Printf("[ws] client connected: user=%s (sessions: %d)", client.userID, sessions)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	sessions, ok := h.userSessions[client.userID]
	if !ok || !sessions[client] {
		h.mu.Unlock()
		return
	}
	delete(sessions, client)
	delete(h.sessions, client.sessionID)
	close(client.send)

	for room := range h.clientRooms[client] {
		if clients, ok := h.roomIndex[room]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.roomIndex, room)
			}
		}
	}
	delete(h.clientRooms, client)

	lastSession := len(sessions) == 0
	if lastSession {
		delete(h.userSessions, client.userID)
	}
	h.mu.Unlock()

	if lastSession {
		log.Printf("[ws] user fully disconnected: %s", client.userID)
	} else {
		log.Printf("[ws] client disconnected: user=%s", client.userID)
	}

	if h.onDisconnect != nil {
		go h.onDisconnect(client.sessionID, client.userID, lastSession)
	}
}

func (h *Hub) joinRoomClient(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, tracked := h.clientRooms[client]; !tracked {
		return // already deregistered
	}
	if _, ok := h.roomIndex[room]; !ok {
		h.roomIndex[room] = make(map[*Client]bool)
	}
	h.roomIndex[room][client] = true
	h.clientRooms[client][room] = true
}

// JoinSessionRoom adds one connection to the room.
func (h *Hub) JoinSessionRoom(sessionID, room string) {
	h.mu.RLock()
	client := h.sessions[sessionID]
	h.mu.RUnlock()
	if client == nil {
		return
	}
	h.joinRoomClient(client, room)
}

// LeaveSessionRoom removes one connection from the room.
func (h *Hub) LeaveSessionRoom(sessionID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client := h.sessions[sessionID]
	if client == nil {
		return
	}
	if clients, ok := h.roomIndex[room]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.roomIndex, room)
		}
	}
	if rooms, ok := h.clientRooms[client]; ok {
		delete(rooms, room)
	}
}

// BroadcastToAll sends the event to every connection.
func (h *Hub) BroadcastToAll(event Event) {
	data, ok := h.encode(&event)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sessions := range h.userSessions {
		for client := range sessions {
			h.deliver(client, data)
		}
	}
}

// BroadcastToRoom sends the event to every connection in the room.
func (h *Hub) BroadcastToRoom(room string, event Event) {
	data, ok := h.encode(&event)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.roomIndex[room] {
		h.deliver(client, data)
	}
}

// BroadcastToRoomExcept sends to the room, skipping one user's sessions.
func (h *Hub) BroadcastToRoomExcept(room, excludeUserID string, event Event) {
	data, ok := h.encode(&event)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.roomIndex[room] {
		if client.userID == excludeUserID {
			continue
		}
		h.deliver(client, data)
	}
}

// BroadcastToRoomExceptSession sends to the room, skipping one connection.
func (h *Hub) BroadcastToRoomExceptSession(room, excludeSessionID string, event Event) {
	data, ok := h.encode(&event)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.roomIndex[room] {
		if client.sessionID == excludeSessionID {
			continue
		}
		h.deliver(client, data)
	}
}

// BroadcastToUser sends to every session of one user.
func (h *Hub) BroadcastToUser(userID string, event Event) {
	data, ok := h.encode(&event)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.userSessions[userID] {
		h.deliver(client, data)
	}
}

// BroadcastToSession sends to exactly one connection.
func (h *Hub) BroadcastToSession(sessionID string, event Event) {
	data, ok := h.encode(&event)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if client := h.sessions[sessionID]; client != nil {
		h.deliver(client, data)
	}
}

// DisconnectUser queues guild:kicked on every session of the user and
// hands each to the run loop for removal. The queued event drains
// before the write pump sends the close frame.
func (h *Hub) DisconnectUser(userID, reason string) {
	event := Event{Op: OpGuildKicked, Data: GuildKickedData{Reason: reason}}
	data, ok := h.encode(&event)
	if !ok {
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.userSessions[userID]))
	for client := range h.userSessions[userID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.deliver(client, data)
		h.unregister <- client
	}
}

// OnlineUserIDs returns the users with at least one live connection.
func (h *Hub) OnlineUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.userSessions))
	for userID := range h.userSessions {
		ids = append(ids, userID)
	}
	return ids
}

// RoomUserIDs returns the distinct users present in a room.
func (h *Hub) RoomUserIDs(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]bool)
	var ids []string
	for client := range h.roomIndex[room] {
		if !seen[client.userID] {
			seen[client.userID] = true
			ids = append(ids, client.userID)
		}
	}
	return ids
}

func (h *Hub) encode(event *Event) ([]byte, bool) {
	event.Seq = h.seq.Add(1)
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[ws] failed to marshal event %s: %v", event.Op, err)
		return nil, false
	}
	return data, true
}

// deliver queues data on the client's send buffer; a full buffer means
// the client stalled and gets disconnected. Caller holds at least a
// read lock, so unregistration is handed to the run loop.
func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		go func(c *Client) { h.unregister <- c }(client)
	}
}

// SetUserUsername refreshes the username cache used by typing fanout.
func (h *Hub) SetUserUsername(userID, username string) {
	h.userMu.Lock()
	defer h.userMu.Unlock()
	h.usernames[userID] = username
}

func (h *Hub) getUserUsername(userID string) string {
	h.userMu.RLock()
	defer h.userMu.RUnlock()
	return h.usernames[userID]
}

// Shutdown closes every connection's send channel.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sessions := range h.userSessions {
		for client := range sessions {
			close(client.send)
		}
	}
	h.roomIndex = make(map[string]map[*Client]bool)
	h.clientRooms = make(map[*Client]map[string]bool)
	h.userSessions = make(map[string]map[*Client]bool)
	h.sessions = make(map[string]*Client)
	log.Println("[ws] hub shut down, all connections closed")
}
