// Package ws manages WebSocket connections and realtime event fanout.
//
// Architecture:
//   - Hub: central registry of connections, indexed by room and by user
//   - Client: one WebSocket connection with read/write pumps
//   - Event: the wire envelope in both directions
//
// Rooms are string-keyed sets of clients. Every connection sits in its
// user room and the guild room; voice rooms are joined and left by the
// voice coordinator as peers come and go.
package ws

// Event is one message on the socket. Server-to-client events carry a
// monotonically increasing Seq so clients can detect gaps. A client
// request may carry an ID; the reply echoes it, with either Data or
// Error populated.
type Event struct {
	Op    string `json:"op"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"d,omitempty"`
	Error string `json:"error,omitempty"`
	Seq   int64  `json:"seq,omitempty"`
}

// Client-to-server operations. OpTyping is the legacy alias clients
// still send for typing:start.
const (
	OpPing          = "ping"
	OpTyping        = "typing"
	OpMessageSend   = "message:send"
	OpChannelJoin   = "channel:join"
	OpGuildJoinRoom = "guild:joinRoom"

	OpVoiceJoin            = "voice:join"
	OpVoiceLeave           = "voice:leave"
	OpVoiceRTPCapabilities = "voice:getRouterRtpCapabilities"
	OpVoiceCreateTransport = "voice:createTransport"
	OpVoiceConnect         = "voice:connectTransport"
	OpVoiceProduce         = "voice:produce"
	OpVoiceCloseProducer   = "voice:closeProducer"
	OpVoiceConsume         = "voice:consume"
	OpVoiceResumeConsumer  = "voice:resumeConsumer"
	OpVoiceSpeaking        = "voice:speaking"
	OpVoicePresence        = "voice:presence"
)

// Server-to-client operations.
const (
	OpPong = "pong"

	OpMessageNew    = "message:new"
	OpMessageDelete = "message:delete"
	OpTypingStart   = "typing:start"
	OpTypingStop    = "typing:stop"

	OpChannelCreate  = "channel:create"
	OpChannelUpdate  = "channel:update"
	OpChannelDelete  = "channel:delete"
	OpChannelReorder = "channel:reorder"

	OpGuildUpdate    = "guild:update"
	OpSettingsUpdate = "settings:update"

	OpMemberJoin   = "member:join"
	OpMemberLeave  = "member:leave"
	OpMemberUpdate = "member:update"

	OpRoleCreate = "role:create"
	OpRoleUpdate = "role:update"
	OpRoleDelete = "role:delete"

	OpAuthBanned  = "auth:banned"
	OpGuildKicked = "guild:kicked"

	OpVoicePeerJoined        = "voice:peerJoined"
	OpVoicePeerLeft          = "voice:peerLeft"
	OpVoiceNewProducer       = "voice:newProducer"
	OpVoiceExistingProducers = "voice:existingProducers"
	OpVoiceProducerClosed    = "voice:producerClosed"
	OpVoiceSpeakingAll       = "voice:speakingAll"
	OpVoicePresenceUpdate    = "voice:presenceUpdate"
	OpVoiceForceMove         = "voice:forceMove"
	OpVoiceForceMute         = "voice:forceMute"
	OpVoiceDisconnected      = "voice:disconnected"
)

// Room name constructors. Room membership drives fanout scope.
func UserRoom(userID string) string       { return "user:" + userID }
func GuildRoom(guildID string) string     { return "guild:" + guildID }
func ChannelRoom(channelID string) string { return "channel:" + channelID }
func VoiceRoom(channelID string) string   { return "voice:" + channelID }

// TypingData is the client payload for the typing ops.
type TypingData struct {
	ChannelID string `json:"channel_id"`
}

// TypingStartData is broadcast to everyone else in the channel room,
// for both typing:start and typing:stop.
type TypingStartData struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	ChannelID string `json:"channel_id"`
}

// MessageSendData is the client payload for message:send. It mirrors
// the REST create body plus the target channel.
type MessageSendData struct {
	ChannelID     string   `json:"channel_id"`
	Content       string   `json:"content"`
	AttachmentIDs []string `json:"attachments,omitempty"`
	ReplyToID     string   `json:"reply_to_id,omitempty"`
}

// ChannelJoinData is the client payload for channel:join.
type ChannelJoinData struct {
	ChannelID string `json:"channel_id"`
}

// GuildJoinRoomData is the client payload for guild:joinRoom.
type GuildJoinRoomData struct {
	GuildID string `json:"guild_id"`
}

// AuthBannedData tells a connection it is banned before the close.
type AuthBannedData struct {
	Reason string `json:"reason,omitempty"`
}

// GuildKickedData precedes the server-initiated close when a member is
// kicked or banned.
type GuildKickedData struct {
	Reason string `json:"reason,omitempty"`
}
