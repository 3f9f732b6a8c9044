package models

// VoicePresence is the occupancy snapshot for one voice channel. Peers
// are keyed by session, so a user connected twice appears twice.
// UserIDs holds the peer (session) ids alongside the hydrated Users
// list so clients can diff cheaply; SpeakingUserIDs holds the peer ids
// that reported themselves speaking.
type VoicePresence struct {
	ChannelID       string      `json:"channel_id"`
	UserIDs         []string    `json:"user_ids"`
	Users           []VoiceUser `json:"users"`
	SpeakingUserIDs []string    `json:"speaking_user_ids"`
}

// VoiceUser is one occupant of a voice channel. PeerID is the socket
// session; UserID is the account behind it.
type VoiceUser struct {
	PeerID   string `json:"peer_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Muted    bool   `json:"muted"`
	Deafened bool   `json:"deafened"`
}

// ICEServer is one STUN/TURN entry handed to clients when they join a
// voice channel. TURN entries carry credentials; STUN entries are bare
// URLs.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}
