package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/remus-chat/remus-node/media"
	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/pkg/cache"
	"github.com/remus-chat/remus-node/repository"
	"github.com/remus-chat/remus-node/ws"
)

const (
	presenceCacheTTL   = 5 * time.Second
	presenceCacheSweep = time.Minute
)

// VoiceService coordinates voice sessions: one router per active voice
// channel, one peer per connected socket session. A user in two tabs
// holds two peers. It implements the gateway's VoiceController and the
// moderation hooks the member service needs.
//
// All state lives behind one mutex. Engine calls happen while holding
// it; the worker answers in microseconds and a single lock keeps the
// room bookkeeping trivially consistent.
type VoiceService interface {
	ws.VoiceController
	VoiceModerator
	// HandleDisconnect is the hub's disconnect hook target. The peer of
	// the dropped session is torn down; other tabs keep theirs.
	HandleDisconnect(sessionID, userID string, lastSession bool)
}

// voiceProducer is one stream plus its ownership and origin. Source
// comes from the client's appData type: "" for camera/mic, "screen" or
// "screen-audio" for shares.
type voiceProducer struct {
	producer media.Producer
	peerID   string // owning session
	userID   string
	source   string
	appData  json.RawMessage
}

type voicePeer struct {
	sessionID string
	userID    string
	channelID string
	muted     bool
	deafened  bool
	speaking  bool

	sendTransport media.Transport
	recvTransport media.Transport
	producers     map[string]*voiceProducer
	consumers     map[string]media.Consumer
}

func (p *voicePeer) transportByID(id string) media.Transport {
	if p.sendTransport != nil && p.sendTransport.ID() == id {
		return p.sendTransport
	}
	if p.recvTransport != nil && p.recvTransport.ID() == id {
		return p.recvTransport
	}
	return nil
}

type voiceRoom struct {
	channelID string
	router    media.Router
	peers     map[string]*voicePeer     // keyed by session
	producers map[string]*voiceProducer // keyed by producer id
}

type voiceService struct {
	mu    sync.Mutex
	rooms map[string]*voiceRoom
	peers map[string]*voicePeer // keyed by session

	guildID     string
	engine      media.Engine
	iceServers  []models.ICEServer
	perms       PermissionService
	memberRepo  repository.MemberRepository
	channelRepo repository.ChannelRepository
	hub         ws.EventPublisher
	roomMgr     ws.RoomManager

	presence *cache.TTLCache[string, *models.VoicePresence]
}

// NewVoiceService creates the voice coordinator.
func NewVoiceService(
	guildID string,
	engine media.Engine,
	iceServers []models.ICEServer,
	perms PermissionService,
	memberRepo repository.MemberRepository,
	channelRepo repository.ChannelRepository,
	hub ws.EventPublisher,
	roomMgr ws.RoomManager,
) VoiceService {
	return &voiceService{
		rooms:       make(map[string]*voiceRoom),
		peers:       make(map[string]*voicePeer),
		guildID:     guildID,
		engine:      engine,
		iceServers:  iceServers,
		perms:       perms,
		memberRepo:  memberRepo,
		channelRepo: channelRepo,
		hub:         hub,
		roomMgr:     roomMgr,
		presence:    cache.New[string, *models.VoicePresence](presenceCacheTTL, presenceCacheSweep),
	}
}

// joinResult is the ack payload for voice:join.
type joinResult struct {
	ChannelID       string             `json:"channel_id"`
	RTPCapabilities json.RawMessage    `json:"rtp_capabilities"`
	ICEServers      []models.ICEServer `json:"ice_servers"`
	Peers           []joinResultPeer   `json:"peers"`
}

type joinResultPeer struct {
	PeerID    string             `json:"peer_id"`
	UserID    string             `json:"user_id"`
	Muted     bool               `json:"muted"`
	Deafened  bool               `json:"deafened"`
	Producers []joinResultStream `json:"producers"`
}

type joinResultStream struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Source string `json:"source,omitempty"`
}

// producerInfo describes one stream in producer broadcasts.
type producerInfo struct {
	ProducerID string `json:"producer_id"`
	PeerID     string `json:"peer_id"`
	UserID     string `json:"user_id"`
	Kind       string `json:"kind"`
	Source     string `json:"source,omitempty"`
}

func (s *voiceService) Join(ctx context.Context, sessionID, userID, channelID string) (any, error) {
	if err := s.perms.RequireInChannel(ctx, userID, channelID, models.PermViewChannels|models.PermVoiceConnect); err != nil {
		return nil, err
	}
	channel, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.Type != models.ChannelVoice {
		return nil, fmt.Errorf("%w: not a voice channel", pkg.ErrBadRequest)
	}

	// Server mute state follows the member row into the session.
	muted, deafened := false, false
	if member, err := s.memberRepo.GetByID(ctx, channel.GuildID, userID); err == nil {
		muted, deafened = member.VoiceMuted, member.VoiceDeafened
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A session holds one peer: joining again leaves the old channel
	// first, rejoining the same channel resets the peer.
	if old := s.peers[sessionID]; old != nil {
		s.removePeerLocked(old)
	}

	room, ok := s.rooms[channelID]
	if !ok {
		router, err := s.engine.CreateRouter(ctx, channelID)
		if err != nil {
			return nil, fmt.Errorf("failed to create router: %w", err)
		}
		room = &voiceRoom{
			channelID: channelID,
			router:    router,
			peers:     make(map[string]*voicePeer),
			producers: make(map[string]*voiceProducer),
		}
		s.rooms[channelID] = room
	}

	peer := &voicePeer{
		sessionID: sessionID,
		userID:    userID,
		channelID: channelID,
		muted:     muted,
		deafened:  deafened,
		producers: make(map[string]*voiceProducer),
		consumers: make(map[string]media.Consumer),
	}
	room.peers[sessionID] = peer
	s.peers[sessionID] = peer
	s.presence.Delete(channelID)

	s.roomMgr.JoinSessionRoom(sessionID, ws.VoiceRoom(channelID))
	s.hub.BroadcastToRoomExceptSession(ws.VoiceRoom(channelID), sessionID, ws.Event{
		Op:   ws.OpVoicePeerJoined,
		Data: joinResultPeer{PeerID: sessionID, UserID: userID, Muted: muted, Deafened: deafened},
	})

	result := &joinResult{
		ChannelID:       channelID,
		RTPCapabilities: room.router.RTPCapabilities(),
		ICEServers:      s.iceServers,
	}
	var existing []producerInfo
	for _, other := range room.peers {
		if other.sessionID == sessionID {
			continue
		}
		rp := joinResultPeer{PeerID: other.sessionID, UserID: other.userID, Muted: other.muted, Deafened: other.deafened}
		for id, vp := range other.producers {
			rp.Producers = append(rp.Producers, joinResultStream{ID: id, Kind: vp.producer.Kind(), Source: vp.source})
			existing = append(existing, producerInfo{
				ProducerID: id, PeerID: other.sessionID, UserID: other.userID,
				Kind: vp.producer.Kind(), Source: vp.source,
			})
		}
		result.Peers = append(result.Peers, rp)
	}
	s.hub.BroadcastToSession(sessionID, ws.Event{
		Op:   ws.OpVoiceExistingProducers,
		Data: map[string]any{"channel_id": channelID, "producers": existing},
	})
	s.broadcastPresenceLocked(room)

	log.Printf("[voice] %s joined channel %s (%d peers)", userID, channelID, len(room.peers))
	return result, nil
}

func (s *voiceService) Leave(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	peer := s.peers[sessionID]
	if peer == nil {
		return nil
	}
	s.removePeerLocked(peer)
	return nil
}

func (s *voiceService) RouterCapabilities(ctx context.Context, sessionID string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, room, err := s.peerRoomLocked(sessionID)
	if err != nil {
		return nil, err
	}
	return map[string]json.RawMessage{"rtp_capabilities": room.router.RTPCapabilities()}, nil
}

func (s *voiceService) CreateTransport(ctx context.Context, sessionID, direction string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	peer, room, err := s.peerRoomLocked(sessionID)
	if err != nil {
		return nil, err
	}

	transport, err := room.router.CreateTransport(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	switch direction {
	case "send":
		if peer.sendTransport != nil {
			peer.sendTransport.Close()
		}
		peer.sendTransport = transport
	case "recv":
		if peer.recvTransport != nil {
			peer.recvTransport.Close()
		}
		peer.recvTransport = transport
	}
	return transport.Parameters(), nil
}

func (s *voiceService) ConnectTransport(ctx context.Context, sessionID, transportID string, dtlsParameters json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	peer, _, err := s.peerRoomLocked(sessionID)
	if err != nil {
		return err
	}
	transport := peer.transportByID(transportID)
	if transport == nil {
		return fmt.Errorf("%w: unknown transport", pkg.ErrNotFound)
	}
	return transport.Connect(ctx, dtlsParameters)
}

// producerSource extracts the stream origin from client appData.
func producerSource(appData json.RawMessage) string {
	if len(appData) == 0 {
		return ""
	}
	var meta struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(appData, &meta); err != nil {
		return ""
	}
	switch meta.Type {
	case "screen", "screen-audio":
		return meta.Type
	}
	return ""
}

// enrichAppData stamps the owning peer and user into the appData that
// rides along to consumers.
func enrichAppData(appData json.RawMessage, peerID, userID string) json.RawMessage {
	fields := map[string]any{}
	if len(appData) > 0 {
		// Unparseable appData is replaced rather than forwarded.
		_ = json.Unmarshal(appData, &fields)
	}
	fields["peerId"] = peerID
	fields["userId"] = userID
	enriched, err := json.Marshal(fields)
	if err != nil {
		return appData
	}
	return enriched
}

func (s *voiceService) Produce(ctx context.Context, sessionID, transportID, kind string, rtpParameters, appData json.RawMessage) (any, error) {
	source := producerSource(appData)

	// Screenshare covers video tracks and both halves of a screen
	// share; plain microphone audio needs the speak bit and an unmuted
	// member.
	need := models.PermVoiceSpeak
	if kind == "video" || source != "" {
		need = models.PermScreenshare
	}

	s.mu.Lock()
	peer, _, err := s.peerRoomLocked(sessionID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	userID, channelID := peer.userID, peer.channelID
	if kind == "audio" && source == "" && peer.muted {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: you are server muted", pkg.ErrForbidden)
	}
	s.mu.Unlock()

	if err := s.perms.RequireInChannel(ctx, userID, channelID, need); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check: the peer may have left while the permission check ran.
	peer, room, err := s.peerRoomLocked(sessionID)
	if err != nil {
		return nil, err
	}
	if peer.sendTransport == nil || peer.sendTransport.ID() != transportID {
		return nil, fmt.Errorf("%w: unknown send transport", pkg.ErrNotFound)
	}

	enriched := enrichAppData(appData, sessionID, userID)
	producer, err := peer.sendTransport.Produce(ctx, kind, rtpParameters, enriched)
	if err != nil {
		return nil, fmt.Errorf("failed to produce: %w", err)
	}
	vp := &voiceProducer{
		producer: producer,
		peerID:   sessionID,
		userID:   userID,
		source:   source,
		appData:  enriched,
	}
	peer.producers[producer.ID()] = vp
	room.producers[producer.ID()] = vp
	s.presence.Delete(channelID)

	s.hub.BroadcastToRoomExceptSession(ws.VoiceRoom(channelID), sessionID, ws.Event{
		Op: ws.OpVoiceNewProducer,
		Data: producerInfo{
			ProducerID: producer.ID(), PeerID: sessionID, UserID: userID,
			Kind: kind, Source: source,
		},
	})
	return map[string]string{"id": producer.ID()}, nil
}

func (s *voiceService) CloseProducer(ctx context.Context, sessionID, producerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	peer, room, err := s.peerRoomLocked(sessionID)
	if err != nil {
		return err
	}
	vp, ok := peer.producers[producerID]
	if !ok {
		return fmt.Errorf("%w: unknown producer", pkg.ErrNotFound)
	}
	vp.producer.Close()
	delete(peer.producers, producerID)
	delete(room.producers, producerID)
	s.presence.Delete(peer.channelID)

	s.hub.BroadcastToRoom(ws.VoiceRoom(peer.channelID), ws.Event{
		Op:   ws.OpVoiceProducerClosed,
		Data: map[string]string{"producer_id": producerID, "peer_id": sessionID},
	})
	return nil
}

// consumeResult is the ack payload for voice:consume. The consumer is
// created paused; the client sends voice:resumeConsumer once its
// receiver is wired.
type consumeResult struct {
	ID            string          `json:"id"`
	ProducerID    string          `json:"producer_id"`
	PeerID        string          `json:"peer_id"`
	Kind          string          `json:"kind"`
	RTPParameters json.RawMessage `json:"rtp_parameters"`
	AppData       json.RawMessage `json:"app_data,omitempty"`
}

func (s *voiceService) Consume(ctx context.Context, sessionID, producerID string, rtpCapabilities json.RawMessage) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	peer, room, err := s.peerRoomLocked(sessionID)
	if err != nil {
		return nil, err
	}
	if peer.recvTransport == nil {
		return nil, fmt.Errorf("%w: no receive transport", pkg.ErrBadRequest)
	}

	// The producer must belong to another peer in the same room.
	vp := room.producers[producerID]
	if vp == nil || vp.peerID == sessionID {
		return nil, fmt.Errorf("%w: unknown producer", pkg.ErrNotFound)
	}

	ok, err := room.router.CanConsume(producerID, rtpCapabilities)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: incompatible rtp capabilities", pkg.ErrBadRequest)
	}

	consumer, err := peer.recvTransport.Consume(ctx, producerID, rtpCapabilities)
	if err != nil {
		return nil, fmt.Errorf("failed to consume: %w", err)
	}
	peer.consumers[consumer.ID()] = consumer

	return &consumeResult{
		ID:            consumer.ID(),
		ProducerID:    consumer.ProducerID(),
		PeerID:        vp.peerID,
		Kind:          consumer.Kind(),
		RTPParameters: consumer.RTPParameters(),
		AppData:       vp.appData,
	}, nil
}

func (s *voiceService) ResumeConsumer(ctx context.Context, sessionID, consumerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	peer, _, err := s.peerRoomLocked(sessionID)
	if err != nil {
		return err
	}
	consumer, ok := peer.consumers[consumerID]
	if !ok {
		return fmt.Errorf("%w: unknown consumer", pkg.ErrNotFound)
	}
	return consumer.Resume(ctx)
}

// SetSpeaking flips the peer's speaking flag from the client's voice
// activity detection and fans the new speaking set out.
func (s *voiceService) SetSpeaking(ctx context.Context, sessionID string, speaking bool) error {
	s.mu.Lock()
	peer := s.peers[sessionID]
	if peer == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: join a voice channel first", pkg.ErrBadRequest)
	}
	userID, channelID := peer.userID, peer.channelID
	s.mu.Unlock()

	if err := s.perms.RequireInChannel(ctx, userID, channelID, models.PermVoiceSpeak); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	peer, room, err := s.peerRoomLocked(sessionID)
	if err != nil {
		return err
	}
	peer.speaking = speaking
	s.presence.Delete(peer.channelID)

	s.hub.BroadcastToRoom(ws.VoiceRoom(peer.channelID), ws.Event{
		Op: ws.OpVoiceSpeaking,
		Data: map[string]any{
			"peer_id": sessionID, "user_id": userID,
			"channel_id": peer.channelID, "speaking": speaking,
		},
	})
	s.broadcastSpeakingLocked(room)
	return nil
}

func (s *voiceService) Presence(ctx context.Context, channelID string) (any, error) {
	if cached, ok := s.presence.Get(channelID); ok {
		return cached, nil
	}

	s.mu.Lock()
	room := s.rooms[channelID]
	view := &models.VoicePresence{ChannelID: channelID, UserIDs: []string{}, Users: []models.VoiceUser{}, SpeakingUserIDs: []string{}}
	type peerSnap struct {
		sessionID       string
		userID          string
		muted, deafened bool
		speaking        bool
	}
	var snaps []peerSnap
	var guildID string
	if room != nil {
		for _, peer := range room.peers {
			snaps = append(snaps, peerSnap{peer.sessionID, peer.userID, peer.muted, peer.deafened, peer.speaking})
		}
	}
	s.mu.Unlock()

	if len(snaps) > 0 {
		if channel, err := s.channelRepo.GetByID(ctx, channelID); err == nil {
			guildID = channel.GuildID
		}
	}
	for _, snap := range snaps {
		username := ""
		if guildID != "" {
			if member, err := s.memberRepo.GetByID(ctx, guildID, snap.userID); err == nil {
				username = member.Username
			}
		}
		view.UserIDs = append(view.UserIDs, snap.sessionID)
		view.Users = append(view.Users, models.VoiceUser{
			PeerID: snap.sessionID, UserID: snap.userID, Username: username,
			Muted: snap.muted, Deafened: snap.deafened,
		})
		if snap.speaking {
			view.SpeakingUserIDs = append(view.SpeakingUserIDs, snap.sessionID)
		}
	}

	s.presence.Set(channelID, view)
	return view, nil
}

// ForceMuteUser applies a server mute to every session of the user.
// Muting closes microphone and screen audio; a screen video track
// survives.
func (s *voiceService) ForceMuteUser(userID string, muted, deafened bool) {
	type closedStream struct {
		producerID string
		peerID     string
		channelID  string
	}
	s.mu.Lock()
	var closed []closedStream
	touched := false
	for _, peer := range s.peers {
		if peer.userID != userID {
			continue
		}
		touched = true
		peer.muted = muted
		peer.deafened = deafened
		if muted {
			for id, vp := range peer.producers {
				if vp.producer.Kind() != "audio" {
					continue
				}
				vp.producer.Close()
				delete(peer.producers, id)
				if room := s.rooms[peer.channelID]; room != nil {
					delete(room.producers, id)
				}
				closed = append(closed, closedStream{id, peer.sessionID, peer.channelID})
			}
		}
		s.presence.Delete(peer.channelID)
	}
	s.mu.Unlock()

	if !touched {
		return
	}
	for _, c := range closed {
		s.hub.BroadcastToRoom(ws.VoiceRoom(c.channelID), ws.Event{
			Op:   ws.OpVoiceProducerClosed,
			Data: map[string]string{"producer_id": c.producerID, "peer_id": c.peerID},
		})
	}
	s.hub.BroadcastToUser(userID, ws.Event{
		Op:   ws.OpVoiceForceMute,
		Data: map[string]bool{"muted": muted, "deafened": deafened},
	})
}

// MoveUser drops the user's peers and tells their sockets to rejoin
// the target channel; each client re-signals transports against the
// new router.
func (s *voiceService) MoveUser(ctx context.Context, userID, channelID string) error {
	s.mu.Lock()
	found := false
	for _, peer := range s.peers {
		if peer.userID != userID {
			continue
		}
		found = true
		if peer.channelID != channelID {
			s.removePeerLocked(peer)
		}
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: user is not in voice", pkg.ErrBadRequest)
	}
	s.hub.BroadcastToUser(userID, ws.Event{
		Op:   ws.OpVoiceForceMove,
		Data: map[string]string{"channel_id": channelID},
	})
	return nil
}

func (s *voiceService) DisconnectUser(userID string) {
	s.mu.Lock()
	found := false
	for _, peer := range s.peers {
		if peer.userID != userID {
			continue
		}
		found = true
		s.removePeerLocked(peer)
	}
	s.mu.Unlock()

	if found {
		s.hub.BroadcastToUser(userID, ws.Event{Op: ws.OpVoiceDisconnected})
	}
}

func (s *voiceService) HandleDisconnect(sessionID, userID string, lastSession bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if peer := s.peers[sessionID]; peer != nil {
		s.removePeerLocked(peer)
	}
}

// peerRoomLocked resolves the caller's peer and room. Caller holds mu.
func (s *voiceService) peerRoomLocked(sessionID string) (*voicePeer, *voiceRoom, error) {
	peer := s.peers[sessionID]
	if peer == nil {
		return nil, nil, fmt.Errorf("%w: join a voice channel first", pkg.ErrBadRequest)
	}
	room := s.rooms[peer.channelID]
	if room == nil {
		return nil, nil, fmt.Errorf("%w: voice room is gone", pkg.ErrNotFound)
	}
	return peer, room, nil
}

// broadcastPresenceLocked fans the light occupancy snapshot out to the
// voice room and the guild room. Caller holds mu.
func (s *voiceService) broadcastPresenceLocked(room *voiceRoom) {
	peerIDs, speaking := []string{}, []string{}
	if room != nil {
		for id, peer := range room.peers {
			peerIDs = append(peerIDs, id)
			if peer.speaking {
				speaking = append(speaking, id)
			}
		}
	}
	event := ws.Event{
		Op: ws.OpVoicePresenceUpdate,
		Data: map[string]any{
			"channel_id": room.channelID, "peer_ids": peerIDs, "speaking_peer_ids": speaking,
		},
	}
	s.hub.BroadcastToRoom(ws.VoiceRoom(room.channelID), event)
	s.hub.BroadcastToRoom(ws.GuildRoom(s.guildID), event)
}

// broadcastSpeakingLocked fans the speaking set out the same two ways.
// Caller holds mu.
func (s *voiceService) broadcastSpeakingLocked(room *voiceRoom) {
	speaking := []string{}
	for id, peer := range room.peers {
		if peer.speaking {
			speaking = append(speaking, id)
		}
	}
	event := ws.Event{
		Op:   ws.OpVoiceSpeakingAll,
		Data: map[string]any{"channel_id": room.channelID, "speaking_peer_ids": speaking},
	}
	s.hub.BroadcastToRoom(ws.VoiceRoom(room.channelID), event)
	s.hub.BroadcastToRoom(ws.GuildRoom(s.guildID), event)
}

// removePeerLocked tears the peer down and broadcasts its departure.
// Caller holds mu.
func (s *voiceService) removePeerLocked(peer *voicePeer) {
	room := s.rooms[peer.channelID]
	voiceRoomName := ws.VoiceRoom(peer.channelID)

	for id, vp := range peer.producers {
		vp.producer.Close()
		if room != nil {
			delete(room.producers, id)
		}
		s.hub.BroadcastToRoom(voiceRoomName, ws.Event{
			Op:   ws.OpVoiceProducerClosed,
			Data: map[string]string{"producer_id": id, "peer_id": peer.sessionID},
		})
	}
	for _, c := range peer.consumers {
		c.Close()
	}
	if peer.sendTransport != nil {
		peer.sendTransport.Close()
	}
	if peer.recvTransport != nil {
		peer.recvTransport.Close()
	}

	delete(s.peers, peer.sessionID)
	if room != nil {
		delete(room.peers, peer.sessionID)
		if len(room.peers) == 0 {
			room.router.Close()
			delete(s.rooms, peer.channelID)
		}
	}
	s.presence.Delete(peer.channelID)

	s.roomMgr.LeaveSessionRoom(peer.sessionID, voiceRoomName)
	s.hub.BroadcastToRoomExceptSession(voiceRoomName, peer.sessionID, ws.Event{
		Op:   ws.OpVoicePeerLeft,
		Data: map[string]string{"peer_id": peer.sessionID, "user_id": peer.userID},
	})
	if room != nil {
		s.broadcastPresenceLocked(room)
	}
	log.Printf("[voice] %s left channel %s", peer.userID, peer.channelID)
}
