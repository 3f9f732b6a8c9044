package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
)

// VoiceController is the signaling surface the voice coordinator
// exposes to connections. Every method is keyed by the socket session:
// a user connected from two tabs holds two independent peers.
type VoiceController interface {
	Join(ctx context.Context, sessionID, userID, channelID string) (any, error)
	Leave(ctx context.Context, sessionID string) error
	RouterCapabilities(ctx context.Context, sessionID string) (any, error)
	// CreateTransport makes the "send" or "recv" transport for the peer.
	CreateTransport(ctx context.Context, sessionID, direction string) (any, error)
	ConnectTransport(ctx context.Context, sessionID, transportID string, dtlsParameters json.RawMessage) error
	Produce(ctx context.Context, sessionID, transportID, kind string, rtpParameters, appData json.RawMessage) (any, error)
	CloseProducer(ctx context.Context, sessionID, producerID string) error
	Consume(ctx context.Context, sessionID, producerID string, rtpCapabilities json.RawMessage) (any, error)
	ResumeConsumer(ctx context.Context, sessionID, consumerID string) error
	SetSpeaking(ctx context.Context, sessionID string, speaking bool) error
	Presence(ctx context.Context, channelID string) (any, error)
}

// VoiceJoinLimiter rate-limits voice:join per user.
type VoiceJoinLimiter interface {
	Allow(action, userID string) bool
}

var errVoiceUnavailable = errors.New("voice is not available on this node")
var errTooManyJoins = errors.New("too many voice joins, slow down")

// SetVoiceController wires the voice coordinator into the hub. Must be
// called before the first connection.
func (h *Hub) SetVoiceController(vc VoiceController, limiter VoiceJoinLimiter) {
	h.voice = vc
	h.voiceLimiter = limiter
}

// Voice payloads, client to server.
type voiceJoinData struct {
	ChannelID string `json:"channel_id"`
}

type voiceCreateTransportData struct {
	Direction string `json:"direction"` // "send" or "recv"
}

type voiceConnectData struct {
	TransportID    string          `json:"transport_id"`
	DTLSParameters json.RawMessage `json:"dtls_parameters"`
}

type voiceProduceData struct {
	TransportID   string          `json:"transport_id"`
	Kind          string          `json:"kind"`
	RTPParameters json.RawMessage `json:"rtp_parameters"`
	AppData       json.RawMessage `json:"app_data"`
}

type voiceCloseProducerData struct {
	ProducerID string `json:"producer_id"`
}

type voiceConsumeData struct {
	ProducerID      string          `json:"producer_id"`
	RTPCapabilities json.RawMessage `json:"rtp_capabilities"`
}

type voiceResumeData struct {
	ConsumerID string `json:"consumer_id"`
}

// voiceSpeakingData carries channel_id for wire symmetry with the
// broadcasts; the peer's actual channel comes from its session.
type voiceSpeakingData struct {
	ChannelID string `json:"channel_id"`
	Speaking  bool   `json:"speaking"`
}

type voicePresenceData struct {
	ChannelID string `json:"channel_id"`
}

// handleVoice dispatches one voice request and always acks it.
func (c *Client) handleVoice(event Event) {
	if c.hub.voice == nil {
		c.reply(event, nil, errVoiceUnavailable)
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	switch event.Op {
	case OpVoiceJoin:
		var data voiceJoinData
		if !decodeData(event.Data, &data) || data.ChannelID == "" {
			c.reply(event, nil, errors.New("channel_id is required"))
			return
		}
		if c.hub.voiceLimiter != nil && !c.hub.voiceLimiter.Allow("voice:join", c.userID) {
			c.reply(event, nil, errTooManyJoins)
			return
		}
		result, err := c.hub.voice.Join(ctx, c.sessionID, c.userID, data.ChannelID)
		c.reply(event, result, err)

	case OpVoiceLeave:
		c.reply(event, nil, c.hub.voice.Leave(ctx, c.sessionID))

	case OpVoiceRTPCapabilities:
		result, err := c.hub.voice.RouterCapabilities(ctx, c.sessionID)
		c.reply(event, result, err)

	case OpVoiceCreateTransport:
		var data voiceCreateTransportData
		if !decodeData(event.Data, &data) || (data.Direction != "send" && data.Direction != "recv") {
			c.reply(event, nil, errors.New("direction must be send or recv"))
			return
		}
		result, err := c.hub.voice.CreateTransport(ctx, c.sessionID, data.Direction)
		c.reply(event, result, err)

	case OpVoiceConnect:
		var data voiceConnectData
		if !decodeData(event.Data, &data) || data.TransportID == "" {
			c.reply(event, nil, errors.New("transport_id is required"))
			return
		}
		c.reply(event, nil, c.hub.voice.ConnectTransport(ctx, c.sessionID, data.TransportID, data.DTLSParameters))

	case OpVoiceProduce:
		var data voiceProduceData
		if !decodeData(event.Data, &data) || data.TransportID == "" || (data.Kind != "audio" && data.Kind != "video") {
			c.reply(event, nil, errors.New("transport_id and kind (audio|video) are required"))
			return
		}
		result, err := c.hub.voice.Produce(ctx, c.sessionID, data.TransportID, data.Kind, data.RTPParameters, data.AppData)
		c.reply(event, result, err)

	case OpVoiceCloseProducer:
		var data voiceCloseProducerData
		if !decodeData(event.Data, &data) || data.ProducerID == "" {
			c.reply(event, nil, errors.New("producer_id is required"))
			return
		}
		c.reply(event, nil, c.hub.voice.CloseProducer(ctx, c.sessionID, data.ProducerID))

	case OpVoiceConsume:
		var data voiceConsumeData
		if !decodeData(event.Data, &data) || data.ProducerID == "" {
			c.reply(event, nil, errors.New("producer_id is required"))
			return
		}
		result, err := c.hub.voice.Consume(ctx, c.sessionID, data.ProducerID, data.RTPCapabilities)
		c.reply(event, result, err)

	case OpVoiceResumeConsumer:
		var data voiceResumeData
		if !decodeData(event.Data, &data) || data.ConsumerID == "" {
			c.reply(event, nil, errors.New("consumer_id is required"))
			return
		}
		c.reply(event, nil, c.hub.voice.ResumeConsumer(ctx, c.sessionID, data.ConsumerID))

	case OpVoiceSpeaking:
		var data voiceSpeakingData
		if !decodeData(event.Data, &data) {
			c.reply(event, nil, errors.New("speaking flag is required"))
			return
		}
		c.reply(event, nil, c.hub.voice.SetSpeaking(ctx, c.sessionID, data.Speaking))

	case OpVoicePresence:
		var data voicePresenceData
		if !decodeData(event.Data, &data) || data.ChannelID == "" {
			c.reply(event, nil, errors.New("channel_id is required"))
			return
		}
		result, err := c.hub.voice.Presence(ctx, data.ChannelID)
		c.reply(event, result, err)

	default:
		log.Printf("[ws] unhandled voice op from user %s: %s", c.userID, event.Op)
	}
}
