package ws

import (
	"context"
	"errors"
)

// ChatController is the messaging surface the gateway needs from the
// service layer. SendMessage runs the same checks and fanout as the
// REST create; the gate methods answer permission questions for room
// joins and typing.
type ChatController interface {
	SendMessage(ctx context.Context, userID, channelID, content string, attachmentIDs []string, replyToID string) (any, error)
	// CanAccess reports whether the user may view the channel.
	CanAccess(ctx context.Context, userID, channelID string) bool
	// CanSend reports whether the user may post (and so type) there.
	CanSend(ctx context.Context, userID, channelID string) bool
	// IsMember reports guild membership.
	IsMember(ctx context.Context, userID string) bool
}

var errChatUnavailable = errors.New("messaging is not available on this socket")

// SetChatController wires the messaging services into the hub. Must be
// called before the first connection.
func (h *Hub) SetChatController(cc ChatController) {
	h.chat = cc
}

func (c *Client) handleGuildJoinRoom(event Event) {
	var data GuildJoinRoomData
	if !decodeData(event.Data, &data) || data.GuildID == "" {
		c.reply(event, nil, errors.New("guild_id is required"))
		return
	}
	if data.GuildID != c.guildID {
		c.reply(event, nil, errors.New("unknown guild"))
		return
	}
	if c.hub.chat != nil {
		ctx, cancel := requestContext()
		defer cancel()
		if !c.hub.chat.IsMember(ctx, c.userID) {
			c.reply(event, nil, errors.New("not a member"))
			return
		}
	}
	// Idempotent: the handshake already put the connection here.
	c.hub.joinRoomClient(c, GuildRoom(data.GuildID))
	c.reply(event, GuildJoinRoomData{GuildID: data.GuildID}, nil)
}

func (c *Client) handleChannelJoin(event Event) {
	var data ChannelJoinData
	if !decodeData(event.Data, &data) || data.ChannelID == "" {
		c.reply(event, nil, errors.New("channel_id is required"))
		return
	}
	if c.hub.chat == nil {
		c.reply(event, nil, errChatUnavailable)
		return
	}

	ctx, cancel := requestContext()
	defer cancel()
	if !c.hub.chat.CanAccess(ctx, c.userID, data.ChannelID) {
		c.reply(event, nil, errors.New("channel not accessible"))
		return
	}
	c.hub.joinRoomClient(c, ChannelRoom(data.ChannelID))
	c.reply(event, ChannelJoinData{ChannelID: data.ChannelID}, nil)
}

// handleTyping fans typing:start / typing:stop out to the channel room,
// excluding the typist. Ineligible or malformed requests are dropped
// silently; typing is fire-and-forget.
func (c *Client) handleTyping(event Event, op string) {
	var typing TypingData
	if !decodeData(event.Data, &typing) || typing.ChannelID == "" {
		return
	}

	if c.hub.chat != nil {
		ctx, cancel := requestContext()
		defer cancel()
		if !c.hub.chat.CanSend(ctx, c.userID, typing.ChannelID) {
			return
		}
	}

	c.hub.BroadcastToRoomExcept(ChannelRoom(typing.ChannelID), c.userID, Event{
		Op: op,
		Data: TypingStartData{
			UserID:    c.userID,
			Username:  c.hub.getUserUsername(c.userID),
			ChannelID: typing.ChannelID,
		},
	})
}

func (c *Client) handleMessageSend(event Event) {
	var data MessageSendData
	if !decodeData(event.Data, &data) || data.ChannelID == "" {
		c.reply(event, nil, errors.New("channel_id is required"))
		return
	}
	if c.hub.chat == nil {
		c.reply(event, nil, errChatUnavailable)
		return
	}

	ctx, cancel := requestContext()
	defer cancel()
	result, err := c.hub.chat.SendMessage(ctx, c.userID, data.ChannelID, data.Content, data.AttachmentIDs, data.ReplyToID)
	c.reply(event, result, err)
}
