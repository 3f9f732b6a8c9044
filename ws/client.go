package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single write; past it the connection is dropped.
	writeWait = 10 * time.Second

	// pongWait is how long a client may go silent. Clients ping every
	// 30s, so this tolerates two missed pings.
	pongWait = 90 * time.Second

	// maxMessageSize caps inbound frames. Bulk data goes over HTTP; the
	// largest legitimate socket payload is WebRTC signaling.
	maxMessageSize = 64 * 1024

	sendBufferSize = 256

	// requestTimeout bounds a single request-style op (voice signaling,
	// message send).
	requestTimeout = 10 * time.Second
)

// Client is one WebSocket connection. Two goroutines serve it:
// ReadPump consumes inbound frames, WritePump drains the send buffer.
// gorilla/websocket allows one concurrent reader and one writer, which
// is exactly this split.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	// sessionID identifies this connection; voice peers key on it.
	sessionID string
	userID    string
	guildID   string

	// initialRooms are joined at registration: the user room and the
	// guild room.
	initialRooms []string

	send chan []byte
	mu   sync.Mutex // guards conn writes
}

// ReadPump reads frames until the connection dies, then deregisters.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("[ws] failed to set read deadline for user %s: %v", c.userID, err)
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] unexpected close for user %s: %v", c.userID, err)
			}
			return
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			log.Printf("[ws] invalid message from user %s: %v", c.userID, err)
			continue
		}

		c.handleEvent(event)
	}
}

func (c *Client) handleEvent(event Event) {
	switch event.Op {
	case OpPing:
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("[ws] failed to set read deadline for user %s: %v", c.userID, err)
			return
		}
		c.sendEvent(Event{Op: OpPong, ID: event.ID})

	case OpTyping, OpTypingStart:
		c.handleTyping(event, OpTypingStart)

	case OpTypingStop:
		c.handleTyping(event, OpTypingStop)

	case OpGuildJoinRoom:
		c.handleGuildJoinRoom(event)

	case OpChannelJoin:
		c.handleChannelJoin(event)

	case OpMessageSend:
		c.handleMessageSend(event)

	// Voice signaling runs inline: every op on one socket is handled
	// in arrival order.
	case OpVoiceJoin, OpVoiceLeave, OpVoiceRTPCapabilities, OpVoiceCreateTransport,
		OpVoiceConnect, OpVoiceProduce, OpVoiceCloseProducer, OpVoiceConsume,
		OpVoiceResumeConsumer, OpVoiceSpeaking, OpVoicePresence:
		c.handleVoice(event)

	default:
		log.Printf("[ws] unknown op from user %s: %s", c.userID, event.Op)
	}
}

// reply sends the acknowledgement for a request-style event.
func (c *Client) reply(event Event, data any, err error) {
	resp := Event{Op: event.Op, ID: event.ID}
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Data = data
	}
	c.sendEvent(resp)
}

func (c *Client) sendEvent(event Event) {
	event.Seq = c.hub.seq.Add(1)
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[ws] failed to marshal event for user %s: %v", c.userID, err)
		return
	}

	select {
	case c.send <- data:
	default:
		log.Printf("[ws] send buffer full for user %s, dropping connection", c.userID)
		c.hub.unregister <- c
	}
}

// WritePump drains the send buffer into the socket.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		message, ok := <-c.send
		if !ok {
			c.writeMessage(websocket.CloseMessage, nil)
			return
		}
		if err := c.writeMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// writeMessage serializes conn writes; gorilla forbids concurrent ones.
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// decodeData round-trips an any payload into a concrete struct. Inbound
// event data arrives as map[string]any; re-marshaling is the safe cast.
func decodeData(data any, out any) bool {
	raw, err := json.Marshal(data)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}
