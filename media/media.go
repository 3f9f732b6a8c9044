// Package media abstracts the SFU engine the voice coordinator drives.
// The node never touches RTP itself: it asks the engine for routers,
// transports, producers, and consumers, and relays the engine's opaque
// parameter blobs to clients over the signaling channel.
//
// Parameter payloads are json.RawMessage throughout. The node forwards
// them verbatim between the engine and the browser; it has no reason to
// parse SDP-level detail.
package media

import (
	"context"
	"encoding/json"
)

// Engine owns the media worker. One engine serves the whole node; one
// router is created per voice channel.
type Engine interface {
	// Start launches the worker. It must be called before any router is
	// created.
	Start(ctx context.Context) error
	CreateRouter(ctx context.Context, id string) (Router, error)
	// Died delivers exactly one error if the worker process dies. The
	// node treats a dead worker as fatal and exits.
	Died() <-chan error
	Close() error
}

// Router is the per-channel RTP routing domain.
type Router interface {
	ID() string
	// RTPCapabilities is handed to clients so they can load their device.
	RTPCapabilities() json.RawMessage
	CreateTransport(ctx context.Context) (Transport, error)
	// CanConsume reports whether a client with the given capabilities
	// can receive the producer's stream.
	CanConsume(producerID string, rtpCapabilities json.RawMessage) (bool, error)
	Close() error
}

// TransportParameters is everything a client needs to connect one
// WebRTC transport.
type TransportParameters struct {
	ID             string          `json:"id"`
	ICEParameters  json.RawMessage `json:"iceParameters"`
	ICECandidates  json.RawMessage `json:"iceCandidates"`
	DTLSParameters json.RawMessage `json:"dtlsParameters"`
}

// Transport is one client-facing WebRTC transport. Each peer gets a
// send transport and a receive transport.
type Transport interface {
	ID() string
	Parameters() TransportParameters
	Connect(ctx context.Context, dtlsParameters json.RawMessage) error
	// Produce forwards appData to the engine verbatim; consumers of the
	// stream get it back so they can tell a screen track from a camera.
	Produce(ctx context.Context, kind string, rtpParameters, appData json.RawMessage) (Producer, error)
	// Consume creates the consumer paused; the client resumes it after
	// wiring its receiver, avoiding a burst of undecodable packets.
	Consume(ctx context.Context, producerID string, rtpCapabilities json.RawMessage) (Consumer, error)
	Close() error
}

// Producer is one inbound media stream (client to SFU).
type Producer interface {
	ID() string
	Kind() string // "audio" or "video"
	Close() error
}

// Consumer is one outbound media stream (SFU to client).
type Consumer interface {
	ID() string
	ProducerID() string
	Kind() string
	RTPParameters() json.RawMessage
	Resume(ctx context.Context) error
	Close() error
}
