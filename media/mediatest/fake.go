// Package mediatest provides an in-memory media.Engine for tests.
package mediatest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/remus-chat/remus-node/media"
)

// FakeEngine implements media.Engine without a worker process. Every
// created object is tracked so tests can assert cleanup.
type FakeEngine struct {
	mu        sync.Mutex
	started   bool
	nextID    atomic.Int64
	died      chan error
	Routers   map[string]*FakeRouter
	Producers map[string]*FakeProducer
	Consumers map[string]*FakeConsumer
}

// NewFakeEngine creates a ready-to-start fake engine.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		died:      make(chan error, 1),
		Routers:   make(map[string]*FakeRouter),
		Producers: make(map[string]*FakeProducer),
		Consumers: make(map[string]*FakeConsumer),
	}
}

func (e *FakeEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = true
	return nil
}

func (e *FakeEngine) CreateRouter(ctx context.Context, id string) (media.Router, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return nil, fmt.Errorf("engine not started")
	}
	router := &FakeRouter{engine: e, id: id}
	e.Routers[id] = router
	return router, nil
}

func (e *FakeEngine) Died() <-chan error { return e.died }

// Kill simulates the worker process dying.
func (e *FakeEngine) Kill(err error) {
	select {
	case e.died <- err:
	default:
	}
}

func (e *FakeEngine) Close() error { return nil }

func (e *FakeEngine) newID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, e.nextID.Add(1))
}

// FakeRouter implements media.Router.
type FakeRouter struct {
	engine *FakeEngine
	id     string
	Closed bool
}

func (r *FakeRouter) ID() string { return r.id }

func (r *FakeRouter) RTPCapabilities() json.RawMessage {
	return json.RawMessage(`{"codecs":[{"mimeType":"audio/opus"},{"mimeType":"video/VP8"}]}`)
}

func (r *FakeRouter) CreateTransport(ctx context.Context) (media.Transport, error) {
	id := r.engine.newID("transport")
	return &FakeTransport{
		engine: r.engine,
		params: media.TransportParameters{
			ID:             id,
			ICEParameters:  json.RawMessage(`{}`),
			ICECandidates:  json.RawMessage(`[]`),
			DTLSParameters: json.RawMessage(`{}`),
		},
	}, nil
}

func (r *FakeRouter) CanConsume(producerID string, rtpCapabilities json.RawMessage) (bool, error) {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	p, ok := r.engine.Producers[producerID]
	return ok && !p.Closed, nil
}

func (r *FakeRouter) Close() error {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	r.Closed = true
	delete(r.engine.Routers, r.id)
	return nil
}

// FakeTransport implements media.Transport.
type FakeTransport struct {
	engine    *FakeEngine
	params    media.TransportParameters
	Connected bool
	Closed    bool
}

func (t *FakeTransport) ID() string                            { return t.params.ID }
func (t *FakeTransport) Parameters() media.TransportParameters { return t.params }

func (t *FakeTransport) Connect(ctx context.Context, dtlsParameters json.RawMessage) error {
	t.Connected = true
	return nil
}

func (t *FakeTransport) Produce(ctx context.Context, kind string, rtpParameters, appData json.RawMessage) (media.Producer, error) {
	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()
	producer := &FakeProducer{engine: t.engine, id: t.engine.newID("producer"), kind: kind, AppData: appData}
	t.engine.Producers[producer.id] = producer
	return producer, nil
}

func (t *FakeTransport) Consume(ctx context.Context, producerID string, rtpCapabilities json.RawMessage) (media.Consumer, error) {
	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()
	p, ok := t.engine.Producers[producerID]
	if !ok || p.Closed {
		return nil, fmt.Errorf("producer %s not found", producerID)
	}
	consumer := &FakeConsumer{
		engine:     t.engine,
		id:         t.engine.newID("consumer"),
		producerID: producerID,
		kind:       p.kind,
		Paused:     true,
	}
	t.engine.Consumers[consumer.id] = consumer
	return consumer, nil
}

func (t *FakeTransport) Close() error {
	t.Closed = true
	return nil
}

// FakeProducer implements media.Producer. AppData records what Produce
// received so tests can assert enrichment.
type FakeProducer struct {
	engine  *FakeEngine
	id      string
	kind    string
	AppData json.RawMessage
	Closed  bool
}

func (p *FakeProducer) ID() string   { return p.id }
func (p *FakeProducer) Kind() string { return p.kind }

func (p *FakeProducer) Close() error {
	p.engine.mu.Lock()
	defer p.engine.mu.Unlock()
	p.Closed = true
	delete(p.engine.Producers, p.id)
	return nil
}

// FakeConsumer implements media.Consumer.
type FakeConsumer struct {
	engine     *FakeEngine
	id         string
	producerID string
	kind       string
	Paused     bool
	Closed     bool
}

func (c *FakeConsumer) ID() string                     { return c.id }
func (c *FakeConsumer) ProducerID() string             { return c.producerID }
func (c *FakeConsumer) Kind() string                   { return c.kind }
func (c *FakeConsumer) RTPParameters() json.RawMessage { return json.RawMessage(`{}`) }

func (c *FakeConsumer) Resume(ctx context.Context) error {
	c.Paused = false
	return nil
}

func (c *FakeConsumer) Close() error {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	c.Closed = true
	delete(c.engine.Consumers, c.id)
	return nil
}
