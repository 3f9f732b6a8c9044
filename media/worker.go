package media

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/remus-chat/remus-node/pkg"
)

// WorkerConfig configures the external media worker process.
type WorkerConfig struct {
	// Path is the worker binary. The worker speaks newline-delimited
	// JSON request/response over stdin/stdout.
	Path        string
	ListenIP    string
	AnnouncedIP string
	MinPort     int
	MaxPort     int
}

// defaultCodecs is the codec set every router is created with: Opus for
// audio, VP8 for video/screenshare.
var defaultCodecs = json.RawMessage(`[
	{"kind":"audio","mimeType":"audio/opus","clockRate":48000,"channels":2},
	{"kind":"video","mimeType":"video/VP8","clockRate":90000}
]`)

type workerRequest struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type workerResponse struct {
	ID    int64           `json:"id"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// workerEngine drives one media worker subprocess.
type workerEngine struct {
	cfg WorkerConfig

	cmd   *exec.Cmd
	stdin io.WriteCloser

	writeMu sync.Mutex
	nextID  atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan workerResponse

	died   chan error
	closed atomic.Bool
}

// NewWorkerEngine creates an Engine backed by an external worker
// process. Start launches the process.
func NewWorkerEngine(cfg WorkerConfig) Engine {
	return &workerEngine{
		cfg:     cfg,
		pending: make(map[int64]chan workerResponse),
		died:    make(chan error, 1),
	}
}

func (e *workerEngine) Start(ctx context.Context) error {
	e.cmd = exec.Command(e.cfg.Path,
		"--min-port", fmt.Sprint(e.cfg.MinPort),
		"--max-port", fmt.Sprint(e.cfg.MaxPort),
	)

	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdout, err := e.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open worker stdout: %w", err)
	}
	e.cmd.Stderr = logWriter{}

	if err := e.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start media worker: %w", err)
	}
	e.stdin = stdin

	go e.readLoop(stdout)
	log.Printf("[voice] media worker started (pid %d, ports %d-%d)", e.cmd.Process.Pid, e.cfg.MinPort, e.cfg.MaxPort)
	return nil
}

// readLoop dispatches responses to waiting callers. When stdout closes
// the worker is gone: fail every pending call and signal Died.
func (e *workerEngine) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var resp workerResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			log.Printf("[voice] worker sent unparseable line: %v", err)
			continue
		}
		e.pendingMu.Lock()
		ch, ok := e.pending[resp.ID]
		if ok {
			delete(e.pending, resp.ID)
		}
		e.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
	}

	waitErr := e.cmd.Wait()
	e.pendingMu.Lock()
	for id, ch := range e.pending {
		delete(e.pending, id)
		ch <- workerResponse{ID: id, Error: "worker exited"}
	}
	e.pendingMu.Unlock()

	if e.closed.Load() {
		return
	}
	if waitErr == nil {
		waitErr = fmt.Errorf("media worker exited unexpectedly")
	}
	select {
	case e.died <- fmt.Errorf("media worker died: %w", waitErr):
	default:
	}
}

func (e *workerEngine) call(ctx context.Context, method string, params any, out any) error {
	id := e.nextID.Add(1)
	ch := make(chan workerResponse, 1)

	e.pendingMu.Lock()
	e.pending[id] = ch
	e.pendingMu.Unlock()

	line, err := json.Marshal(workerRequest{ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("failed to marshal worker request: %w", err)
	}
	line = append(line, '\n')

	e.writeMu.Lock()
	_, err = e.stdin.Write(line)
	e.writeMu.Unlock()
	if err != nil {
		e.pendingMu.Lock()
		delete(e.pending, id)
		e.pendingMu.Unlock()
		return fmt.Errorf("%w: failed to write to media worker: %v", pkg.ErrInternal, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return fmt.Errorf("%w: %s: %s", pkg.ErrInternal, method, resp.Error)
		}
		if out != nil && len(resp.Data) > 0 {
			if err := json.Unmarshal(resp.Data, out); err != nil {
				return fmt.Errorf("failed to parse worker response for %s: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		e.pendingMu.Lock()
		delete(e.pending, id)
		e.pendingMu.Unlock()
		return ctx.Err()
	}
}

func (e *workerEngine) CreateRouter(ctx context.Context, id string) (Router, error) {
	var result struct {
		RTPCapabilities json.RawMessage `json:"rtpCapabilities"`
	}
	err := e.call(ctx, "createRouter", map[string]any{
		"id":          id,
		"mediaCodecs": defaultCodecs,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &workerRouter{engine: e, id: id, rtpCapabilities: result.RTPCapabilities}, nil
}

func (e *workerEngine) Died() <-chan error {
	return e.died
}

func (e *workerEngine) Close() error {
	e.closed.Store(true)
	if e.stdin != nil {
		_ = e.stdin.Close()
	}
	if e.cmd != nil && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
	return nil
}

type workerRouter struct {
	engine          *workerEngine
	id              string
	rtpCapabilities json.RawMessage
}

func (r *workerRouter) ID() string                       { return r.id }
func (r *workerRouter) RTPCapabilities() json.RawMessage { return r.rtpCapabilities }

func (r *workerRouter) CreateTransport(ctx context.Context) (Transport, error) {
	var params TransportParameters
	err := r.engine.call(ctx, "router.createTransport", map[string]any{
		"routerId":    r.id,
		"listenIp":    r.engine.cfg.ListenIP,
		"announcedIp": r.engine.cfg.AnnouncedIP,
	}, &params)
	if err != nil {
		return nil, err
	}
	return &workerTransport{engine: r.engine, routerID: r.id, params: params}, nil
}

func (r *workerRouter) CanConsume(producerID string, rtpCapabilities json.RawMessage) (bool, error) {
	var result struct {
		CanConsume bool `json:"canConsume"`
	}
	err := r.engine.call(context.Background(), "router.canConsume", map[string]any{
		"routerId":        r.id,
		"producerId":      producerID,
		"rtpCapabilities": rtpCapabilities,
	}, &result)
	if err != nil {
		return false, err
	}
	return result.CanConsume, nil
}

func (r *workerRouter) Close() error {
	return r.engine.call(context.Background(), "router.close", map[string]any{"routerId": r.id}, nil)
}

type workerTransport struct {
	engine   *workerEngine
	routerID string
	params   TransportParameters
}

func (t *workerTransport) ID() string                      { return t.params.ID }
func (t *workerTransport) Parameters() TransportParameters { return t.params }

func (t *workerTransport) Connect(ctx context.Context, dtlsParameters json.RawMessage) error {
	return t.engine.call(ctx, "transport.connect", map[string]any{
		"transportId":    t.params.ID,
		"dtlsParameters": dtlsParameters,
	}, nil)
}

func (t *workerTransport) Produce(ctx context.Context, kind string, rtpParameters, appData json.RawMessage) (Producer, error) {
	var result struct {
		ID string `json:"id"`
	}
	params := map[string]any{
		"transportId":   t.params.ID,
		"kind":          kind,
		"rtpParameters": rtpParameters,
	}
	if len(appData) > 0 {
		params["appData"] = appData
	}
	err := t.engine.call(ctx, "transport.produce", params, &result)
	if err != nil {
		return nil, err
	}
	return &workerProducer{engine: t.engine, id: result.ID, kind: kind}, nil
}

func (t *workerTransport) Consume(ctx context.Context, producerID string, rtpCapabilities json.RawMessage) (Consumer, error) {
	var result struct {
		ID            string          `json:"id"`
		Kind          string          `json:"kind"`
		RTPParameters json.RawMessage `json:"rtpParameters"`
	}
	err := t.engine.call(ctx, "transport.consume", map[string]any{
		"transportId":     t.params.ID,
		"producerId":      producerID,
		"rtpCapabilities": rtpCapabilities,
		"paused":          true,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &workerConsumer{
		engine:        t.engine,
		id:            result.ID,
		producerID:    producerID,
		kind:          result.Kind,
		rtpParameters: result.RTPParameters,
	}, nil
}

func (t *workerTransport) Close() error {
	return t.engine.call(context.Background(), "transport.close", map[string]any{"transportId": t.params.ID}, nil)
}

type workerProducer struct {
	engine *workerEngine
	id     string
	kind   string
}

func (p *workerProducer) ID() string   { return p.id }
func (p *workerProducer) Kind() string { return p.kind }
func (p *workerProducer) Close() error {
	return p.engine.call(context.Background(), "producer.close", map[string]any{"producerId": p.id}, nil)
}

type workerConsumer struct {
	engine        *workerEngine
	id            string
	producerID    string
	kind          string
	rtpParameters json.RawMessage
}

func (c *workerConsumer) ID() string                     { return c.id }
func (c *workerConsumer) ProducerID() string             { return c.producerID }
func (c *workerConsumer) Kind() string                   { return c.kind }
func (c *workerConsumer) RTPParameters() json.RawMessage { return c.rtpParameters }

func (c *workerConsumer) Resume(ctx context.Context) error {
	return c.engine.call(ctx, "consumer.resume", map[string]any{"consumerId": c.id}, nil)
}

func (c *workerConsumer) Close() error {
	return c.engine.call(context.Background(), "consumer.close", map[string]any{"consumerId": c.id}, nil)
}

// logWriter forwards worker stderr into the node log.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	log.Printf("[voice] worker: %s", string(p))
	return len(p), nil
}
