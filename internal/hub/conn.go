// Package hub implements the reconnecting push channel to the backend's
// real-time hubs. A Conn carries server-to-client events, which it decodes
// and hands to an events.Dispatcher, and client-to-server invocations.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/sipdash/internal/events"
	"github.com/soyeahso/sipdash/internal/logging"
	"github.com/soyeahso/sipdash/internal/metrics"
)

// State of a hub connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultReconnectDelays is the steady-state reconnect schedule. The last
// entry repeats until the connection is restored or Disconnect is called.
var DefaultReconnectDelays = []time.Duration{
	0,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	15 * time.Second,
	30 * time.Second,
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 10 * time.Second
	maxFrameSize            = 4 * 1024 * 1024
)

// Options configures a Conn.
type Options struct {
	// Name labels the hub in logs and metrics ("sip", "chat").
	Name string
	// URL is the ws:// or wss:// endpoint.
	URL string
	// Token returns the bearer token sent during the handshake. May be nil.
	Token func() (string, error)
	// ReconnectDelays overrides DefaultReconnectDelays.
	ReconnectDelays []time.Duration
	// HandshakeTimeout bounds dial plus handshake. Defaults to 10s.
	HandshakeTimeout time.Duration
	// Client identifies this process to the server.
	Client ClientInfo
	// Dialer overrides websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Conn is a single reconnecting duplex connection to one hub.
//
// Inbound events and the connectivity events Connected, Reconnected and
// Disconnected share one FIFO queue. A single drain goroutine hands them to
// the dispatcher one at a time, so no two handlers ever run concurrently.
// The read goroutine only decodes and enqueues, which leaves it free to
// resolve responses: handlers may call Invoke.
type Conn struct {
	opts       Options
	dispatcher *events.Dispatcher
	log        *logging.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	ws      *websocket.Conn
	state   State
	pending map[string]chan result
	stop    chan struct{} // closed by Disconnect

	writeMu sync.Mutex

	qmu      sync.Mutex
	queue    []queued
	draining bool
}

type queued struct {
	evt  events.Event
	done chan struct{}
}

type result struct {
	frame Frame
	err   error
}

// New creates a disconnected Conn. m may be nil.
func New(opts Options, d *events.Dispatcher, log *logging.Logger, m *metrics.Metrics) *Conn {
	if len(opts.ReconnectDelays) == 0 {
		opts.ReconnectDelays = DefaultReconnectDelays
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Conn{
		opts:       opts,
		dispatcher: d,
		log:        log.Sub("hub").With("hub", opts.Name),
		metrics:    m,
		pending:    make(map[string]chan result),
	}
}

// Endpoint derives a hub URL from the REST base URL: http becomes ws,
// https becomes wss, and the path is replaced by hubPath.
func Endpoint(baseURL, hubPath string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("hub: parsing base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("hub: unsupported scheme %q", u.Scheme)
	}
	u.Path = hubPath
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// Name returns the hub label.
func (c *Conn) Name() string { return c.opts.Name }

// URL returns the hub endpoint.
func (c *Conn) URL() string { return c.opts.URL }

// Dispatcher returns the dispatcher events are delivered to.
func (c *Conn) Dispatcher() *events.Dispatcher { return c.dispatcher }

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// On registers an event handler on the hub's dispatcher.
func (c *Conn) On(kind events.Kind, name string, handler events.Handler) {
	c.dispatcher.On(kind, name, handler)
}

// Connect dials the hub and completes the handshake. It is a no-op when
// already connected. A dial or handshake failure is returned as a
// *ConnectionError and leaves the Conn disconnected; Connect does not
// retry. On success it returns once the Connected handlers have run, so it
// must not be called from a handler.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateConnecting, StateReconnecting:
		c.mu.Unlock()
		return &ConnectionError{URL: c.opts.URL, Err: errors.New("connection attempt already in progress")}
	}
	c.state = StateConnecting
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()

	ws, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		if c.stop == stop {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		c.log.Warn().Err(err).Str("url", c.opts.URL).Msg("connect failed")
		return &ConnectionError{URL: c.opts.URL, Err: err}
	}

	c.mu.Lock()
	if stopped(stop) {
		c.mu.Unlock()
		ws.Close()
		return &ConnectionError{URL: c.opts.URL, Err: ErrNotConnected}
	}
	done := c.attach(ws, stop, events.Connected{})
	c.mu.Unlock()

	c.log.Info().Str("url", c.opts.URL).Msg("hub connected")
	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}

// Disconnect closes the connection and stops any reconnect loop. Pending
// and later invocations fail with ErrNotConnected.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	ws := c.ws
	c.ws = nil
	was := c.state
	c.state = StateDisconnected
	c.failPending(ErrNotConnected)
	c.mu.Unlock()

	c.metrics.SetHubConnected(c.opts.Name, false)

	var err error
	if ws != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = ws.Close()
	}
	if was != StateDisconnected {
		c.log.Info().Msg("hub disconnected")
		c.enqueue(events.Disconnected{})
	}
	return err
}

// Invoke calls a server method with positional args and waits for its
// result. It fails fast with ErrNotConnected unless the connection is
// established; invocations are never queued across a reconnect.
func (c *Conn) Invoke(ctx context.Context, method string, args ...any) (payload json.RawMessage, err error) {
	defer func() { c.metrics.HubInvoke(c.opts.Name, method, err) }()

	if args == nil {
		args = []any{}
	}
	id := uuid.NewString()
	req, err := NewRequest(id, method, args)
	if err != nil {
		return nil, fmt.Errorf("hub: encoding %s: %w", method, err)
	}

	ch := make(chan result, 1)
	c.mu.Lock()
	if c.state != StateConnected || c.ws == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	ws := c.ws
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(ws, req); err != nil {
		c.forget(id)
		return nil, fmt.Errorf("hub: sending %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		if !res.frame.Succeeded() {
			ie := &InvokeError{Method: method, Message: "invocation rejected"}
			if res.frame.Error != nil {
				ie.Code = res.frame.Error.Code
				ie.Message = res.frame.Error.Message
			}
			return nil, ie
		}
		return res.frame.Payload, nil
	}
}

// attach installs ws as the live socket, queues evts and then starts the
// read loop, so nothing read from ws is dispatched before evts. The
// returned channel closes once the last of evts has been dispatched.
// Must be called with mu held.
func (c *Conn) attach(ws *websocket.Conn, stop chan struct{}, evts ...events.Event) <-chan struct{} {
	ws.SetReadLimit(maxFrameSize)
	c.ws = ws
	c.state = StateConnected
	c.metrics.SetHubConnected(c.opts.Name, true)
	var done <-chan struct{}
	for _, evt := range evts {
		done = c.enqueue(evt)
	}
	go c.readLoop(ws, stop)
	return done
}

// enqueue appends evt to the dispatch queue, starting the drain goroutine
// if it is idle. The returned channel closes after evt's handlers return.
func (c *Conn) enqueue(evt events.Event) <-chan struct{} {
	done := make(chan struct{})
	c.qmu.Lock()
	c.queue = append(c.queue, queued{evt: evt, done: done})
	if !c.draining {
		c.draining = true
		go c.drain()
	}
	c.qmu.Unlock()
	return done
}

func (c *Conn) drain() {
	for {
		c.qmu.Lock()
		if len(c.queue) == 0 {
			c.draining = false
			c.qmu.Unlock()
			return
		}
		next := c.queue[0]
		c.queue[0] = queued{}
		c.queue = c.queue[1:]
		c.qmu.Unlock()

		c.dispatcher.Dispatch(context.Background(), next.evt)
		close(next.done)
	}
}

func (c *Conn) readLoop(ws *websocket.Conn, stop chan struct{}) {
	var lastSeq int64
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.lost(ws, stop, err)
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn().Err(err).Msg("discarding malformed frame")
			continue
		}

		switch f.Type {
		case FrameTypeResponse:
			c.resolve(f)
		case FrameTypeEvent:
			if f.Seq > 0 {
				if lastSeq > 0 && f.Seq != lastSeq+1 {
					c.log.Warn().Int64("expected", lastSeq+1).Int64("got", f.Seq).Msg("event sequence gap")
				}
				lastSeq = f.Seq
			}
			c.handleEvent(f)
		default:
			c.log.Debug().Str("type", f.Type).Msg("ignoring frame")
		}
	}
}

func (c *Conn) handleEvent(f Frame) {
	c.metrics.HubEvent(c.opts.Name, f.Event)

	evt, err := events.Decode(f.Event, f.Payload)
	if err != nil {
		if errors.Is(err, events.ErrUnknownEvent) {
			c.log.Debug().Str("event", f.Event).Msg("ignoring unknown event")
		} else {
			c.log.Warn().Err(err).Str("event", f.Event).Msg("discarding undecodable event")
		}
		return
	}
	c.enqueue(evt)
}

// lost handles an unexpected read failure on ws and starts reconnecting.
func (c *Conn) lost(ws *websocket.Conn, stop chan struct{}, cause error) {
	c.mu.Lock()
	if c.ws != ws {
		// Replaced or closed by Disconnect.
		c.mu.Unlock()
		return
	}
	c.ws = nil
	c.state = StateReconnecting
	c.failPending(ErrNotConnected)
	c.mu.Unlock()

	ws.Close()
	c.metrics.SetHubConnected(c.opts.Name, false)
	c.log.Warn().Err(cause).Msg("connection lost, reconnecting")
	c.enqueue(events.Disconnected{Err: cause})

	c.reconnect(stop)
}

func (c *Conn) reconnect(stop chan struct{}) {
	delays := c.opts.ReconnectDelays
	for attempt := 0; ; attempt++ {
		delay := delays[min(attempt, len(delays)-1)]
		timer := time.NewTimer(delay)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := stopContext(stop)
		ws, err := c.dial(ctx)
		cancel()
		c.metrics.HubReconnect(c.opts.Name, err)
		if err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("reconnect failed")
			continue
		}

		c.mu.Lock()
		if stopped(stop) {
			c.mu.Unlock()
			ws.Close()
			return
		}
		c.attach(ws, stop, events.Connected{}, events.Reconnected{})
		c.mu.Unlock()

		c.log.Info().Int("attempts", attempt+1).Msg("hub reconnected")
		return
	}
}

// dial opens the socket and runs the handshake:
// server challenge → client connect request → server hello response.
func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	var token string
	if c.opts.Token != nil {
		t, err := c.opts.Token()
		if err != nil {
			return nil, fmt.Errorf("resolving token: %w", err)
		}
		token = t
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	ws, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	if err := c.handshake(ctx, ws, token); err != nil {
		ws.Close()
		return nil, err
	}
	return ws, nil
}

func (c *Conn) handshake(ctx context.Context, ws *websocket.Conn, token string) error {
	unwatch := context.AfterFunc(ctx, func() { ws.Close() })
	defer unwatch()

	if deadline, ok := ctx.Deadline(); ok {
		ws.SetReadDeadline(deadline)
		ws.SetWriteDeadline(deadline)
	}

	challenge, err := readFrame(ws)
	if err != nil {
		return fmt.Errorf("reading challenge: %w", err)
	}
	if challenge.Type != FrameTypeEvent || challenge.Event != EventConnectChallenge {
		return fmt.Errorf("expected %s event, got type=%s event=%s", EventConnectChallenge, challenge.Type, challenge.Event)
	}

	params := ConnectParams{
		MinProtocol: ProtocolVersion,
		MaxProtocol: ProtocolVersion,
		Client:      c.opts.Client,
	}
	if token != "" {
		params.Auth = &ConnectAuth{Token: token}
	}
	req, err := NewRequest(uuid.NewString(), MethodConnect, params)
	if err != nil {
		return fmt.Errorf("creating connect request: %w", err)
	}
	if err := ws.WriteJSON(req); err != nil {
		return fmt.Errorf("sending connect: %w", err)
	}

	resp, err := readFrame(ws)
	if err != nil {
		return fmt.Errorf("reading hello: %w", err)
	}
	if resp.Type != FrameTypeResponse || resp.ID != req.ID {
		return fmt.Errorf("expected connect response, got type=%s id=%s", resp.Type, resp.ID)
	}
	if !resp.Succeeded() {
		ie := &InvokeError{Method: MethodConnect, Message: "connect rejected"}
		if resp.Error != nil {
			ie.Code = resp.Error.Code
			ie.Message = resp.Error.Message
		}
		return ie
	}

	var hello HelloOK
	if err := json.Unmarshal(resp.Payload, &hello); err != nil {
		return fmt.Errorf("parsing hello: %w", err)
	}
	c.log.Debug().
		Str("connId", hello.Server.ConnID).
		Int("protocol", hello.Protocol).
		Msg("handshake complete")

	ws.SetReadDeadline(time.Time{})
	ws.SetWriteDeadline(time.Time{})
	return nil
}

func (c *Conn) write(ws *websocket.Conn, f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.WriteJSON(f)
}

func (c *Conn) resolve(f Frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.ID]
	delete(c.pending, f.ID)
	c.mu.Unlock()
	if !ok {
		c.log.Debug().Str("id", f.ID).Msg("response for unknown request")
		return
	}
	ch <- result{frame: f}
}

func (c *Conn) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// failPending must be called with mu held.
func (c *Conn) failPending(err error) {
	for id, ch := range c.pending {
		ch <- result{err: err}
		delete(c.pending, id)
	}
}

func readFrame(ws *websocket.Conn) (Frame, error) {
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func stopped(stop chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// stopContext returns a context cancelled when stop closes.
func stopContext(stop chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
