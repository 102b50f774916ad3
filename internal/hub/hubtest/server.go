// Package hubtest provides an in-process hub server for tests. It speaks the
// same handshake and frame protocol as the backend hubs, records every
// invocation it receives and can push events or drop connections on demand.
package hubtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/sipdash/internal/hub"
)

// Invocation is a request frame received from a client.
type Invocation struct {
	ConnID string
	Method string
	Args   []json.RawMessage
}

// Arg decodes positional argument i into v.
func (inv Invocation) Arg(i int, v any) error {
	if i >= len(inv.Args) {
		return fmt.Errorf("invocation %s has %d args", inv.Method, len(inv.Args))
	}
	return json.Unmarshal(inv.Args[i], v)
}

// MethodHandler answers an invocation. A non-nil ErrorShape is sent as an
// error response.
type MethodHandler func(inv Invocation) (any, *hub.ErrorShape)

// Server is a test hub.
type Server struct {
	ts       *httptest.Server
	token    string
	upgrader websocket.Upgrader
	seq      atomic.Int64

	mu          sync.Mutex
	conns       map[string]*conn
	handlers    map[string]MethodHandler
	invocations []Invocation
	refuse      bool
	notify      chan struct{}
}

type conn struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(f hub.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(f)
}

// Option configures a Server.
type Option func(*Server)

// WithToken makes the server reject handshakes whose token differs.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// NewServer starts a hub server. Close it when done.
func NewServer(opts ...Option) *Server {
	s := &Server{
		conns:    make(map[string]*conn),
		handlers: make(map[string]MethodHandler),
		notify:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ts = httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	return s
}

// URL returns the ws:// endpoint.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.ts.URL, "http")
}

// Close drops every connection and stops the server.
func (s *Server) Close() {
	s.DropAll()
	s.ts.Close()
}

// Handle installs a handler for method. Methods without a handler succeed
// with a null payload.
func (s *Server) Handle(method string, h MethodHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Reject makes every invocation of method fail with the given error.
func (s *Server) Reject(method, code, message string) {
	s.Handle(method, func(Invocation) (any, *hub.ErrorShape) {
		return nil, &hub.ErrorShape{Code: code, Message: message}
	})
}

// Refuse makes subsequent handshakes fail until called with false.
func (s *Server) Refuse(refuse bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuse = refuse
}

// Broadcast pushes an event with positional args to every client.
func (s *Server) Broadcast(event string, args ...any) error {
	f, err := hub.NewEvent(event, s.seq.Add(1), args...)
	if err != nil {
		return err
	}
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.send(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DropAll closes every client connection from the server side, as if the
// network failed.
func (s *Server) DropAll() {
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[string]*conn)
	s.signal()
	s.mu.Unlock()
	for _, c := range conns {
		c.ws.Close()
	}
}

// ConnCount returns the number of authenticated connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Invocations returns a copy of every invocation received so far.
func (s *Server) Invocations() []Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Invocation, len(s.invocations))
	copy(out, s.invocations)
	return out
}

// InvocationsOf returns the invocations of one method.
func (s *Server) InvocationsOf(method string) []Invocation {
	var out []Invocation
	for _, inv := range s.Invocations() {
		if inv.Method == method {
			out = append(out, inv)
		}
	}
	return out
}

// ResetInvocations forgets recorded invocations.
func (s *Server) ResetInvocations() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invocations = nil
}

// WaitFor blocks until cond holds or timeout elapses. cond is evaluated
// after every connection or invocation change.
func (s *Server) WaitFor(timeout time.Duration, cond func(s *Server) bool) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		s.mu.Lock()
		notify := s.notify
		s.mu.Unlock()
		if cond(s) {
			return true
		}
		select {
		case <-notify:
		case <-deadline.C:
			return cond(s)
		}
	}
}

// signal wakes WaitFor callers. Must be called with mu held.
func (s *Server) signal() {
	close(s.notify)
	s.notify = make(chan struct{})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c, hello, err := s.handshake(ws)
	if err != nil {
		ws.Close()
		return
	}

	// Register before replying so a broadcast issued as soon as the client
	// sees hello reaches it. Holding c.mu keeps that broadcast behind hello.
	c.mu.Lock()
	s.mu.Lock()
	s.conns[c.id] = c
	s.signal()
	s.mu.Unlock()
	err = ws.WriteJSON(hello)
	c.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.conns[c.id] == c {
			delete(s.conns, c.id)
			s.signal()
		}
		s.mu.Unlock()
		ws.Close()
	}()

	if err != nil {
		return
	}
	s.readLoop(c)
}

func (s *Server) handshake(ws *websocket.Conn) (*conn, hub.Frame, error) {
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	challenge, err := hub.NewEvent(hub.EventConnectChallenge, 0, map[string]any{
		"nonce": uuid.NewString(),
		"ts":    time.Now().UnixMilli(),
	})
	if err != nil {
		return nil, hub.Frame{}, err
	}
	if err := ws.WriteJSON(challenge); err != nil {
		return nil, hub.Frame{}, err
	}

	var frame hub.Frame
	if err := ws.ReadJSON(&frame); err != nil {
		return nil, hub.Frame{}, err
	}
	if frame.Type != hub.FrameTypeRequest || frame.Method != hub.MethodConnect {
		ws.WriteJSON(hub.NewErrorResponse(frame.ID, hub.ErrorShape{Code: "protocol_error", Message: "expected connect request"}))
		return nil, hub.Frame{}, errors.New("expected connect request")
	}

	var params hub.ConnectParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		ws.WriteJSON(hub.NewErrorResponse(frame.ID, hub.ErrorShape{Code: "invalid_params", Message: "invalid connect params"}))
		return nil, hub.Frame{}, err
	}

	s.mu.Lock()
	refuse := s.refuse
	s.mu.Unlock()
	if refuse {
		ws.WriteJSON(hub.NewErrorResponse(frame.ID, hub.ErrorShape{Code: "unavailable", Message: "hub unavailable"}))
		return nil, hub.Frame{}, errors.New("refused")
	}
	if s.token != "" && (params.Auth == nil || params.Auth.Token != s.token) {
		ws.WriteJSON(hub.NewErrorResponse(frame.ID, hub.ErrorShape{Code: "unauthorized", Message: "invalid token"}))
		return nil, hub.Frame{}, errors.New("unauthorized")
	}

	ws.SetReadDeadline(time.Time{})

	c := &conn{id: uuid.NewString(), ws: ws}
	hello, err := hub.NewResponse(frame.ID, hub.HelloOK{
		Protocol: hub.ProtocolVersion,
		Server:   hub.Server{Version: "hubtest", ConnID: c.id},
	})
	if err != nil {
		return nil, hub.Frame{}, err
	}
	return c, hello, nil
}

func (s *Server) readLoop(c *conn) {
	for {
		var frame hub.Frame
		if err := c.ws.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Type != hub.FrameTypeRequest {
			continue
		}

		inv := Invocation{ConnID: c.id, Method: frame.Method}
		if len(frame.Params) > 0 {
			if err := json.Unmarshal(frame.Params, &inv.Args); err != nil {
				c.send(hub.NewErrorResponse(frame.ID, hub.ErrorShape{Code: "invalid_params", Message: err.Error()}))
				continue
			}
		}

		s.mu.Lock()
		s.invocations = append(s.invocations, inv)
		h := s.handlers[frame.Method]
		s.signal()
		s.mu.Unlock()

		var (
			payload  any
			errShape *hub.ErrorShape
		)
		if h != nil {
			payload, errShape = h(inv)
		}
		if errShape != nil {
			c.send(hub.NewErrorResponse(frame.ID, *errShape))
			continue
		}
		resp, err := hub.NewResponse(frame.ID, payload)
		if err != nil {
			c.send(hub.NewErrorResponse(frame.ID, hub.ErrorShape{Code: "internal", Message: err.Error()}))
			continue
		}
		c.send(resp)
	}
}
