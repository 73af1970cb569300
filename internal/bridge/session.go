// Package bridge is the bot side of the navigation host protocol: a
// reconnecting websocket session that exposes the remote host as a
// probe.Caster and a movement.Host.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"strider.ai/internal/nav/status"
	"strider.ai/internal/protocol"
)

const DefaultRequestTimeout = 5 * time.Second

type SessionConfig struct {
	Key            string
	URL            string
	AgentIDHint    string
	Spawn          *protocol.Vec3
	RequestTimeout time.Duration
	UpdateBuffer   int
	Logger         *log.Logger
}

type sessionUpdate struct {
	AgentID         string
	LastConnectedAt time.Time
}

type onUpdateFn func(key string, upd sessionUpdate)

type Session struct {
	cfg      SessionConfig
	onUpdate onUpdateFn
	log      *log.Logger

	mu sync.RWMutex

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}

	connected bool
	ready     chan struct{} // closed while a WELCOME is in effect
	lastErr   string

	conn    *websocket.Conn
	writeMu sync.Mutex

	agentID string
	welcome protocol.WelcomeMsg

	pending map[string]chan protocol.RespMsg

	updates chan status.Host
	dropped atomic.Uint64
}

func NewSession(cfg SessionConfig, onUpdate onUpdateFn) *Session {
	if cfg.Key == "" {
		cfg.Key = "default"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.UpdateBuffer <= 0 {
		cfg.UpdateBuffer = 64
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Session{
		cfg:      cfg,
		onUpdate: onUpdate,
		log:      logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		ready:    make(chan struct{}),
		agentID:  cfg.AgentIDHint,
		pending:  map[string]chan protocol.RespMsg{},
		updates:  make(chan status.Host, cfg.UpdateBuffer),
	}
}

func (s *Session) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		// Ensure any blocking ReadMessage wakes up promptly.
		s.Disconnect()
		s.startOnce.Do(func() { close(s.done) })
		<-s.done
	})
}

// Disconnect drops the current connection. The run loop reconnects unless the
// session is closed.
func (s *Session) Disconnect() {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.markDisconnectedLocked()
	s.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
}

func (s *Session) markDisconnectedLocked() {
	if s.connected {
		s.ready = make(chan struct{})
	}
	s.connected = false
}

// Updates carries host path-update codes in arrival order. When the consumer
// falls behind, new codes are dropped and counted.
func (s *Session) Updates() <-chan status.Host { return s.updates }

func (s *Session) AgentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agentID
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Connected:      s.connected,
		AgentID:        s.agentID,
		SessionID:      s.welcome.SessionID,
		URL:            s.cfg.URL,
		StepHz:         s.welcome.StepHz,
		Pending:        len(s.pending),
		DroppedUpdates: s.dropped.Load(),
		LastError:      s.lastErr,
	}
}

// WaitReady blocks until the session has completed a handshake.
func (s *Session) WaitReady(ctx context.Context) error {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()
	select {
	case <-ready:
		return nil
	case <-s.stop:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run() {
	defer close(s.done)

	backoff := 200 * time.Millisecond
	for {
		select {
		case <-s.stop:
			s.Disconnect()
			return
		default:
		}

		if err := s.connectAndReadLoop(); err != nil {
			s.mu.Lock()
			s.markDisconnectedLocked()
			s.lastErr = err.Error()
			s.mu.Unlock()
			s.failPending()
			s.log.Printf("session %s: %v (retry in %s)", s.cfg.Key, err, backoff)
			select {
			case <-s.stop:
				s.Disconnect()
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
				if backoff > 5*time.Second {
					backoff = 5 * time.Second
				}
			}
			continue
		}
		// Clean exit.
		s.failPending()
		return
	}
}

func (s *Session) connectAndReadLoop() error {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.Dial(s.cfg.URL, http.Header{})
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       s.cfg.Key,
		Spawn:           s.cfg.Spawn,
	}
	s.mu.RLock()
	hello.AgentID = strings.TrimSpace(s.agentID)
	s.mu.RUnlock()

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.lastErr = ""
	s.mu.Unlock()

	for {
		select {
		case <-s.stop:
			_ = conn.Close()
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			select {
			case <-s.stop:
				return nil
			default:
			}
			return err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		if base.ProtocolVersion != protocol.Version {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			now := time.Now()
			s.mu.Lock()
			s.welcome = w
			s.agentID = w.AgentID
			if !s.connected {
				s.connected = true
				close(s.ready)
			}
			s.mu.Unlock()
			s.log.Printf("session %s: welcome agent=%s step_hz=%d", s.cfg.Key, w.AgentID, w.StepHz)
			if s.onUpdate != nil {
				s.onUpdate(s.cfg.Key, sessionUpdate{AgentID: w.AgentID, LastConnectedAt: now})
			}

		case protocol.TypeResp:
			var r protocol.RespMsg
			if err := json.Unmarshal(msg, &r); err != nil {
				continue
			}
			s.mu.Lock()
			ch := s.pending[r.ID]
			delete(s.pending, r.ID)
			s.mu.Unlock()
			if ch != nil {
				ch <- r
			}

		case protocol.TypePathUpdate:
			var u protocol.PathUpdateMsg
			if err := json.Unmarshal(msg, &u); err != nil {
				continue
			}
			select {
			case s.updates <- status.Host(u.Code):
			default:
				s.dropped.Add(1)
			}
		}
	}
}

// failPending releases every in-flight call; the caller sees ErrDisconnected.
func (s *Session) failPending() {
	s.mu.Lock()
	pending := s.pending
	s.pending = map[string]chan protocol.RespMsg{}
	s.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}

// send registers id for a response and writes v. The returned channel yields
// the RESP, or is closed if the connection drops first.
func (s *Session) send(ctx context.Context, id string, v any) (chan protocol.RespMsg, error) {
	if err := s.WaitReady(ctx); err != nil {
		return nil, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	ch := make(chan protocol.RespMsg, 1)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	conn := s.conn
	if conn == nil || !s.connected {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	s.pending[id] = ch
	s.mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		s.forget(id)
		return nil, err
	}
	return ch, nil
}

func (s *Session) forget(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Session) await(ctx context.Context, op, id string, ch chan protocol.RespMsg, out any) error {
	t := time.NewTimer(s.cfg.RequestTimeout)
	defer t.Stop()
	select {
	case r, ok := <-ch:
		if !ok {
			return fmt.Errorf("%s: %w", op, ErrDisconnected)
		}
		if !r.OK {
			return &RemoteError{Op: op, Code: r.Code, Message: r.Message}
		}
		if out != nil && len(r.Result) > 0 {
			if err := json.Unmarshal(r.Result, out); err != nil {
				return fmt.Errorf("%s: decode result: %w", op, err)
			}
		}
		return nil
	case <-t.C:
		s.forget(id)
		return &RemoteError{Op: op, Code: protocol.ErrTimeout, Message: "no response"}
	case <-ctx.Done():
		s.forget(id)
		return ctx.Err()
	}
}

// call sends one REQ and decodes the RESP result into out (which may be nil).
func (s *Session) call(ctx context.Context, req protocol.ReqMsg, out any) error {
	req.Type = protocol.TypeReq
	req.ProtocolVersion = protocol.Version
	req.ID = uuid.NewString()
	ch, err := s.send(ctx, req.ID, req)
	if err != nil {
		return fmt.Errorf("%s: %w", req.Op, err)
	}
	return s.await(ctx, req.Op, req.ID, ch, out)
}
