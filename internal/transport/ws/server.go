package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"strider.ai/internal/nav/movement"
	"strider.ai/internal/protocol"
	"strider.ai/internal/sim/sandbox"
)

const (
	outQueue       = 64
	requestTimeout = 5 * time.Second
)

// EscalationFunc receives ESCALATE messages after they are acknowledged.
type EscalationFunc func(msg protocol.EscalateMsg)

type Server struct {
	world  *sandbox.World
	log    *log.Logger
	stepHz int

	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[string]chan []byte

	onEscalate EscalationFunc

	conns    atomic.Int64
	requests atomic.Uint64
	dropped  atomic.Uint64
}

func NewServer(w *sandbox.World, stepHz int, logger *log.Logger) *Server {
	s := &Server{
		world:  w,
		log:    logger,
		stepHz: stepHz,
		subs:   map[string]chan []byte{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	w.OnPathUpdate(s.publish)
	return s
}

func (s *Server) OnEscalate(fn EscalationFunc) { s.onEscalate = fn }

type Stats struct {
	Connections    int64
	Requests       uint64
	DroppedUpdates uint64
}

func (s *Server) Stats() Stats {
	return Stats{
		Connections:    s.conns.Load(),
		Requests:       s.requests.Load(),
		DroppedUpdates: s.dropped.Load(),
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		agentID := s.handshake(conn)
		if agentID == "" {
			return
		}
		out := make(chan []byte, outQueue)
		s.subscribe(agentID, out)
		defer s.unsubscribe(agentID, out)
		s.conns.Add(1)
		defer s.conns.Add(-1)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		host := s.world.Host(agentID)

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			var resp protocol.RespMsg
			switch base.Type {
			case protocol.TypeReq:
				var req protocol.ReqMsg
				if err := json.Unmarshal(msg, &req); err != nil {
					continue
				}
				if req.ProtocolVersion != protocol.Version {
					resp = protocol.ErrResp(req.ID, protocol.ErrProtoVersion, "bad protocol_version")
					break
				}
				s.requests.Add(1)
				rctx, rcancel := context.WithTimeout(ctx, requestTimeout)
				resp = s.dispatch(rctx, host, req)
				rcancel()
			case protocol.TypeEscalate:
				var esc protocol.EscalateMsg
				if err := json.Unmarshal(msg, &esc); err != nil {
					continue
				}
				esc.AgentID = agentID
				s.world.NoteEscalation()
				if s.log != nil {
					s.log.Printf("escalate agent=%s %v -> %v width=%.2f", agentID, esc.Start, esc.Goal, esc.Width)
				}
				if s.onEscalate != nil {
					s.onEscalate(esc)
				}
				resp, _ = protocol.OKResp(esc.ID, nil)
			default:
				continue
			}
			b, err := json.Marshal(resp)
			if err != nil {
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
		}

		// Leave the agent in the world so a reconnect resumes it, but stop it.
		_ = host.StopMovement(context.Background())
	}
}

func (s *Server) dispatch(ctx context.Context, h *sandbox.AgentHost, req protocol.ReqMsg) protocol.RespMsg {
	fail := func(code string, err error) protocol.RespMsg {
		return protocol.ErrResp(req.ID, code, err.Error())
	}
	ok := func(result any) protocol.RespMsg {
		m, err := protocol.OKResp(req.ID, result)
		if err != nil {
			return fail(protocol.ErrInternal, err)
		}
		return m
	}
	badReq := func(msg string) protocol.RespMsg {
		return protocol.ErrResp(req.ID, protocol.ErrBadRequest, msg)
	}

	switch req.Op {
	case protocol.OpCastRay:
		if req.From == nil || req.To == nil {
			return badReq("from and to required")
		}
		res, err := h.CastRay(ctx, req.From.Mgl(), req.To.Mgl())
		if err != nil {
			return fail(protocol.ErrInternal, err)
		}
		return ok(protocol.CastRayResult{
			Hit:      res.Hit,
			HitID:    res.HitID,
			HitPoint: protocol.V(res.HitPoint),
			Status:   int(res.Status),
		})
	case protocol.OpSurface:
		if req.ObjectID == "" {
			return badReq("object_id required")
		}
		return ok(protocol.SurfaceResult{Walkable: h.SurfaceWalkable(ctx, req.ObjectID)})
	case protocol.OpMove:
		if err := s.move(ctx, h, req); err != nil {
			return fail(errCode(err), err)
		}
		return ok(nil)
	case protocol.OpStop:
		if err := h.StopMovement(ctx); err != nil {
			return fail(errCode(err), err)
		}
		return ok(nil)
	case protocol.OpState:
		st, err := h.State(ctx)
		if err != nil {
			return fail(errCode(err), err)
		}
		return ok(protocol.StateResult{Pos: protocol.V(st.Pos), Vel: protocol.V(st.Vel), AngVel: protocol.V(st.AngVel)})
	case protocol.OpTarget:
		if req.Target == "" {
			return badReq("target required")
		}
		p, found, err := h.TargetPosition(ctx, req.Target)
		if err != nil {
			return fail(errCode(err), err)
		}
		return ok(protocol.TargetResult{Found: found, Pos: protocol.V(p)})
	case protocol.OpNudge:
		if req.Offset == nil {
			return badReq("offset required")
		}
		if err := h.Nudge(ctx, req.Offset.Mgl()); err != nil {
			return fail(errCode(err), err)
		}
		return ok(nil)
	default:
		return protocol.ErrResp(req.ID, protocol.ErrUnknownOp, "unknown op: "+req.Op)
	}
}

var errBadVerb = errors.New("bad verb")

func (s *Server) move(ctx context.Context, h *sandbox.AgentHost, req protocol.ReqMsg) error {
	mode, ok := movement.ParseMode(req.Verb)
	if !ok || mode == movement.Off {
		return errBadVerb
	}
	opts := movement.Options(req.Options)
	var goal, spread protocol.Vec3
	if req.Goal != nil {
		goal = *req.Goal
	}
	if req.Spread != nil {
		spread = *req.Spread
	}
	switch mode {
	case movement.NavigateTo:
		return h.NavigateTo(ctx, goal.Mgl(), opts)
	case movement.Pursue:
		return h.Pursue(ctx, req.Target, opts)
	case movement.Wander:
		return h.Wander(ctx, goal.Mgl(), spread.Mgl(), opts)
	case movement.Evade:
		return h.Evade(ctx, req.Target, opts)
	case movement.FleeFrom:
		return h.FleeFrom(ctx, goal.Mgl(), req.Distance, opts)
	}
	return errBadVerb
}

func errCode(err error) string {
	switch {
	case errors.Is(err, errBadVerb):
		return protocol.ErrBadRequest
	case errors.Is(err, sandbox.ErrUnknownAgent):
		return protocol.ErrUnknownAgent
	case errors.Is(err, context.DeadlineExceeded):
		return protocol.ErrTimeout
	default:
		return protocol.ErrInternal
	}
}

func (s *Server) handshake(conn *websocket.Conn) (agentID string) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return ""
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return ""
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return ""
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return ""
	}

	// Optional: resume an existing agent (reconnect).
	agentID = strings.TrimSpace(hello.AgentID)
	if agentID == "" {
		agentID = uuid.NewString()
	}
	var spawn protocol.Vec3
	if hello.Spawn != nil {
		spawn = *hello.Spawn
	}
	if err := s.world.AddAgent(agentID, spawn.Mgl(), 0); err != nil && !errors.Is(err, sandbox.ErrDuplicateID) {
		return ""
	}
	if s.log != nil {
		s.log.Printf("hello name=%s agent=%s", hello.AgentName, agentID)
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		AgentID:         agentID,
		SessionID:       uuid.NewString(),
		StepHz:          s.stepHz,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return ""
	}
	return agentID
}

func (s *Server) subscribe(agentID string, out chan []byte) {
	s.mu.Lock()
	s.subs[agentID] = out
	s.mu.Unlock()
}

func (s *Server) unsubscribe(agentID string, out chan []byte) {
	s.mu.Lock()
	if s.subs[agentID] == out {
		delete(s.subs, agentID)
	}
	s.mu.Unlock()
}

// publish forwards a world path update to the owning connection. A full queue
// drops the update rather than stalling the world step.
func (s *Server) publish(u sandbox.PathUpdate) {
	s.mu.Lock()
	out := s.subs[u.AgentID]
	s.mu.Unlock()
	if out == nil {
		return
	}
	b, err := json.Marshal(protocol.PathUpdateMsg{
		Type:            protocol.TypePathUpdate,
		ProtocolVersion: protocol.Version,
		AgentID:         u.AgentID,
		Code:            int(u.Code),
	})
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
		s.dropped.Add(1)
		if s.log != nil {
			s.log.Printf("path update dropped agent=%s code=%d", u.AgentID, u.Code)
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
