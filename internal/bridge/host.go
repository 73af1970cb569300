package bridge

import (
	"context"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"strider.ai/internal/nav/movement"
	"strider.ai/internal/nav/probe"
	"strider.ai/internal/nav/status"
	"strider.ai/internal/protocol"
)

func vec(v mgl64.Vec3) *protocol.Vec3 {
	p := protocol.V(v)
	return &p
}

func (s *Session) CastRay(ctx context.Context, from, to mgl64.Vec3) (probe.CastResult, error) {
	var res protocol.CastRayResult
	if err := s.call(ctx, protocol.ReqMsg{Op: protocol.OpCastRay, From: vec(from), To: vec(to)}, &res); err != nil {
		return probe.CastResult{}, err
	}
	return probe.CastResult{
		Hit:      res.Hit,
		HitID:    res.HitID,
		HitPoint: res.HitPoint.Mgl(),
		Status:   status.Ray(res.Status),
	}, nil
}

// SurfaceWalkable treats a failed query as "not walkable" so the hit still
// counts as an obstacle.
func (s *Session) SurfaceWalkable(ctx context.Context, objectID string) bool {
	var res protocol.SurfaceResult
	if err := s.call(ctx, protocol.ReqMsg{Op: protocol.OpSurface, ObjectID: objectID}, &res); err != nil {
		s.log.Printf("surface %s: %v", objectID, err)
		return false
	}
	return res.Walkable
}

func (s *Session) move(ctx context.Context, req protocol.ReqMsg) error {
	req.Op = protocol.OpMove
	return s.call(ctx, req, nil)
}

func (s *Session) NavigateTo(ctx context.Context, goal mgl64.Vec3, opts movement.Options) error {
	return s.move(ctx, protocol.ReqMsg{Verb: movement.NavigateTo.String(), Goal: vec(goal), Options: opts})
}

func (s *Session) Pursue(ctx context.Context, target string, opts movement.Options) error {
	return s.move(ctx, protocol.ReqMsg{Verb: movement.Pursue.String(), Target: target, Options: opts})
}

func (s *Session) Wander(ctx context.Context, center, spread mgl64.Vec3, opts movement.Options) error {
	return s.move(ctx, protocol.ReqMsg{Verb: movement.Wander.String(), Goal: vec(center), Spread: vec(spread), Options: opts})
}

func (s *Session) Evade(ctx context.Context, target string, opts movement.Options) error {
	return s.move(ctx, protocol.ReqMsg{Verb: movement.Evade.String(), Target: target, Options: opts})
}

func (s *Session) FleeFrom(ctx context.Context, from mgl64.Vec3, distance float64, opts movement.Options) error {
	return s.move(ctx, protocol.ReqMsg{Verb: movement.FleeFrom.String(), Goal: vec(from), Distance: distance, Options: opts})
}

func (s *Session) StopMovement(ctx context.Context) error {
	return s.call(ctx, protocol.ReqMsg{Op: protocol.OpStop}, nil)
}

func (s *Session) State(ctx context.Context) (movement.AgentState, error) {
	var res protocol.StateResult
	if err := s.call(ctx, protocol.ReqMsg{Op: protocol.OpState}, &res); err != nil {
		return movement.AgentState{}, err
	}
	return movement.AgentState{Pos: res.Pos.Mgl(), Vel: res.Vel.Mgl(), AngVel: res.AngVel.Mgl()}, nil
}

func (s *Session) TargetPosition(ctx context.Context, target string) (mgl64.Vec3, bool, error) {
	var res protocol.TargetResult
	if err := s.call(ctx, protocol.ReqMsg{Op: protocol.OpTarget, Target: target}, &res); err != nil {
		return mgl64.Vec3{}, false, err
	}
	return res.Pos.Mgl(), res.Found, nil
}

func (s *Session) Nudge(ctx context.Context, offset mgl64.Vec3) error {
	return s.call(ctx, protocol.ReqMsg{Op: protocol.OpNudge, Offset: vec(offset)}, nil)
}

// Escalate hands a segment the local planner could not solve to the host's
// global path solver. It returns once the host acknowledges.
func (s *Session) Escalate(ctx context.Context, start, goal mgl64.Vec3, width, height float64, agentType string) error {
	msg := protocol.EscalateMsg{
		Type:            protocol.TypeEscalate,
		ProtocolVersion: protocol.Version,
		ID:              uuid.NewString(),
		Start:           protocol.V(start),
		Goal:            protocol.V(goal),
		Width:           width,
		Height:          height,
		AgentType:       agentType,
	}
	ch, err := s.send(ctx, msg.ID, msg)
	if err != nil {
		return err
	}
	return s.await(ctx, protocol.TypeEscalate, msg.ID, ch, nil)
}

var (
	_ probe.Caster  = (*Session)(nil)
	_ movement.Host = (*Session)(nil)
)
