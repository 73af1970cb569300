package movement

import (
	"context"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// unstick tries to restore motion after a stall: a short randomized wander,
// then one forced nudge and a second wander. It reports whether the agent moved
// at least MoveEpsilon from where it started.
func (s *Supervisor) unstick(ctx context.Context) bool {
	s.stats.Unsticks++
	st, err := s.host.State(ctx)
	if err != nil {
		s.log.Printf("agent=%s unstick state: %v", s.agentID, err)
		return false
	}
	origin := st.Pos
	if s.wiggle(ctx, origin) {
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	a := s.rng.Float64() * 2 * math.Pi
	nudge := mgl64.Vec3{math.Cos(a), math.Sin(a), 0}.Mul(s.cfg.NudgeDistance)
	if err := s.host.Nudge(ctx, nudge); err != nil {
		s.log.Printf("agent=%s nudge: %v", s.agentID, err)
	}
	if s.wiggle(ctx, origin) {
		return true
	}
	s.log.Printf("agent=%s cannot move from %v", s.agentID, origin)
	return false
}

func (s *Supervisor) wiggle(ctx context.Context, origin mgl64.Vec3) bool {
	st, err := s.host.State(ctx)
	if err != nil {
		return false
	}
	half := s.cfg.UnstickSpread / 2
	center := st.Pos.Add(mgl64.Vec3{
		(s.rng.Float64()*2 - 1) * half,
		(s.rng.Float64()*2 - 1) * half,
		0,
	})
	spread := mgl64.Vec3{s.cfg.UnstickSpread, s.cfg.UnstickSpread, 0}
	if err := s.host.Wander(ctx, center, spread, nil); err != nil {
		s.log.Printf("agent=%s unstick wander: %v", s.agentID, err)
	}
	if err := s.clock.Sleep(ctx, s.cfg.UnstickWait); err != nil {
		return false
	}
	if err := s.host.StopMovement(ctx); err != nil {
		s.log.Printf("agent=%s unstick stop: %v", s.agentID, err)
	}
	if err := s.clock.Sleep(ctx, s.cfg.UnstickSettle); err != nil {
		return false
	}
	after, err := s.host.State(ctx)
	if err != nil {
		return false
	}
	s.current = &after
	return after.Pos.Sub(origin).Len() >= s.cfg.MoveEpsilon
}
