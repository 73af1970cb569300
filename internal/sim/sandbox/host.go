package sandbox

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"strider.ai/internal/nav/movement"
	"strider.ai/internal/nav/probe"
)

// AgentHost binds the world to one agent. It satisfies probe.Caster,
// movement.Host and avoid.StaticChecker.
type AgentHost struct {
	w  *World
	id string
}

func (w *World) Host(agentID string) *AgentHost {
	return &AgentHost{w: w, id: agentID}
}

func (h *AgentHost) ID() string { return h.id }

func (h *AgentHost) CastRay(ctx context.Context, from, to mgl64.Vec3) (probe.CastResult, error) {
	if err := ctx.Err(); err != nil {
		return probe.CastResult{}, err
	}
	return h.w.CastRay(from, to), nil
}

func (h *AgentHost) SurfaceWalkable(ctx context.Context, objectID string) bool {
	return h.w.SurfaceWalkable(objectID)
}

func (h *AgentHost) SegmentFeasible(ctx context.Context, p0, p1 mgl64.Vec3, width float64, agentType string) bool {
	return h.w.SegmentFeasible(p0, p1, width)
}

func (h *AgentHost) NavigateTo(ctx context.Context, goal mgl64.Vec3, opts movement.Options) error {
	return h.w.command(h.id, func(a *agent) {
		a.verb = movement.NavigateTo
		a.goal = goal
	})
}

func (h *AgentHost) Pursue(ctx context.Context, target string, opts movement.Options) error {
	if _, ok := h.w.position(target); !ok {
		return fmt.Errorf("pursue %s: %w", target, ErrUnknownAgent)
	}
	return h.w.command(h.id, func(a *agent) {
		a.verb = movement.Pursue
		a.target = target
	})
}

func (h *AgentHost) Wander(ctx context.Context, center, spread mgl64.Vec3, opts movement.Options) error {
	return h.w.command(h.id, func(a *agent) {
		a.verb = movement.Wander
		a.goal = center
		a.spread = spread
	})
}

func (h *AgentHost) Evade(ctx context.Context, target string, opts movement.Options) error {
	if _, ok := h.w.position(target); !ok {
		return fmt.Errorf("evade %s: %w", target, ErrUnknownAgent)
	}
	return h.w.command(h.id, func(a *agent) {
		a.verb = movement.Evade
		a.target = target
	})
}

func (h *AgentHost) FleeFrom(ctx context.Context, from mgl64.Vec3, distance float64, opts movement.Options) error {
	return h.w.command(h.id, func(a *agent) {
		a.verb = movement.FleeFrom
		a.goal = from
		a.distance = distance
	})
}

func (h *AgentHost) StopMovement(ctx context.Context) error { return h.w.stop(h.id) }

func (h *AgentHost) State(ctx context.Context) (movement.AgentState, error) {
	return h.w.state(h.id)
}

func (h *AgentHost) TargetPosition(ctx context.Context, target string) (mgl64.Vec3, bool, error) {
	p, ok := h.w.position(target)
	return p, ok, nil
}

func (h *AgentHost) Nudge(ctx context.Context, offset mgl64.Vec3) error {
	return h.w.nudge(h.id, offset)
}
