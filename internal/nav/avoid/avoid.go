// Package avoid decides whether a straight move is clear and, when it is not,
// looks for a cheap sidestep detour before anyone reaches for a global planner.
package avoid

import (
	"context"
	"log"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"strider.ai/internal/nav/geom"
	"strider.ai/internal/nav/probe"
)

const (
	DefaultMaxAvoidDistance = 8.0
	DefaultProbeCount       = 3
)

// StaticChecker is an optional second clearance signal from the host (static
// path feasibility). It can only veto a segment the beam reports clear.
type StaticChecker interface {
	SegmentFeasible(ctx context.Context, p0, p1 mgl64.Vec3, width float64, agentType string) bool
}

type Config struct {
	ProbeCount       int
	MaxAvoidDistance float64
}

func (c Config) withDefaults() Config {
	if c.ProbeCount < 2 {
		c.ProbeCount = DefaultProbeCount
	}
	if c.MaxAvoidDistance <= 0 {
		c.MaxAvoidDistance = DefaultMaxAvoidDistance
	}
	return c
}

// Planner is the path obstacle checker plus the simple avoidance planner.
type Planner struct {
	scanner *probe.Scanner
	static  StaticChecker
	cfg     Config
	log     *log.Logger
}

func NewPlanner(scanner *probe.Scanner, static StaticChecker, cfg Config, logger *log.Logger) *Planner {
	return &Planner{scanner: scanner, static: static, cfg: cfg.withDefaults(), log: logger}
}

// IsSegmentClear reports whether a width x height box can sweep from p0 to p1
// without striking a non-walkable surface. A failed scan is not clear.
func (p *Planner) IsSegmentClear(ctx context.Context, p0, p1 mgl64.Vec3, width, height float64, agentType string) bool {
	d, st := p.scanner.CastBeam(ctx, p0, p1, probe.ProbeConfig{
		Width:      width,
		Height:     height,
		ProbeCount: p.cfg.ProbeCount,
	})
	if st.Failed() {
		p.logf("beam %v -> %v failed: %s", p0, p1, st)
		return false
	}
	if !probe.IsClear(d) {
		return false
	}
	if p.static != nil && !p.static.SegmentFeasible(ctx, p0, p1, width, agentType) {
		return false
	}
	return true
}

// TryOffsetPath builds start, start+side*offset, goal+side*offset, goal and
// returns it only when all three legs are clear.
func (p *Planner) TryOffsetPath(ctx context.Context, p0, p1 mgl64.Vec3, width, height float64, agentType string, offset float64) []mgl64.Vec3 {
	side := geom.SideAxis(p0, p1).Mul(offset)
	s1 := p0.Add(side)
	s2 := p1.Add(side)
	if !p.IsSegmentClear(ctx, p0, s1, width, height, agentType) {
		return nil
	}
	if !p.IsSegmentClear(ctx, s1, s2, width, height, agentType) {
		return nil
	}
	if !p.IsSegmentClear(ctx, s2, p1, width, height, agentType) {
		return nil
	}
	return []mgl64.Vec3{p0, s1, s2, p1}
}

// PlanAvoidance looks for a sidestep detour from p0 to p1. Offsets grow by width
// up to the larger of the clear sideways distances measured to the right and to
// the left (each capped at MaxAvoidDistance); right wins ties. Offset zero is
// the direct segment. An empty result means escalate to a full planner.
//
// p0 itself must already be clear for a width-radius circle around it.
func (p *Planner) PlanAvoidance(ctx context.Context, p0, p1 mgl64.Vec3, width, height float64, agentType string) []mgl64.Vec3 {
	if width <= 0 {
		return nil
	}
	side := geom.SideAxis(p0, p1)
	right := p.sidewaysBound(ctx, p0, side.Mul(-1), width, height)
	left := p.sidewaysBound(ctx, p0, side, width, height)
	limit := math.Max(right, left)

	for k := 0; ; k++ {
		if ctx.Err() != nil {
			return nil
		}
		offset := float64(k) * width
		if offset > limit {
			break
		}
		if k == 0 {
			if p.IsSegmentClear(ctx, p0, p1, width, height, agentType) {
				return []mgl64.Vec3{p0, p1}
			}
			continue
		}
		if offset <= right {
			if path := p.TryOffsetPath(ctx, p0, p1, width, height, agentType, -offset); path != nil {
				return path
			}
		} else if offset <= left {
			if path := p.TryOffsetPath(ctx, p0, p1, width, height, agentType, offset); path != nil {
				return path
			}
		}
	}
	p.logf("no detour %v -> %v (right=%.2f left=%.2f)", p0, p1, right, left)
	return nil
}

func (p *Planner) sidewaysBound(ctx context.Context, p0, dir mgl64.Vec3, width, height float64) float64 {
	maxDist := p.cfg.MaxAvoidDistance
	d, st := p.scanner.CastBeam(ctx, p0, p0.Add(dir.Mul(maxDist)), probe.ProbeConfig{
		Width:       width,
		Height:      height,
		ProbeCount:  p.cfg.ProbeCount,
		WantNearest: true,
	})
	if st.Failed() {
		return 0
	}
	if d < 0 {
		return 0
	}
	return math.Min(d, maxDist)
}

func (p *Planner) logf(format string, args ...any) {
	if p.log != nil {
		p.log.Printf(format, args...)
	}
}
