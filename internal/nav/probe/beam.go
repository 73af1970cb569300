package probe

import (
	"context"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"strider.ai/internal/nav/geom"
	"strider.ai/internal/nav/status"
)

// Clear is the distance CastBeam reports when nothing blocks the beam.
var Clear = math.Inf(1)

// DefaultGroundClearance lifts the lowest row of probes off the ground so the
// floor under the agent is not reported as an obstacle.
const DefaultGroundClearance = 0.1

// ProbeConfig describes the swept cross-section.
type ProbeConfig struct {
	Width       float64
	Height      float64
	ProbeCount  int
	WantNearest bool
}

// Scanner sweeps a ProbeCount x ProbeCount grid of parallel rays along a segment.
type Scanner struct {
	Rays            *RetryCaster
	GroundClearance float64
}

func NewScanner(rays *RetryCaster, groundClearance float64) *Scanner {
	if groundClearance <= 0 {
		groundClearance = DefaultGroundClearance
	}
	return &Scanner{Rays: rays, GroundClearance: groundClearance}
}

// IsClear reports whether d is the clear sentinel.
func IsClear(d float64) bool { return math.IsInf(d, 1) }

// CastBeam scans the box swept from p0 to p1. It returns Clear when no
// non-walkable surface is hit, the distance along travel to the first (or, with
// WantNearest, the nearest) blocking hit, or a negative status when any ray
// failed hard. A failed scan says nothing about clearance.
func (s *Scanner) CastBeam(ctx context.Context, p0, p1 mgl64.Vec3, cfg ProbeConfig) (float64, status.Ray) {
	n := cfg.ProbeCount
	if n < 2 {
		return 0, status.RayBadCall
	}
	side := geom.SideAxis(p0, p1)
	dir := geom.Direction(p0, p1)
	ray := p1.Sub(p0)

	nearest := Clear
	for i := 0; i < n; i++ {
		across := -cfg.Width/2 + cfg.Width*float64(i)/float64(n-1)
		for j := 0; j < n; j++ {
			up := s.GroundClearance + (cfg.Height-s.GroundClearance)*float64(j)/float64(n-1)
			offset := side.Mul(across).Add(geom.UnitZ.Mul(up))
			from := p0.Add(offset)
			to := from.Add(ray)

			res := s.Rays.CastRay(ctx, from, to)
			if res.Status.Failed() {
				return 0, res.Status
			}
			if !res.Hit {
				continue
			}
			if s.Rays.SurfaceWalkable(ctx, res.HitID) {
				continue
			}
			d := res.HitPoint.Sub(from).Dot(dir)
			if !cfg.WantNearest {
				return d, status.RayOK
			}
			if d < nearest {
				nearest = d
			}
		}
	}
	return nearest, status.RayOK
}
