package sandbox

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"strider.ai/internal/nav/probe"
	"strider.ai/internal/nav/status"
)

// CastRay returns the nearest box hit along the segment from -> to. A pending
// ray fault is consumed instead of casting.
func (w *World) CastRay(from, to mgl64.Vec3) probe.CastResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.casts++
	if w.rayFaults > 0 {
		w.rayFaults--
		return probe.CastResult{Status: w.rayFault}
	}

	dir := to.Sub(from)
	best := math.Inf(1)
	var hit Box
	for _, b := range w.boxes {
		t, ok := segmentBox(from, dir, b)
		if ok && t < best {
			best = t
			hit = b
		}
	}
	if math.IsInf(best, 1) {
		return probe.CastResult{Status: status.RayOK}
	}
	return probe.CastResult{
		Hit:      true,
		HitID:    hit.ID,
		HitPoint: from.Add(dir.Mul(best)),
		Status:   1,
	}
}

// segmentBox is the slab test for from + t*dir, t in [0,1]. Rays starting
// inside a box report t=0.
func segmentBox(from, dir mgl64.Vec3, b Box) (float64, bool) {
	tmin, tmax := 0.0, 1.0
	for i := 0; i < 3; i++ {
		if math.Abs(dir[i]) < 1e-12 {
			if from[i] < b.Min[i] || from[i] > b.Max[i] {
				return 0, false
			}
			continue
		}
		inv := 1 / dir[i]
		t1 := (b.Min[i] - from[i]) * inv
		t2 := (b.Max[i] - from[i]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

func (w *World) SurfaceWalkable(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	i, ok := w.byID[id]
	if !ok {
		return false
	}
	return w.boxes[i].Walkable
}

// SegmentFeasible is the world's static feasibility answer: the agent's
// footprint, inflated by half the width, must not cross a solid box.
func (w *World) SegmentFeasible(p0, p1 mgl64.Vec3, width float64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	half := width / 2
	d := p1.Sub(p0)
	n := int(math.Ceil(d.Len()/0.25)) + 1
	for i := 0; i <= n; i++ {
		p := p0.Add(d.Mul(float64(i) / float64(n))).Add(mgl64.Vec3{0, 0, w.cfg.AgentHeight})
		for _, b := range w.boxes {
			if b.Walkable {
				continue
			}
			if p[0] >= b.Min[0]-half && p[0] <= b.Max[0]+half &&
				p[1] >= b.Min[1]-half && p[1] <= b.Max[1]+half &&
				p[2] >= b.Min[2] && p[2] <= b.Max[2] {
				return false
			}
		}
	}
	return true
}
